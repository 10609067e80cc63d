//go:build !unix

package main

import "io/fs"

// Without unix stat metadata there are no owners to resolve.
type ownerCache struct{}

func newOwnerCache() *ownerCache {
	return &ownerCache{}
}

func (c *ownerCache) lookup(info fs.FileInfo) (string, string) {
	return "?", "?"
}
