//go:build unix

package main

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
)

// ownerCache resolves and memoizes uid/gid to user and group names; trees
// usually repeat a handful of owners thousands of times.
type ownerCache struct {
	users  map[uint32]string
	groups map[uint32]string
}

func newOwnerCache() *ownerCache {
	return &ownerCache{
		users:  map[uint32]string{},
		groups: map[uint32]string{},
	}
}

func (c *ownerCache) lookup(info fs.FileInfo) (string, string) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "?", "?"
	}
	return c.userName(stat.Uid), c.groupName(stat.Gid)
}

func (c *ownerCache) userName(uid uint32) string {
	if name, ok := c.users[uid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	c.users[uid] = name
	return name
}

func (c *ownerCache) groupName(gid uint32) string {
	if name, ok := c.groups[gid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	c.groups[gid] = name
	return name
}
