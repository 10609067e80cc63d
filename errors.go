package memmgr

import (
	"fmt"

	"github.com/pkg/errors"
)

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// CorruptionError reports a violated heap invariant discovered by a consistency
// check. There is no safe way to continue using a heap once one of these has
// been returned: the boundary-tag structure can no longer be trusted, so hosts
// should treat it as unrecoverable and terminate.
type CorruptionError struct {
	// Offset is the heap offset of the block whose invariant failed
	Offset int
	// Header and Footer are the raw boundary-tag words observed at the block.
	// They are zero when the failure is not a tag mismatch (for example a
	// broken free-list link).
	Header uint64
	Footer uint64
	// Reason is a human-readable description of the violated invariant
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Header != 0 || e.Footer != 0 {
		return fmt.Sprintf("heap corruption at offset %d: %s (header %#x, footer %#x)", e.Offset, e.Reason, e.Header, e.Footer)
	}
	return fmt.Sprintf("heap corruption at offset %d: %s", e.Offset, e.Reason)
}
