// Package dataseg supplies the growable memory region that a heap manages.
//
// A provider owns exactly one contiguous region and only ever grows it from
// the end, in the manner of the classic sbrk(2) program break. Consumers
// address the region with integer offsets from its start; the provider is the
// only component that touches the underlying storage, so out-of-region access
// is impossible by construction.
package dataseg

import "github.com/pkg/errors"

// ErrOutOfMemory is returned from Provider.Extend when the region cannot grow
// any further. It is the only recoverable failure a provider reports.
var ErrOutOfMemory = errors.New("data segment cannot be extended further")

// Provider owns a single contiguous, growable byte region.
//
// Implementations are not safe for concurrent use. The byte slice returned
// from Bytes is only valid until the next Extend or Trim call; callers must
// re-fetch it after every region resize.
type Provider interface {
	// Extend grows the region by n bytes and returns the offset of the old
	// end of region (the program break before the call). It returns
	// ErrOutOfMemory when the region cannot grow by n bytes; the region is
	// left unchanged in that case.
	Extend(n int) (int, error)
	// Stat reports the current region bounds as offsets: the start of the
	// region (always 0 for the implementations in this package) and the
	// current program break.
	Stat() (start, brk int)
	// PageSize reports the allocation granularity of the underlying memory
	// system. Always a power of two.
	PageSize() int
	// Bytes exposes the current region contents
	Bytes() []byte
}

// Trimmer is optionally implemented by providers that can return unused
// region from the end of the segment back to the memory system. Heap
// shrinking is best-effort and never required for correctness, so consumers
// must tolerate providers without it.
type Trimmer interface {
	// Trim shrinks the region by n bytes from the current program break
	Trim(n int) error
}
