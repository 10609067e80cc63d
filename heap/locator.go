package heap

import "fmt"

// Policy selects how a heap discovers free blocks. It is fixed for the
// lifetime of the heap.
type Policy uint32

const (
	// PolicyImplicit scans every block in address order. Discovery costs
	// O(blocks) but freeing carries no bookkeeping beyond coalescing.
	PolicyImplicit Policy = iota
	// PolicyExplicit threads an intrusive doubly linked list through the
	// payload words of free blocks, so discovery only visits free blocks.
	// Strictly cheaper than PolicyImplicit when occupancy is high.
	PolicyExplicit
)

var policyMapping = map[Policy]string{
	PolicyImplicit: "PolicyImplicit",
	PolicyExplicit: "PolicyExplicit",
}

func (p Policy) String() string {
	return policyMapping[p]
}

// freeBlockLocator is the pluggable free-block discovery strategy. Both
// implementations apply the same best-fit rule: the smallest free block that
// satisfies the request wins, first encountered in scan order on ties.
//
// add and remove must be called in step with every status change so that the
// locator's view never disagrees with the boundary tags.
type freeBlockLocator interface {
	// find returns the offset of the best-fit free block of at least size
	// bytes, or NoBlock if none qualifies
	find(size int) int
	// add registers a block that has just become free
	add(block int)
	// remove unregisters a block that is about to stop being free (it is
	// being allocated, merged into a neighbor, or resized)
	remove(block int)
	// policy identifies the strategy for diagnostics
	policy() Policy
}

// implicitLocator walks the whole heap by boundary tags. It keeps no state of
// its own, so add and remove have nothing to do.
type implicitLocator struct {
	h *Heap
}

var _ freeBlockLocator = &implicitLocator{}

func (l *implicitLocator) find(size int) int {
	h := l.h
	best := NoBlock
	bestSize := 0

	for block := h.start; block < h.end; block = h.nextBlock(block) {
		blockSize := h.blockSize(block)
		if blockSize == 0 {
			panic(fmt.Sprintf("zero-size block at offset %d while scanning the heap", block))
		}
		if h.blockAllocated(block) || blockSize < size {
			continue
		}
		if best == NoBlock || blockSize < bestSize {
			best = block
			bestSize = blockSize
		}
	}

	return best
}

func (l *implicitLocator) add(block int)    {}
func (l *implicitLocator) remove(block int) {}
func (l *implicitLocator) policy() Policy   { return PolicyImplicit }

// explicitLocator maintains an unordered doubly linked list of free blocks,
// with the links stored inside the free blocks' payload areas. The list head
// is the only state held outside the heap region.
type explicitLocator struct {
	h    *Heap
	head int
}

var _ freeBlockLocator = &explicitLocator{}

func (l *explicitLocator) find(size int) int {
	h := l.h
	best := NoBlock
	bestSize := 0

	for block := l.head; block != 0; block = h.freeNext(block) {
		blockSize := h.blockSize(block)
		if blockSize < size {
			continue
		}
		if best == NoBlock || blockSize < bestSize {
			best = block
			bestSize = blockSize
		}
	}

	return best
}

func (l *explicitLocator) add(block int) {
	h := l.h
	if h.blockAllocated(block) {
		panic(fmt.Sprintf("block at offset %d added to the free list but marked allocated", block))
	}

	h.setFreeNext(block, l.head)
	h.setFreePrev(block, 0)
	if l.head != 0 {
		h.setFreePrev(l.head, block)
	}
	l.head = block
}

func (l *explicitLocator) remove(block int) {
	h := l.h
	next := h.freeNext(block)
	prev := h.freePrev(block)

	if next != 0 {
		h.setFreePrev(next, prev)
	}
	if prev != 0 {
		h.setFreeNext(prev, next)
	} else {
		if l.head != block {
			panic(fmt.Sprintf("block at offset %d has no list predecessor but is not the free list head", block))
		}
		l.head = next
	}
}

func (l *explicitLocator) policy() Policy { return PolicyExplicit }
