package heap

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/heapcraft/memmgr"
)

// Check walks the entire heap read-only and verifies every structural
// invariant: sentinel integrity, header/footer agreement, exact accounting of
// block sizes against the heap bounds, immediate coalescing (no two adjacent
// free blocks), and, under the explicit policy, bidirectional equivalence of
// the free list and the set of blocks marked free.
//
// A nil return means the heap is coherent. A non-nil return is always a
// *memmgr.CorruptionError and means the boundary-tag structure can no longer
// be trusted; there is no safe recovery and hosts should terminate. Check
// never mutates the heap and is not intended for the allocation hot path.
func (h *Heap) Check() error {
	if got, want := h.word(h.start-wordSize), pack(0, true); got != want {
		return &memmgr.CorruptionError{
			Offset: h.start - wordSize,
			Header: got,
			Footer: want,
			Reason: "leading sentinel has been overwritten",
		}
	}
	if got, want := h.word(h.end), pack(0, true); got != want {
		return &memmgr.CorruptionError{
			Offset: h.end,
			Header: got,
			Footer: want,
			Reason: "end sentinel has been overwritten",
		}
	}

	freeBlocks := swiss.NewMap[int, struct{}](64)
	prevFree := false

	block := h.start
	for block < h.end {
		header := h.word(block)
		size := tagSize(header)

		if size == 0 {
			return &memmgr.CorruptionError{Offset: block, Header: header, Footer: header,
				Reason: "zero-size block, traversal cannot continue"}
		}
		if size%MinBlockSize != 0 {
			return &memmgr.CorruptionError{Offset: block, Header: header, Footer: header,
				Reason: "block size is not a multiple of the block granularity"}
		}
		if block+size > h.end {
			return &memmgr.CorruptionError{Offset: block, Header: header, Footer: header,
				Reason: "block extends past the end of the heap"}
		}

		footer := h.word(block + size - wordSize)
		if header != footer {
			return &memmgr.CorruptionError{Offset: block, Header: header, Footer: footer,
				Reason: "header and footer disagree"}
		}

		free := !tagAllocated(header)
		if free {
			if prevFree {
				return &memmgr.CorruptionError{Offset: block, Header: header, Footer: footer,
					Reason: "two adjacent free blocks, coalescing invariant violated"}
			}
			freeBlocks.Put(block, struct{}{})
		}
		prevFree = free

		block += size
	}

	if block != h.end {
		return &memmgr.CorruptionError{Offset: block,
			Reason: "block sizes do not sum to the heap extent"}
	}

	if locator, ok := h.locator.(*explicitLocator); ok {
		return h.checkFreeList(locator, freeBlocks)
	}
	return nil
}

// checkFreeList verifies that the explicit free list and the set of
// FREE-tagged blocks are the same set, in both directions: every list entry
// is a free block appearing exactly once, links are mutually consistent, and
// every free block is reachable from the list head.
func (h *Heap) checkFreeList(locator *explicitLocator, freeBlocks *swiss.Map[int, struct{}]) error {
	seen := swiss.NewMap[int, struct{}](uint32(freeBlocks.Count()))

	prev := 0
	for block := locator.head; block != 0; block = h.freeNext(block) {
		if _, inHeap := freeBlocks.Get(block); !inHeap {
			return &memmgr.CorruptionError{Offset: block,
				Reason: "free list entry does not refer to a free block"}
		}
		if _, dup := seen.Get(block); dup {
			return &memmgr.CorruptionError{Offset: block,
				Reason: "free list visits a block twice"}
		}
		seen.Put(block, struct{}{})

		if h.freePrev(block) != prev {
			return &memmgr.CorruptionError{Offset: block,
				Reason: "free list back link does not match forward traversal"}
		}
		prev = block
	}

	if seen.Count() != freeBlocks.Count() {
		var missing int
		freeBlocks.Iter(func(block int, _ struct{}) bool {
			if _, ok := seen.Get(block); !ok {
				missing = block
				return true
			}
			return false
		})
		return &memmgr.CorruptionError{Offset: missing,
			Reason: "free block is missing from the free list"}
	}

	return nil
}

// Validate implements memmgr.Validatable so the heap can participate in
// DebugValidate hooks under the debug_memmgr build tag
func (h *Heap) Validate() error {
	return h.Check()
}

// DumpJson writes the full block table, in the manner of a heap checker
// report, into the provided JSON object
func (h *Heap) DumpJson(json jwriter.ObjectState) {
	json.Name("Policy").String(h.Policy().String())
	json.Name("HeapStart").Int(h.start)
	json.Name("HeapEnd").Int(h.end)
	json.Name("TotalBytes").Int(h.HeapBytes())
	json.Name("FreeBytes").Int(h.FreeBytes())
	json.Name("Allocations").Int(h.allocCount)

	explicit := h.Policy() == PolicyExplicit

	blocks := json.Name("Blocks").Array()
	defer blocks.End()

	_ = h.VisitAllBlocks(func(offset, size int, free bool) error {
		obj := blocks.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		obj.Name("Payload").Int(size - tagOverhead)
		if free {
			obj.Name("Status").String("free")
			if explicit {
				obj.Name("Next").Int(h.freeNext(offset))
				obj.Name("Prev").Int(h.freePrev(offset))
			}
		} else {
			obj.Name("Status").String("allocated")
		}
		return nil
	})
}
