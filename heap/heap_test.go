package heap_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heapcraft/memmgr"
	"github.com/heapcraft/memmgr/dataseg"
	"github.com/heapcraft/memmgr/heap"
)

var policies = []heap.Policy{heap.PolicyImplicit, heap.PolicyExplicit}

type blockInfo struct {
	Offset int
	Size   int
	Free   bool
}

func snapshot(t *testing.T, h *heap.Heap) []blockInfo {
	t.Helper()

	var blocks []blockInfo
	err := h.VisitAllBlocks(func(offset, size int, free bool) error {
		blocks = append(blocks, blockInfo{Offset: offset, Size: size, Free: free})
		return nil
	})
	require.NoError(t, err)
	return blocks
}

func newTestHeap(t *testing.T, policy heap.Policy) *heap.Heap {
	t.Helper()

	h, err := heap.New(dataseg.NewSegment(0), heap.Config{Policy: policy})
	require.NoError(t, err)
	return h
}

func TestInitSingleFreeBlock(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			// 64 KiB chunk minus 32 bytes of sentinel padding at each end
			require.Equal(t, []blockInfo{
				{Offset: 32, Size: 65472, Free: true},
			}, snapshot(t, h))

			require.NoError(t, h.Check())
			require.True(t, h.IsEmpty())

			var stats memmgr.DetailedStatistics
			stats.Clear()
			h.AddDetailedStatistics(&stats)
			require.Equal(t, memmgr.DetailedStatistics{
				Statistics: memmgr.Statistics{
					HeapBytes:       65472,
					AllocationCount: 0,
					AllocationBytes: 0,
					FreeRegionCount: 1,
				},
				AllocationSizeMin: math.MaxInt,
				AllocationSizeMax: 0,
				FreeRegionSizeMin: 65472,
				FreeRegionSizeMax: 65472,
			}, stats)
		})
	}
}

func TestAllocateZeroSize(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)
			require.Equal(t, heap.NoBlock, h.Allocate(0))
			require.True(t, h.IsEmpty())
			require.NoError(t, h.Check())
		})
	}
}

func TestAllocateReleaseRoundTrip(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)
			before := snapshot(t, h)
			freeBefore := h.FreeBytes()

			ptr := h.Allocate(16)
			require.NotEqual(t, heap.NoBlock, ptr)
			require.Equal(t, 16, h.PayloadBytes(ptr))
			require.NoError(t, h.Check())

			h.Release(ptr)

			// The heap must return to the exact pre-allocation state: same
			// single free block, same size, same address
			require.Equal(t, before, snapshot(t, h))
			require.Equal(t, freeBefore, h.FreeBytes())
			require.NoError(t, h.Check())
		})
	}
}

func TestAdjacentBlocksCoalesce(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			a := h.Allocate(24)
			b := h.Allocate(24)
			require.NotEqual(t, heap.NoBlock, a)
			require.NotEqual(t, heap.NoBlock, b)

			h.Release(a)
			require.NoError(t, h.Check())
			h.Release(b)
			require.NoError(t, h.Check())

			// One merged free block spanning both, not two fragments
			require.Equal(t, []blockInfo{
				{Offset: 32, Size: 65472, Free: true},
			}, snapshot(t, h))
		})
	}
}

func TestBestFitSelection(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			small := h.Allocate(16)  // 32-byte block
			hold1 := h.Allocate(16)  // barrier against coalescing
			large := h.Allocate(100) // 128-byte block
			hold2 := h.Allocate(16)  // barrier against coalescing
			require.NotEqual(t, heap.NoBlock, hold1)
			require.NotEqual(t, heap.NoBlock, hold2)

			h.Release(small)
			h.Release(large)
			require.NoError(t, h.Check())

			// A 16-byte request must land in the 32-byte hole even though the
			// 128-byte hole also qualifies
			got := h.Allocate(16)
			require.Equal(t, small, got)

			// And a 100-byte request reuses the 128-byte hole exactly
			got = h.Allocate(100)
			require.Equal(t, large, got)

			require.NoError(t, h.Check())
		})
	}
}

func TestGrowthBeyondChunk(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			seg := dataseg.NewSegment(0)
			h, err := heap.New(seg, heap.Config{Policy: policy})
			require.NoError(t, err)

			_, brkBefore := seg.Stat()
			require.Equal(t, 65536, brkBefore)

			// Larger than both every free block and the growth chunk: the
			// segment grows by exactly the page-rounded block size
			ptr := h.Allocate(200000)
			require.NotEqual(t, heap.NoBlock, ptr)

			_, brkAfter := seg.Stat()
			require.Equal(t, brkBefore+200704, brkAfter)
			require.NoError(t, h.Check())

			h.Release(ptr)
			require.NoError(t, h.Check())
		})
	}
}

func TestOutOfMemory(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h, err := heap.New(dataseg.NewSegment(65536), heap.Config{Policy: policy})
			require.NoError(t, err)

			ptr := h.Allocate(16)
			require.NotEqual(t, heap.NoBlock, ptr)

			// The capped segment cannot grow, so an oversized request reports
			// out-of-memory without disturbing existing allocations
			require.Equal(t, heap.NoBlock, h.Allocate(1<<20))
			require.NoError(t, h.Check())
			require.Equal(t, 1, h.AllocationCount())
			require.Equal(t, 16, h.PayloadBytes(ptr))
		})
	}
}

func TestAllocateZeroed(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			// Dirty a block, free it, then demand zeroed memory of the same size
			ptr := h.Allocate(64)
			payload := h.Bytes(ptr)
			for i := range payload {
				payload[i] = 0xAB
			}
			h.Release(ptr)

			ptr = h.AllocateZeroed(8, 8)
			require.NotEqual(t, heap.NoBlock, ptr)
			for i, b := range h.Bytes(ptr)[:64] {
				require.Zerof(t, b, "byte %d is not zeroed", i)
			}
			require.NoError(t, h.Check())
		})
	}
}

func TestAllocateZeroedOverflow(t *testing.T) {
	h := newTestHeap(t, heap.PolicyImplicit)

	require.Equal(t, heap.NoBlock, h.AllocateZeroed(math.MaxInt/2+1, 4))
	require.Equal(t, heap.NoBlock, h.AllocateZeroed(math.MaxInt, 2))
	require.Equal(t, heap.NoBlock, h.AllocateZeroed(0, 16))
	require.True(t, h.IsEmpty())
	require.NoError(t, h.Check())
}

func TestResizeIdentities(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			// Resize of the null pointer is an allocation
			ptr := h.Resize(heap.NoBlock, 32)
			require.NotEqual(t, heap.NoBlock, ptr)
			require.Equal(t, 1, h.AllocationCount())

			// Resize to zero is a release
			require.Equal(t, heap.NoBlock, h.Resize(ptr, 0))
			require.True(t, h.IsEmpty())
			require.NoError(t, h.Check())
		})
	}
}

func TestResizeGrowsInPlace(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			ptr := h.Allocate(16)
			copy(h.Bytes(ptr), "boundary tagged!")

			// The successor is the single large free block, so the block
			// grows without moving
			got := h.Resize(ptr, 100)
			require.Equal(t, ptr, got)
			require.GreaterOrEqual(t, h.PayloadBytes(ptr), 100)
			require.Equal(t, "boundary tagged!", string(h.Bytes(ptr)[:16]))
			require.NoError(t, h.Check())
		})
	}
}

func TestResizeMovesWhenBlocked(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			a := h.Allocate(16)
			b := h.Allocate(16)
			require.NotEqual(t, heap.NoBlock, b)
			copy(h.Bytes(a), "move me")

			// a's successor is allocated, so growing must relocate
			got := h.Resize(a, 200)
			require.NotEqual(t, heap.NoBlock, got)
			require.NotEqual(t, a, got)
			require.Equal(t, "move me", string(h.Bytes(got)[:7]))
			require.Equal(t, 2, h.AllocationCount())
			require.NoError(t, h.Check())
		})
	}
}

func TestResizeShrinksInPlace(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			ptr := h.Allocate(200)
			got := h.Resize(ptr, 16)
			require.Equal(t, ptr, got)
			require.Equal(t, 16, h.PayloadBytes(ptr))
			require.NoError(t, h.Check())

			h.Release(ptr)
			require.Equal(t, []blockInfo{
				{Offset: 32, Size: 65472, Free: true},
			}, snapshot(t, h))
		})
	}
}

func TestResizeFailureKeepsOldBlock(t *testing.T) {
	h, err := heap.New(dataseg.NewSegment(65536), heap.Config{Policy: heap.PolicyExplicit})
	require.NoError(t, err)

	a := h.Allocate(16)
	b := h.Allocate(16)
	require.NotEqual(t, heap.NoBlock, b)
	copy(h.Bytes(a), "still here")

	// Relocation target cannot be allocated on the capped segment; the old
	// block must survive untouched
	require.Equal(t, heap.NoBlock, h.Resize(a, 1<<20))
	require.Equal(t, 2, h.AllocationCount())
	require.Equal(t, "still here", string(h.Bytes(a)[:10]))
	require.NoError(t, h.Check())
}

func TestShrinkReturnsTopOfHeap(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			seg := dataseg.NewSegment(0)
			h, err := heap.New(seg, heap.Config{Policy: policy, ShrinkThreshold: 1 << 14})
			require.NoError(t, err)

			ptr := h.Allocate(200000)
			require.NotEqual(t, heap.NoBlock, ptr)
			_, brkGrown := seg.Stat()

			h.Release(ptr)

			// The merged top-of-heap free block shrinks back to exactly the
			// configured threshold
			_, brkShrunk := seg.Stat()
			require.Less(t, brkShrunk, brkGrown)
			require.Equal(t, 1<<14, h.FreeBytes())
			require.Equal(t, 1<<14, h.HeapBytes())
			require.NoError(t, h.Check())

			// And the shrunken heap still serves allocations
			ptr = h.Allocate(1000)
			require.NotEqual(t, heap.NoBlock, ptr)
			require.NoError(t, h.Check())
		})
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			a := h.Allocate(48)
			b := h.Allocate(128)
			h.Release(a)
			require.NotEqual(t, heap.NoBlock, b)

			before := snapshot(t, h)
			require.NoError(t, h.Check())
			require.NoError(t, h.Check())
			require.Equal(t, before, snapshot(t, h))
		})
	}
}

func TestMixedWorkloadStaysCoherent(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			h := newTestHeap(t, policy)

			var live []int
			sizes := []int{8, 16, 24, 100, 500, 1000, 4000, 31, 63, 127}

			for round := 0; round < 20; round++ {
				for _, size := range sizes {
					ptr := h.Allocate(size)
					require.NotEqual(t, heap.NoBlock, ptr)
					live = append(live, ptr)
				}
				// Free every other allocation to fragment the heap
				var kept []int
				for i, ptr := range live {
					if i%2 == 0 {
						h.Release(ptr)
					} else {
						kept = append(kept, ptr)
					}
				}
				live = kept
				require.NoError(t, h.Check())
			}

			for _, ptr := range live {
				h.Release(ptr)
			}
			require.True(t, h.IsEmpty())
			require.NoError(t, h.Check())
			require.Equal(t, h.HeapBytes(), h.FreeBytes())
		})
	}
}
