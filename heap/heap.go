// Package heap implements a dynamic memory manager over a single growable
// data segment.
//
// The heap hands out integer offsets into the provider's region. Every block
// carries a boundary tag (header and footer word encoding size and status),
// which makes the heap walkable in both directions without any index outside
// the region itself. The heap is bounded by two permanently allocated
// zero-size sentinel half-blocks so neighbor lookups never leave the managed
// region.
//
// Allocation is best-fit with 32-byte block granularity, blocks are split
// when the remainder is usable, and freed blocks coalesce with free neighbors
// immediately. Free-block discovery is a pluggable policy chosen at
// construction: an implicit scan over all blocks, or an explicit intrusive
// free list threaded through free payload areas.
//
// A Heap is not safe for concurrent use; callers that share one across
// goroutines must serialize every call externally.
package heap

import (
	"fmt"
	"log/slog"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/heapcraft/memmgr"
	"github.com/heapcraft/memmgr/dataseg"
)

// DefaultChunkSize is the growth unit of the heap: the data segment is
// extended by at least this much whenever the heap runs out of free blocks.
const DefaultChunkSize = 1 << 16

// Config carries the construction-time policy of a Heap. The zero value is
// usable: implicit free list, 64 KiB growth chunk, no shrinking, no logging.
type Config struct {
	// Policy selects the free-block discovery strategy, fixed for the
	// lifetime of the heap
	Policy Policy
	// ChunkSize is the minimum data segment growth unit in bytes. Must be a
	// power of two and at least 4*MinBlockSize. Defaults to DefaultChunkSize.
	ChunkSize int
	// ShrinkThreshold enables returning memory to the provider: whenever the
	// free block at the top of the heap grows beyond this many bytes, the
	// excess above it is trimmed off the data segment. Zero disables
	// shrinking. When positive it must be at least MinBlockSize, and the
	// provider must implement dataseg.Trimmer for shrinking to take effect.
	ShrinkThreshold int
	// Logger receives diagnostic output. Defaults to slog.Default. How much
	// is emitted is governed by LogLevel/SetLogLevel, not the handler.
	Logger *slog.Logger
	// LogLevel is the initial diagnostic verbosity: 0 off, 1 operations,
	// 2 operations plus split/coalesce/growth detail
	LogLevel int
}

// Heap is one dynamic memory manager instance bound to one data segment
// provider. Multiple independent heaps may coexist, each over its own
// provider.
type Heap struct {
	seg     dataseg.Provider
	mem     []byte
	locator freeBlockLocator

	// start is the offset of the first real block, end the offset of the end
	// sentinel's header. Blocks tile [start, end) exactly.
	start int
	end   int
	page  int

	chunk           int
	shrinkThreshold int
	allocCount      int

	log       *slog.Logger
	verbosity int
}

// New initializes a heap over the provided data segment. The provider must be
// clean (nothing extended yet); New performs the first growth itself and
// formats the region with its sentinels and one spanning free block.
func New(seg dataseg.Provider, config Config) (*Heap, error) {
	chunk := config.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	if err := memmgr.CheckPow2(chunk, "chunk size"); err != nil {
		return nil, err
	}
	if chunk < 4*MinBlockSize {
		return nil, errors.Errorf("chunk size %d cannot hold the heap sentinels and a minimum block", chunk)
	}
	if config.ShrinkThreshold != 0 && config.ShrinkThreshold < MinBlockSize {
		return nil, errors.Errorf("shrink threshold %d is smaller than the minimum block size %d", config.ShrinkThreshold, MinBlockSize)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Heap{
		seg:             seg,
		chunk:           chunk,
		shrinkThreshold: config.ShrinkThreshold,
		log:             logger,
		verbosity:       config.LogLevel,
	}

	switch config.Policy {
	case PolicyImplicit:
		h.locator = &implicitLocator{h: h}
	case PolicyExplicit:
		h.locator = &explicitLocator{h: h}
	default:
		return nil, errors.Errorf("unsupported free list policy %d", uint32(config.Policy))
	}

	start, brk := seg.Stat()
	if start != brk {
		return nil, errors.Errorf("data segment is not clean: start %d, break %d", start, brk)
	}
	h.page = seg.PageSize()
	if h.page <= 0 {
		return nil, errors.Errorf("provider reported page size %d", h.page)
	}

	initSize := memmgr.AlignUp(chunk, uint(h.page))
	base, err := seg.Extend(initSize)
	if err != nil {
		return nil, errors.Wrap(err, "initial heap growth failed")
	}
	h.mem = seg.Bytes()

	h.start = base + 4*wordSize
	h.end = base + initSize - 4*wordSize

	// Leading sentinel footer just below the first block, end sentinel header
	// at the top. Both are permanently allocated half-blocks of size 0.
	h.setWord(h.start-wordSize, pack(0, true))
	h.setWord(h.end, pack(0, true))

	h.setTags(h.start, h.end-h.start, false)
	h.locator.add(h.start)

	h.logInfo("heap initialized",
		slog.String("policy", config.Policy.String()),
		slog.Int("start", h.start),
		slog.Int("end", h.end),
		slog.Int("page_size", h.page))

	return h, nil
}

// Allocate reserves size bytes and returns the payload offset, or NoBlock if
// size is zero or the data segment cannot grow to serve the request. It never
// panics for out-of-memory.
func (h *Heap) Allocate(size int) int {
	h.logInfo("allocate", slog.Int("size", size))
	memmgr.DebugValidate(h)

	if size <= 0 {
		return NoBlock
	}

	needed := blockSizeFor(size)
	block := h.locator.find(needed)
	if block == NoBlock {
		grow := needed
		if grow < h.chunk {
			grow = h.chunk
		}
		if err := h.extendHeap(grow); err != nil {
			h.logInfo("allocation failed, data segment exhausted",
				slog.Int("size", size), slog.String("err", err.Error()))
			return NoBlock
		}
		// The heap just grew by at least the rounded request, so this second
		// search only misses if the provider misbehaved.
		block = h.locator.find(needed)
		if block == NoBlock {
			return NoBlock
		}
	}

	h.placeBlock(block, needed)
	return block + wordSize
}

// AllocateZeroed reserves count*size bytes with the payload zero-filled. It
// returns NoBlock if either factor is zero, the product overflows, or the
// allocation fails.
func (h *Heap) AllocateZeroed(count, size int) int {
	h.logInfo("allocate zeroed", slog.Int("count", count), slog.Int("size", size))

	if count <= 0 || size <= 0 {
		return NoBlock
	}
	hi, total := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || total > uint64(math.MaxInt) {
		return NoBlock
	}

	ptr := h.Allocate(int(total))
	if ptr == NoBlock {
		return NoBlock
	}

	// The payload may hold stale data or old free-list links
	clear(h.mem[ptr : ptr+int(total)])
	return ptr
}

// Release returns the block behind the given payload offset to the heap,
// merging it with free neighbors immediately.
//
// Precondition: ptr was returned by Allocate/AllocateZeroed/Resize of this
// heap and has not been released since. Violations (double release, foreign
// pointers) are undefined behavior, not checked errors.
func (h *Heap) Release(ptr int) {
	h.logInfo("release", slog.Int("ptr", ptr))

	block := ptr - wordSize
	size := h.blockSize(block)
	h.setTags(block, size, false)
	h.allocCount--

	block = h.coalesce(block)
	h.locator.add(block)
	h.maybeShrink()

	memmgr.DebugValidate(h)
}

// Resize grows or shrinks an allocation. Resize(NoBlock, n) is Allocate(n);
// Resize(ptr, 0) releases ptr and returns NoBlock. Otherwise the block is
// resized in place when possible, or moved (payload copied) to a fresh
// allocation. On allocation failure NoBlock is returned and the old block is
// left intact and still allocated.
func (h *Heap) Resize(ptr, size int) int {
	h.logInfo("resize", slog.Int("ptr", ptr), slog.Int("size", size))

	if ptr == NoBlock {
		return h.Allocate(size)
	}
	if size <= 0 {
		h.Release(ptr)
		return NoBlock
	}

	block := ptr - wordSize
	oldSize := h.blockSize(block)
	needed := blockSizeFor(size)

	if needed <= oldSize {
		// Shrink in place when the cut-off tail is a usable block
		if oldSize-needed >= MinBlockSize {
			h.setTags(block, needed, true)
			rest := block + needed
			h.setTags(rest, oldSize-needed, false)
			rest = h.coalesce(rest)
			h.locator.add(rest)
			h.maybeShrink()
			h.logDebug("resize shrank block in place",
				slog.Int("block", block), slog.Int("old_size", oldSize), slog.Int("size", needed))
		}
		return ptr
	}

	// Grow in place when the successor is free and covers the difference
	next := block + oldSize
	if !h.blockAllocated(next) && oldSize+h.blockSize(next) >= needed {
		combined := oldSize + h.blockSize(next)
		h.locator.remove(next)
		if combined-needed >= MinBlockSize {
			h.setTags(block, needed, true)
			rest := block + needed
			h.setTags(rest, combined-needed, false)
			h.locator.add(rest)
		} else {
			h.setTags(block, combined, true)
		}
		h.logDebug("resize grew block in place",
			slog.Int("block", block), slog.Int("old_size", oldSize), slog.Int("size", h.blockSize(block)))
		return ptr
	}

	newPtr := h.Allocate(size)
	if newPtr == NoBlock {
		return NoBlock
	}

	n := oldSize - tagOverhead
	if size < n {
		n = size
	}
	copy(h.mem[newPtr:newPtr+n], h.mem[ptr:ptr+n])
	h.Release(ptr)
	return newPtr
}

// SetLogLevel adjusts diagnostic verbosity: 0 off, 1 operations, 2 verbose.
// It has no functional effect.
func (h *Heap) SetLogLevel(level int) {
	h.verbosity = level
}

// Policy reports the free-block discovery policy the heap was built with
func (h *Heap) Policy() Policy {
	return h.locator.policy()
}

// AllocationCount returns the number of live allocations: successful
// allocations minus releases.
func (h *Heap) AllocationCount() int {
	return h.allocCount
}

// IsEmpty reports whether the heap has no live allocations
func (h *Heap) IsEmpty() bool {
	return h.allocCount == 0
}

// HeapBytes returns the size of the managed extent between the sentinels
func (h *Heap) HeapBytes() int {
	return h.end - h.start
}

// FreeBytes returns the total bytes held in free blocks. It walks the heap.
func (h *Heap) FreeBytes() int {
	total := 0
	for block := h.start; block < h.end; block = h.nextBlock(block) {
		if !h.blockAllocated(block) {
			total += h.blockSize(block)
		}
	}
	return total
}

// PayloadBytes reports the usable capacity behind a payload offset, which may
// exceed the requested size due to block granularity
func (h *Heap) PayloadBytes(ptr int) int {
	return h.blockSize(ptr-wordSize) - tagOverhead
}

// Bytes returns the payload of a live allocation as a slice. The slice is
// only valid until the next heap operation, since the region may move or
// shrink under it.
func (h *Heap) Bytes(ptr int) []byte {
	return h.mem[ptr : ptr+h.PayloadBytes(ptr)]
}

// VisitAllBlocks calls fn for every block between the sentinels in address
// order. The callback must not mutate the heap.
func (h *Heap) VisitAllBlocks(fn func(offset, size int, free bool) error) error {
	for block := h.start; block < h.end; block = h.nextBlock(block) {
		size := h.blockSize(block)
		if size == 0 {
			panic(fmt.Sprintf("zero-size block at offset %d while walking the heap", block))
		}
		if err := fn(block, size, !h.blockAllocated(block)); err != nil {
			return err
		}
	}
	return nil
}

// AddStatistics sums this heap's accounting into the provided statistics
func (h *Heap) AddStatistics(stats *memmgr.Statistics) {
	stats.HeapBytes += h.HeapBytes()
	stats.AllocationCount += h.allocCount

	_ = h.VisitAllBlocks(func(offset, size int, free bool) error {
		if free {
			stats.FreeRegionCount++
		} else {
			stats.AllocationBytes += size
		}
		return nil
	})
}

// AddDetailedStatistics sums this heap's accounting, including size extremes,
// into the provided statistics
func (h *Heap) AddDetailedStatistics(stats *memmgr.DetailedStatistics) {
	stats.HeapBytes += h.HeapBytes()

	_ = h.VisitAllBlocks(func(offset, size int, free bool) error {
		if free {
			stats.AddFreeRegion(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// placeBlock converts the free block at the given offset into an allocated
// block of needed bytes, splitting off the remainder as a new free block when
// it is large enough to stand alone.
func (h *Heap) placeBlock(block, needed int) {
	size := h.blockSize(block)
	if size < needed {
		panic(fmt.Sprintf("located block at offset %d has %d bytes, need %d", block, size, needed))
	}

	h.locator.remove(block)

	if size-needed >= MinBlockSize {
		h.setTags(block, needed, true)
		rest := block + needed
		h.setTags(rest, size-needed, false)
		h.locator.add(rest)
		h.logDebug("split block",
			slog.Int("block", block), slog.Int("size", needed), slog.Int("remainder", size-needed))
	} else {
		// Remainder would be an unusable fragment; hand out the whole block
		h.setTags(block, size, true)
	}

	h.allocCount++
}

// extendHeap grows the data segment by at least n bytes (rounded up to the
// provider's page size), formats the new extent as one free block in place of
// the old end sentinel, and coalesces it with a free block at the old top of
// the heap.
func (h *Heap) extendHeap(n int) error {
	n = memmgr.AlignUp(n, uint(h.page))

	oldBrk, err := h.seg.Extend(n)
	if err != nil {
		return err
	}
	if oldBrk != h.end+4*wordSize {
		panic(fmt.Sprintf("data segment break %d does not line up with heap end %d", oldBrk, h.end))
	}
	h.mem = h.seg.Bytes()

	block := h.end
	h.end += n
	h.setWord(h.end, pack(0, true))
	h.setTags(block, n, false)

	block = h.coalesce(block)
	h.locator.add(block)

	h.logDebug("extended heap", slog.Int("bytes", n), slog.Int("end", h.end))
	return nil
}

// coalesce merges the free block at the given offset with its free neighbors
// and returns the offset of the merged block. Merged neighbors are removed
// from the free list; the caller is responsible for adding the result.
func (h *Heap) coalesce(block int) int {
	size := h.blockSize(block)
	prevAllocated := tagAllocated(h.word(block - wordSize))
	next := block + size
	nextAllocated := tagAllocated(h.word(next))

	if prevAllocated && nextAllocated {
		return block
	}

	if !nextAllocated {
		h.locator.remove(next)
		size += h.blockSize(next)
	}
	if !prevAllocated {
		prev := h.prevBlock(block)
		h.locator.remove(prev)
		size += h.blockSize(prev)
		block = prev
	}

	h.setTags(block, size, false)
	h.logDebug("coalesced block", slog.Int("block", block), slog.Int("size", size))
	return block
}

// maybeShrink returns the excess of an oversized top-of-heap free block to
// the provider. Best effort: disabled without a threshold or a trimming
// provider, and trim failures are logged and ignored.
func (h *Heap) maybeShrink() {
	if h.shrinkThreshold <= 0 {
		return
	}
	trimmer, ok := h.seg.(dataseg.Trimmer)
	if !ok {
		return
	}

	topFooter := h.word(h.end - wordSize)
	if tagAllocated(topFooter) {
		return
	}
	size := tagSize(topFooter)
	top := h.end - size

	excess := memmgr.AlignDown(size-h.shrinkThreshold, MinBlockSize)
	if excess <= 0 {
		return
	}

	h.locator.remove(top)
	if err := trimmer.Trim(excess); err != nil {
		h.logInfo("heap shrink failed", slog.String("err", err.Error()))
		h.locator.add(top)
		return
	}
	h.mem = h.seg.Bytes()
	h.end -= excess
	h.setTags(top, size-excess, false)
	h.setWord(h.end, pack(0, true))
	h.locator.add(top)

	h.logDebug("shrank heap", slog.Int("bytes", excess), slog.Int("end", h.end))
}

func (h *Heap) logInfo(msg string, args ...any) {
	if h.verbosity >= 1 {
		h.log.Info(msg, args...)
	}
}

func (h *Heap) logDebug(msg string, args ...any) {
	if h.verbosity >= 2 {
		h.log.Debug(msg, args...)
	}
}
