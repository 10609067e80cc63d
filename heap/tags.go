package heap

import (
	"encoding/binary"
	"fmt"
)

const (
	// wordSize is the width in bytes of a heap word; every boundary tag and
	// free-list link occupies exactly one word
	wordSize = 8
	// tagOverhead is the bookkeeping cost of a block: one header and one
	// footer word
	tagOverhead = 2 * wordSize
	// MinBlockSize is the smallest legal block: header, footer, and two
	// payload words (which double as the free-list links of a free block).
	// All block sizes are multiples of MinBlockSize, which keeps the low
	// bits of every size clear for status flags.
	MinBlockSize = 32

	statusMask      uint64 = 0x7
	statusAllocated uint64 = 0x1
)

// NoBlock is the null payload pointer: returned for zero-size requests and
// when the heap is out of memory.
const NoBlock = -1

// pack encodes a block size and its allocation status into one tag word.
// Header and footer of a block carry identical tag words at all times.
func pack(size int, allocated bool) uint64 {
	if size&(MinBlockSize-1) != 0 {
		panic(fmt.Sprintf("block size %d is not a multiple of %d", size, MinBlockSize))
	}
	tag := uint64(size)
	if allocated {
		tag |= statusAllocated
	}
	return tag
}

func tagSize(tag uint64) int {
	return int(tag &^ statusMask)
}

func tagAllocated(tag uint64) bool {
	return tag&statusAllocated != 0
}

// word reads the heap word at the given byte offset. Out-of-region offsets
// fail the slice bounds check rather than reading foreign memory.
func (h *Heap) word(offset int) uint64 {
	return binary.LittleEndian.Uint64(h.mem[offset : offset+wordSize])
}

func (h *Heap) setWord(offset int, value uint64) {
	binary.LittleEndian.PutUint64(h.mem[offset:offset+wordSize], value)
}

// setTags rewrites the header and footer of the block at the given offset in
// one operation. Tag writes never go through setWord directly: a block whose
// header and footer disagree is corrupt by definition, so the two words are
// only ever written together.
func (h *Heap) setTags(block, size int, allocated bool) {
	tag := pack(size, allocated)
	h.setWord(block, tag)
	h.setWord(block+size-wordSize, tag)
}

func (h *Heap) blockSize(block int) int {
	return tagSize(h.word(block))
}

func (h *Heap) blockAllocated(block int) bool {
	return tagAllocated(h.word(block))
}

// nextBlock steps forward to the neighboring block (or the end sentinel)
func (h *Heap) nextBlock(block int) int {
	return block + h.blockSize(block)
}

// prevBlock steps backward using the preceding block's footer. Calling this
// on the first real block lands on the leading sentinel's footer, which
// reports size 0; callers check status before stepping.
func (h *Heap) prevBlock(block int) int {
	return block - tagSize(h.word(block-wordSize))
}

// Free-list links live in the first two payload words of a free block. An
// offset of 0 means "none": no block can ever start there since the region
// begins with the leading sentinel.

func (h *Heap) freeNext(block int) int {
	return int(h.word(block + wordSize))
}

func (h *Heap) setFreeNext(block, next int) {
	h.setWord(block+wordSize, uint64(next))
}

func (h *Heap) freePrev(block int) int {
	return int(h.word(block + 2*wordSize))
}

func (h *Heap) setFreePrev(block, prev int) {
	h.setWord(block+2*wordSize, uint64(prev))
}

// blockSizeFor computes the full block size needed to serve a payload request
func blockSizeFor(payload int) int {
	size := payload + tagOverhead
	size = (size + MinBlockSize - 1) &^ (MinBlockSize - 1)
	if size < MinBlockSize {
		size = MinBlockSize
	}
	return size
}
