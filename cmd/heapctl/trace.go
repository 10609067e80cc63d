package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/heapcraft/memmgr/heap"
)

// A trace is a list of allocator operations replayed against a heap. The text
// format is line oriented, one operation per line, '#' starts a comment:
//
//	a <id> <size>          allocate <size> bytes, remember as <id>
//	z <id> <count> <size>  allocate <count>*<size> zeroed bytes as <id>
//	r <id> <size>          resize <id> to <size> bytes
//	f <id>                 release <id>
//	k                      run the consistency checker
//
// Identifiers are arbitrary non-negative integers chosen by the trace author.
type trace []traceOp

type traceOp struct {
	op    byte
	id    int
	size  int
	count int
	line  int
}

func parseTrace(r io.Reader) (trace, error) {
	var ops trace

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		op := traceOp{line: line}
		if len(fields[0]) != 1 {
			return nil, fmt.Errorf("line %d: unknown operation %q", line, fields[0])
		}
		op.op = fields[0][0]

		var argNames []string
		var args []*int
		switch op.op {
		case 'a', 'r':
			argNames, args = []string{"id", "size"}, []*int{&op.id, &op.size}
		case 'z':
			argNames, args = []string{"id", "count", "size"}, []*int{&op.id, &op.count, &op.size}
		case 'f':
			argNames, args = []string{"id"}, []*int{&op.id}
		case 'k':
		default:
			return nil, fmt.Errorf("line %d: unknown operation %q", line, fields[0])
		}

		if len(fields)-1 != len(args) {
			return nil, fmt.Errorf("line %d: operation %q takes %d arguments, got %d",
				line, op.op, len(args), len(fields)-1)
		}
		for i, arg := range args {
			value, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s %q", line, argNames[i], fields[i+1])
			}
			*arg = value
		}

		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}

	return ops, nil
}

// execute replays the trace against the heap. It fails on the first
// out-of-memory result, unknown identifier, or checker error.
func (t trace) execute(h *heap.Heap) error {
	ptrs := map[int]int{}

	for _, op := range t {
		switch op.op {
		case 'a', 'z':
			if _, live := ptrs[op.id]; live {
				return fmt.Errorf("line %d: identifier %d is already allocated", op.line, op.id)
			}
			var ptr int
			if op.op == 'a' {
				ptr = h.Allocate(op.size)
			} else {
				ptr = h.AllocateZeroed(op.count, op.size)
			}
			if ptr == heap.NoBlock {
				return fmt.Errorf("line %d: allocation of identifier %d failed", op.line, op.id)
			}
			ptrs[op.id] = ptr

		case 'r':
			ptr, live := ptrs[op.id]
			if !live {
				return fmt.Errorf("line %d: identifier %d is not allocated", op.line, op.id)
			}
			newPtr := h.Resize(ptr, op.size)
			if newPtr == heap.NoBlock && op.size > 0 {
				return fmt.Errorf("line %d: resize of identifier %d to %d bytes failed", op.line, op.id, op.size)
			}
			if op.size > 0 {
				ptrs[op.id] = newPtr
			} else {
				delete(ptrs, op.id)
			}

		case 'f':
			ptr, live := ptrs[op.id]
			if !live {
				return fmt.Errorf("line %d: identifier %d is not allocated", op.line, op.id)
			}
			h.Release(ptr)
			delete(ptrs, op.id)

		case 'k':
			if err := h.Check(); err != nil {
				return fmt.Errorf("line %d: %w", op.line, err)
			}
		}
	}

	return nil
}
