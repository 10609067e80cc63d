package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heapcraft/memmgr/dataseg"
	"github.com/heapcraft/memmgr/heap"
)

func TestParseTrace(t *testing.T) {
	input := `
# warm up
a 1 128
z 2 10 8   # zeroed
r 1 256
f 2
k
`
	ops, err := parseTrace(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, trace{
		{op: 'a', id: 1, size: 128, line: 3},
		{op: 'z', id: 2, count: 10, size: 8, line: 4},
		{op: 'r', id: 1, size: 256, line: 5},
		{op: 'f', id: 2, line: 6},
		{op: 'k', line: 7},
	}, ops)
}

func TestParseTraceRejectsMalformedLines(t *testing.T) {
	for _, input := range []string{
		"q 1 128",   // unknown op
		"a 1",       // missing size
		"a 1 2 3",   // extra argument
		"a one 128", // non-numeric id
		"alloc 1 4", // multi-char op
	} {
		_, err := parseTrace(strings.NewReader(input))
		require.Errorf(t, err, "input %q", input)
	}
}

func TestExecuteTrace(t *testing.T) {
	ops, err := parseTrace(strings.NewReader(`
a 1 100
a 2 200
k
f 1
r 2 50
k
f 2
k
`))
	require.NoError(t, err)

	h, err := heap.New(dataseg.NewSegment(0), heap.Config{})
	require.NoError(t, err)

	require.NoError(t, ops.execute(h))
	require.True(t, h.IsEmpty())
}

func TestExecuteTraceRejectsUnknownIdentifier(t *testing.T) {
	ops, err := parseTrace(strings.NewReader("f 7"))
	require.NoError(t, err)

	h, err := heap.New(dataseg.NewSegment(0), heap.Config{})
	require.NoError(t, err)

	require.ErrorContains(t, ops.execute(h), "not allocated")
}

func TestExecuteTraceReportsExhaustion(t *testing.T) {
	ops, err := parseTrace(strings.NewReader("a 1 1048576"))
	require.NoError(t, err)

	h, err := heap.New(dataseg.NewSegment(65536), heap.Config{})
	require.NoError(t, err)

	require.ErrorContains(t, ops.execute(h), "failed")
}
