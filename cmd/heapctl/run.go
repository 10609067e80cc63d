package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/heapcraft/memmgr"
	"github.com/heapcraft/memmgr/heap"
)

func newRunCmd(config *heapConfiguration) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "run [trace file]",
		Short: "Execute an allocation trace against a fresh heap and print its accounting",
		Long: `Executes an allocation trace against a freshly initialized heap and prints
the resulting accounting. Reads the trace from the given file, or from stdin
when no file is named.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readTrace(args)
			if err != nil {
				return err
			}

			h, err := config.buildHeap()
			if err != nil {
				return err
			}
			if err := ops.execute(h); err != nil {
				return err
			}

			printStatistics(cmd.OutOrStdout(), h)

			if dump {
				return dumpHeap(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "also print a JSON dump of the final heap layout")
	return cmd
}

func newCheckCmd(config *heapConfiguration) *cobra.Command {
	return &cobra.Command{
		Use:   "check [trace file]",
		Short: "Execute an allocation trace and verify heap consistency",
		Long: `Executes an allocation trace and then runs the full consistency checker.
Exits non-zero if the trace fails or the final heap is corrupt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readTrace(args)
			if err != nil {
				return err
			}

			h, err := config.buildHeap()
			if err != nil {
				return err
			}
			if err := ops.execute(h); err != nil {
				return err
			}
			if err := h.Check(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "heap is consistent")
			return nil
		},
	}
}

func readTrace(args []string) (trace, error) {
	if len(args) == 0 {
		return parseTrace(os.Stdin)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	return parseTrace(f)
}

func printStatistics(out io.Writer, h *heap.Heap) {
	var stats memmgr.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	fmt.Fprintf(out, "policy:            %s\n", h.Policy())
	fmt.Fprintf(out, "heap bytes:        %d\n", stats.HeapBytes)
	fmt.Fprintf(out, "allocations:       %d (%d bytes)\n", stats.AllocationCount, stats.AllocationBytes)
	fmt.Fprintf(out, "free regions:      %d (%d bytes)\n", stats.FreeRegionCount, h.FreeBytes())
	if stats.AllocationCount > 0 {
		fmt.Fprintf(out, "allocation sizes:  %d .. %d\n", stats.AllocationSizeMin, stats.AllocationSizeMax)
	}
	if stats.FreeRegionCount > 0 && stats.FreeRegionSizeMin != math.MaxInt {
		fmt.Fprintf(out, "free region sizes: %d .. %d\n", stats.FreeRegionSizeMin, stats.FreeRegionSizeMax)
	}
}

func dumpHeap(out io.Writer, h *heap.Heap) error {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	h.DumpJson(obj)
	obj.End()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("building heap dump: %w", err)
	}

	_, err := out.Write(append(writer.Bytes(), '\n'))
	return err
}
