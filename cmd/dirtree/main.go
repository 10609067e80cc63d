// dirtree recursively traverses directory trees and lists their entries,
// directories first, with optional per-entry detail and per-tree summaries.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if err := newDirtreeCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dirtree: %v\n", err)
		os.Exit(1)
	}
}

func newDirtreeCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dirtree [path...]",
		Short: "Gather information about directory trees",
		Long: `Gather information about directory trees. If no path is given, the current
directory is analyzed.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			return run(cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.dirOnly, "dironly", "d", false, "print directories only")
	cmd.Flags().BoolVarP(&opts.summary, "summary", "s", false, "print a summary for each directory tree")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print detailed information for each entry")

	return cmd
}

func run(out io.Writer, paths []string, opts *options) error {
	printer := message.NewPrinter(language.English)
	var total summary

	for _, path := range paths {
		w := &walker{out: out, opts: opts, owners: newOwnerCache()}

		if opts.summary {
			fmt.Fprintln(out, summaryHeader)
			fmt.Fprintln(out, summaryRule)
		}

		fmt.Fprintln(out, path)
		if err := w.processDir(path, 1); err != nil {
			return err
		}

		if opts.summary {
			fmt.Fprintln(out, summaryRule)
			w.stats.print(out, printer, opts)
			fmt.Fprintln(out)
		}

		total.add(&w.stats)
	}

	if opts.summary && len(paths) > 1 {
		total.printGrandTotal(out, printer, len(paths), opts.verbose)
	}

	return nil
}
