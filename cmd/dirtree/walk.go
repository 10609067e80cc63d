package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/message"
)

const (
	nameWidth  = 54
	userWidth  = 8
	groupWidth = 8

	summaryHeader = "Name                                                        User:Group           Size     Perms Type"
	summaryRule   = "----------------------------------------------------------------------------------------------------"
)

type options struct {
	dirOnly bool
	summary bool
	verbose bool
}

// summary accumulates counts over one directory tree
type summary struct {
	dirs  int
	files int
	links int
	fifos int
	socks int
	size  int64
}

func (s *summary) add(other *summary) {
	s.dirs += other.dirs
	s.files += other.files
	s.links += other.links
	s.fifos += other.fifos
	s.socks += other.socks
	s.size += other.size
}

type walker struct {
	out    io.Writer
	opts   *options
	stats  summary
	owners *ownerCache
}

// processDir lists the entries of dn sorted directories-first-by-name,
// indented two spaces per tree level, and recurses into subdirectories.
func (w *walker) processDir(dn string, depth int) error {
	entries, err := os.ReadDir(dn)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to get file information: %w", err)
		}

		if entry.IsDir() {
			w.stats.dirs++
			w.printEntry(entry.Name(), depth, info)
			if err := w.processDir(filepath.Join(dn, entry.Name()), depth+1); err != nil {
				return err
			}
			continue
		}

		switch info.Mode().Type() {
		case 0:
			w.stats.files++
			w.stats.size += info.Size()
		case fs.ModeSymlink:
			w.stats.links++
		case fs.ModeNamedPipe:
			w.stats.fifos++
		case fs.ModeSocket:
			w.stats.socks++
		}

		if w.opts.dirOnly {
			continue
		}
		w.printEntry(entry.Name(), depth, info)
	}

	return nil
}

func (w *walker) printEntry(name string, depth int, info fs.FileInfo) {
	fmt.Fprintf(w.out, "%-*s", nameWidth, limitName(strings.Repeat("  ", depth)+name, nameWidth))

	if w.opts.verbose {
		user, group := w.owners.lookup(info)
		fmt.Fprintf(w.out, "  %*s:%-*s %10d %9s %s",
			userWidth, limit(user, userWidth),
			groupWidth, limit(group, groupWidth),
			info.Size(),
			info.Mode().Perm().String()[1:],
			typeLetter(info.Mode()))
	}

	fmt.Fprintln(w.out)
}

// limitName truncates an indented name to the column width with a trailing
// ellipsis, matching the fixed-width tree layout.
func limitName(name string, width int) string {
	if len(name) > width {
		return name[:width-3] + "..."
	}
	return name
}

func limit(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}

func typeLetter(mode fs.FileMode) string {
	switch mode.Type() {
	case 0:
		return " "
	case fs.ModeDir:
		return "d"
	case fs.ModeSymlink:
		return "l"
	case fs.ModeNamedPipe:
		return "f"
	case fs.ModeSocket:
		return "s"
	case fs.ModeDevice | fs.ModeCharDevice:
		return "c"
	case fs.ModeDevice:
		return "b"
	default:
		return "?"
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// print writes the per-tree summary line: entry counts with the total file
// size right-aligned in the size column under verbose output.
func (s *summary) print(out io.Writer, printer *message.Printer, opts *options) {
	if opts.dirOnly {
		fmt.Fprintf(out, "%d director%s\n", s.dirs, plural(s.dirs, "y", "ies"))
		return
	}

	line := fmt.Sprintf("%d file%s, %d director%s, %d link%s, %d pipe%s, and %d socket%s",
		s.files, plural(s.files, "", "s"),
		s.dirs, plural(s.dirs, "y", "ies"),
		s.links, plural(s.links, "", "s"),
		s.fifos, plural(s.fifos, "", "s"),
		s.socks, plural(s.socks, "", "s"))
	if opts.verbose {
		printer.Fprintf(out, "%-68s%14d\n", line, s.size)
		return
	}
	fmt.Fprintln(out, line)
}

func (s *summary) printGrandTotal(out io.Writer, printer *message.Printer, ndirs int, verbose bool) {
	printer.Fprintf(out, "Analyzed %d directories:\n", ndirs)
	printer.Fprintf(out, "  total # of files:        %16d\n", s.files)
	printer.Fprintf(out, "  total # of directories:  %16d\n", s.dirs)
	printer.Fprintf(out, "  total # of links:        %16d\n", s.links)
	printer.Fprintf(out, "  total # of pipes:        %16d\n", s.fifos)
	printer.Fprintf(out, "  total # of sockets:      %16d\n", s.socks)
	if verbose {
		printer.Fprintf(out, "  total file size:         %16d\n", s.size)
	}
}
