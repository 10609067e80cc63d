//go:build unix

package dataseg

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mapping is a Provider backed by an anonymous memory mapping. The full
// reservation is mapped PROT_NONE up front so the region never moves; Extend
// commits pages by flipping their protection to read/write and Trim hands
// fully-unused pages back to the kernel.
//
// Mapping exists for hosts that want real demand-paged memory behind the
// heap. Everything else (including the tests) should prefer Segment.
type Mapping struct {
	mem  []byte
	brk  int
	page int
}

var _ Provider = &Mapping{}
var _ Trimmer = &Mapping{}

// NewMapping reserves reserve bytes of address space. The reservation is the
// hard growth limit for the mapping's lifetime.
func NewMapping(reserve int) (*Mapping, error) {
	page := unix.Getpagesize()
	if reserve <= 0 || reserve%page != 0 {
		return nil, errors.Errorf("reservation must be a positive multiple of the %d byte page size, got %d", page, reserve)
	}

	mem, err := unix.Mmap(-1, 0, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reserve %d bytes of address space", reserve)
	}

	return &Mapping{mem: mem, page: page}, nil
}

func (m *Mapping) Extend(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Errorf("extend size must be positive, got %d", n)
	}
	if m.brk+n > len(m.mem) {
		return 0, errors.Wrapf(ErrOutOfMemory, "break %d + request %d exceeds the %d byte reservation", m.brk, n, len(m.mem))
	}

	// Commit every page the grown region touches. Re-protecting pages that
	// are already read/write is harmless.
	lo := m.brk &^ (m.page - 1)
	hi := (m.brk + n + m.page - 1) &^ (m.page - 1)
	if err := unix.Mprotect(m.mem[lo:hi], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return 0, errors.Wrap(err, "failed to commit pages for region growth")
	}

	brk := m.brk
	m.brk += n
	return brk, nil
}

func (m *Mapping) Trim(n int) error {
	if n < 0 || n > m.brk {
		return errors.Errorf("cannot trim %d bytes from a %d byte region", n, m.brk)
	}

	newBrk := m.brk - n

	// Only pages that lie entirely above the new break can be released; a
	// page straddling the break stays committed.
	lo := (newBrk + m.page - 1) &^ (m.page - 1)
	hi := (m.brk + m.page - 1) &^ (m.page - 1)
	if lo < hi {
		if err := unix.Madvise(m.mem[lo:hi], unix.MADV_DONTNEED); err != nil {
			return errors.Wrap(err, "failed to release trimmed pages")
		}
		if err := unix.Mprotect(m.mem[lo:hi], unix.PROT_NONE); err != nil {
			return errors.Wrap(err, "failed to re-protect trimmed pages")
		}
	}

	m.brk = newBrk
	return nil
}

func (m *Mapping) Stat() (start, brk int) {
	return 0, m.brk
}

func (m *Mapping) PageSize() int {
	return m.page
}

func (m *Mapping) Bytes() []byte {
	return m.mem[:m.brk]
}

// Close unmaps the reservation. The Mapping must not be used afterward.
func (m *Mapping) Close() error {
	err := unix.Munmap(m.mem)
	m.mem = nil
	m.brk = 0
	return err
}
