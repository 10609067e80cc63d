package dataseg

import "github.com/pkg/errors"

// segmentPageSize is the granularity Segment reports. It does not need to
// match the OS page size since the backing store is an ordinary slice, but a
// realistic value keeps heap growth behavior identical to the mapped provider.
const segmentPageSize = 4096

// Segment is a Provider backed by an owned, growable byte slice. It is the
// default provider: cheap, portable, and safe to construct one per test.
//
// A limit of zero means the segment may grow until the process runs out of
// memory; a positive limit caps the region at that many bytes and makes
// Extend return ErrOutOfMemory beyond it.
type Segment struct {
	buf   []byte
	limit int
}

var _ Provider = &Segment{}
var _ Trimmer = &Segment{}

// NewSegment creates an empty Segment capped at limit bytes (0 for uncapped).
func NewSegment(limit int) *Segment {
	return &Segment{limit: limit}
}

func (s *Segment) Extend(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Errorf("extend size must be positive, got %d", n)
	}

	brk := len(s.buf)
	if s.limit > 0 && brk+n > s.limit {
		return 0, errors.Wrapf(ErrOutOfMemory, "break %d + request %d exceeds limit %d", brk, n, s.limit)
	}

	s.buf = append(s.buf, make([]byte, n)...)
	return brk, nil
}

func (s *Segment) Trim(n int) error {
	if n < 0 || n > len(s.buf) {
		return errors.Errorf("cannot trim %d bytes from a %d byte segment", n, len(s.buf))
	}

	s.buf = s.buf[:len(s.buf)-n]
	return nil
}

func (s *Segment) Stat() (start, brk int) {
	return 0, len(s.buf)
}

func (s *Segment) PageSize() int {
	return segmentPageSize
}

func (s *Segment) Bytes() []byte {
	return s.buf
}
