package cache

import (
	"fmt"
	"io"

	"github.com/meigma/cdfs/internal/sector"
)

// Reader serves byte spans of an archive through a bounded read-ahead
// window. Fetches happen in ascending LBA order, at most the budgeted
// sector count at a time; a window is evicted as soon as it has been
// consumed. Only one span is active at a time.
type Reader struct {
	src  io.ReaderAt
	geom sector.Geometry
	buf  []byte // budget sectors, allocated once
}

// NewReader creates a read-ahead reader over src with the given byte
// budget (DefaultBudget when 0).
func NewReader(src io.ReaderAt, geom sector.Geometry, budget int64) (*Reader, error) {
	if budget == 0 {
		budget = DefaultBudget
	}
	n, err := sectors(budget, geom)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:  src,
		geom: geom,
		buf:  make([]byte, n*int(geom.Size())),
	}, nil
}

// Span returns a reader over length bytes starting at the given LBA. The
// final sector's tail beyond length is never surfaced. The returned reader
// borrows the cache window and is invalidated by the next Span call.
func (cr *Reader) Span(lba uint32, length uint64) io.Reader {
	return &spanReader{
		cache:     cr,
		off:       cr.geom.Offset(lba),
		remaining: length,
	}
}

// spanReader streams one File Span through the shared window.
type spanReader struct {
	cache     *Reader
	off       int64  // archive offset of the next unfetched byte
	remaining uint64 // bytes not yet surfaced
	window    []byte // unread slice of the current window
}

func (s *spanReader) Read(p []byte) (int, error) {
	if s.remaining == 0 {
		return 0, io.EOF
	}
	if len(s.window) == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.window)
	s.window = s.window[n:]
	s.remaining -= uint64(n)
	if s.remaining == 0 {
		s.window = nil // evict: the span is fully consumed
	}
	return n, nil
}

// fill fetches the next window: up to the budgeted sector count, but never
// past the span's declared length, so a trailing partial sector on a
// foreign archive does not fault the read.
func (s *spanReader) fill() error {
	want := uint64(len(s.cache.buf))
	if s.remaining < want {
		want = s.remaining
	}
	buf := s.cache.buf[:want]
	if _, err := io.ReadFull(io.NewSectionReader(s.cache.src, s.off, int64(want)), buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("cdfs: archive truncated at offset %d: %w", s.off, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("cdfs: read at offset %d: %w", s.off, err)
	}
	s.off += int64(want)
	s.window = buf
	return nil
}
