// Package cache provides bounded, sector-granular buffering over the
// archive byte stream. The cache is the sole owner of the underlying
// stream for the duration of an operation: writers stage whole sectors and
// flush them in ascending LBA order, readers fetch ahead in ascending
// order and evict sectors once consumed. A sector is written whole or not
// at all.
package cache

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/cdfs/internal/sector"
)

// DefaultBudget is the default cache size in bytes, matching the original
// tool's 128 KiB recommendation.
const DefaultBudget = 128 << 10

// ErrBudget is returned when a cache byte budget is negative.
var ErrBudget = errors.New("cdfs: invalid cache size")

// ErrClosed is returned when writing to a closed writer.
var ErrClosed = errors.New("cdfs: write to closed sector cache")

// sectors translates a byte budget into a resident sector count, minimum
// one sector.
func sectors(budget int64, geom sector.Geometry) (int, error) {
	if budget < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBudget, budget)
	}
	n := int(budget / int64(geom.Size()))
	if n < 1 {
		n = 1
	}
	return n, nil
}

// Writer stages sector writes in a bounded buffer and flushes them to the
// underlying stream in ascending LBA order. Archives are built with
// monotonically increasing LBAs, so the buffer drains FIFO: when the
// staged sectors reach the budget, the whole window is written out.
//
// Errors are sticky: after any underlying write failure the writer stops
// accepting data and every later call reports the original error, leaving
// the output stream without a partially written sector.
type Writer struct {
	w      io.Writer
	geom   sector.Geometry
	buf    []byte // budget sectors, allocated once
	fill   int    // bytes staged in buf
	base   uint32 // LBA of buf[0]
	closed bool
	err    error
}

// NewWriter creates a sector-staging writer over w with the given byte
// budget (DefaultBudget when 0).
func NewWriter(w io.Writer, geom sector.Geometry, budget int64) (*Writer, error) {
	if budget == 0 {
		budget = DefaultBudget
	}
	n, err := sectors(budget, geom)
	if err != nil {
		return nil, err
	}
	return &Writer{
		w:    w,
		geom: geom,
		buf:  make([]byte, n*int(geom.Size())),
	}, nil
}

// LBA returns the sector index where the next written byte lands.
func (cw *Writer) LBA() uint32 {
	return cw.base + uint32(cw.fill/int(cw.geom.Size()))
}

// Aligned reports whether the write position is on a sector boundary.
func (cw *Writer) Aligned() bool {
	return cw.fill%int(cw.geom.Size()) == 0
}

// Write stages p into the cache, draining full windows to the underlying
// stream as they complete.
func (cw *Writer) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	if cw.closed {
		return 0, ErrClosed
	}
	written := 0
	for len(p) > 0 {
		n := copy(cw.buf[cw.fill:], p)
		cw.fill += n
		p = p[n:]
		written += n
		if cw.fill == len(cw.buf) {
			if err := cw.drain(len(cw.buf)); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Pad zero-fills the current partial sector up to the next boundary. It is
// a no-op when the position is already aligned.
func (cw *Writer) Pad() error {
	if cw.err != nil {
		return cw.err
	}
	if cw.closed {
		return ErrClosed
	}
	size := int(cw.geom.Size())
	rem := cw.fill % size
	if rem == 0 {
		return nil
	}
	zeros := cw.buf[cw.fill : cw.fill+size-rem]
	for i := range zeros {
		zeros[i] = 0
	}
	cw.fill += size - rem
	if cw.fill == len(cw.buf) {
		return cw.drain(len(cw.buf))
	}
	return nil
}

// drain writes the first n staged bytes (a whole number of sectors) to the
// underlying stream and slides the window.
func (cw *Writer) drain(n int) error {
	if n == 0 {
		return nil
	}
	if _, err := cw.w.Write(cw.buf[:n]); err != nil {
		cw.err = fmt.Errorf("cdfs: flush sectors %d..%d: %w", cw.base, cw.base+uint32(n/int(cw.geom.Size())), err)
		return cw.err
	}
	copy(cw.buf, cw.buf[n:cw.fill])
	cw.fill -= n
	cw.base += uint32(n / int(cw.geom.Size()))
	return nil
}

// Close pads the final partial sector and flushes everything staged. It
// must be called on every exit path; it is safe to call more than once and
// returns the sticky error, so a deferred Close cannot silently truncate
// the output.
func (cw *Writer) Close() error {
	if cw.closed {
		return cw.err
	}
	cw.closed = true
	if cw.err != nil {
		return cw.err
	}
	size := int(cw.geom.Size())
	if rem := cw.fill % size; rem != 0 {
		zeros := cw.buf[cw.fill : cw.fill+size-rem]
		for i := range zeros {
			zeros[i] = 0
		}
		cw.fill += size - rem
	}
	return cw.drain(cw.fill)
}
