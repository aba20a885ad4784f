// Package layout assigns logical block addresses to every entry of a CDFS
// archive. The metadata region (header plus directory table) comes first;
// file data follows on the next sector boundary, packed in input order.
// Metadata-before-data is fixed for format version 1 so the packer and
// unpacker stay symmetric.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/sector"
	"github.com/meigma/cdfs/internal/tree"
)

// ErrTooLarge is returned when the running high-water mark exceeds the
// 32-bit LBA address space.
var ErrTooLarge = errors.New("cdfs: archive exceeds addressable sector count")

// Input is one ordered pack input. The order of the input slice is the
// physical layout order and is never re-sorted.
type Input struct {
	Path   string
	Length uint64
}

// Plan is the finalized layout of an archive.
type Plan struct {
	Root         *tree.Node
	RootLBA      uint32 // first sector of the directory table
	DataLBA      uint32 // first sector of file data
	TableBytes   uint32
	TotalSectors uint32
	FileCount    int
	ByteCount    uint64

	// Dropped lists paths of earlier inputs displaced by later inputs
	// claiming the same path. Non-fatal; callers report them.
	Dropped []string
}

// New walks inputs in order, builds the directory tree, and assigns LBAs.
// When two inputs claim the same path the later one wins and the earlier
// is recorded in Plan.Dropped. digests reserves room in the table for
// per-file SHA-256 digests.
func New(geom sector.Geometry, inputs []Input, digests bool) (*Plan, error) {
	p := &Plan{Root: tree.NewRoot()}

	for _, in := range inputs {
		dropped, err := p.Root.Insert(in.Path, in.Length)
		if err != nil {
			return nil, err
		}
		p.Dropped = append(p.Dropped, dropped...)
	}

	tableBytes, err := codec.TreeSize(p.Root, digests)
	if err != nil {
		return nil, err
	}
	if tableBytes > math.MaxUint32 {
		return nil, fmt.Errorf("%w: directory table is %d bytes", ErrTooLarge, tableBytes)
	}
	p.TableBytes = uint32(tableBytes)

	// Sector 0 holds the header (sector sizes are always >= HeaderSize).
	p.RootLBA = uint32(geom.BytesToSectors(codec.HeaderSize))
	high := uint64(p.RootLBA) + geom.BytesToSectors(tableBytes)
	if high > math.MaxUint32 {
		return nil, fmt.Errorf("%w: directory table ends at sector %d", ErrTooLarge, high)
	}
	p.DataLBA = uint32(high)

	// Pre-order walk matches the order file bytes are streamed, so data
	// LBAs ascend monotonically.
	err = p.Root.Walk(func(path string, n *tree.Node) error {
		if n.Kind == tree.KindDir {
			n.LBA = p.RootLBA
			return nil
		}
		n.LBA = uint32(high)
		high += geom.BytesToSectors(n.Length)
		if high > math.MaxUint32 {
			return fmt.Errorf("%w: %s ends at sector %d", ErrTooLarge, path, high)
		}
		p.FileCount++
		p.ByteCount += n.Length
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.TotalSectors = uint32(high)
	return p, nil
}

// Header builds the archive header for the plan.
func (p *Plan) Header(geom sector.Geometry, digests bool) codec.Header {
	h := codec.Header{
		Version:      codec.Version,
		SectorSize:   geom.Size(),
		TotalSectors: p.TotalSectors,
		RootLBA:      p.RootLBA,
		TableBytes:   p.TableBytes,
		EntryCount:   uint32(p.Root.Count()),
		DataLBA:      p.DataLBA,
	}
	if digests {
		h.Flags |= codec.FlagDigests
	}
	return h
}
