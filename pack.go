package cdfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/cdfs/internal/cache"
	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/layout"
	"github.com/meigma/cdfs/internal/sector"
	"github.com/meigma/cdfs/internal/tree"
)

// Defaults matching the original tool's CLI.
const (
	DefaultSectorSize = sector.DefaultSize
	DefaultCacheSize  = cache.DefaultBudget
)

// PackSummary describes a completed pack.
type PackSummary struct {
	Files        int
	Bytes        uint64
	SectorSize   uint32
	TotalSectors uint32

	// Warnings lists inputs dropped because a later input claimed the
	// same path. Non-fatal.
	Warnings []DuplicatePathWarning
}

// Pack writes a complete archive from the source's ordered inputs to w.
//
// The stream is written strictly sequentially: header, directory table,
// then each file's bytes zero-padded to a sector boundary, in input order.
// When two inputs claim the same path the later one wins and the earlier
// is reported in the summary's warnings.
//
// On error the stream may hold a partial archive; callers owning a file
// should remove or truncate it (the cdfs CLI deletes it).
func Pack(ctx context.Context, src Source, w io.Writer, opts ...PackOption) (*PackSummary, error) {
	cfg := packConfig{sectorSize: DefaultSectorSize, cacheBytes: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sectorSize == 0 {
		cfg.sectorSize = DefaultSectorSize
	}
	if cfg.cacheBytes == 0 {
		cfg.cacheBytes = DefaultCacheSize
	}
	geom, err := sector.New(cfg.sectorSize)
	if err != nil {
		return nil, err
	}
	if cfg.cacheBytes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrCacheSize, cfg.cacheBytes)
	}

	p := &packer{cfg: cfg, geom: geom}
	p.log().Info("packing archive", "sector_size", cfg.sectorSize, "checksums", cfg.checksums)

	inputs, err := src.Inputs()
	if err != nil {
		return nil, err
	}

	plan, byPath, warnings, err := p.plan(inputs)
	if err != nil {
		return nil, err
	}

	if cfg.checksums {
		if err := p.digestPass(ctx, plan.Root, byPath); err != nil {
			return nil, err
		}
	}

	cw, err := cache.NewWriter(w, geom, cfg.cacheBytes)
	if err != nil {
		return nil, err
	}
	if err := p.stream(ctx, cw, plan, byPath); err != nil {
		_ = cw.Close() //nolint:errcheck // flush staged sectors; the pack error wins
		return nil, err
	}
	if err := cw.Close(); err != nil {
		return nil, err
	}

	p.log().Info("archive packed", "files", plan.FileCount, "bytes", plan.ByteCount, "sectors", plan.TotalSectors)
	return &PackSummary{
		Files:        plan.FileCount,
		Bytes:        plan.ByteCount,
		SectorSize:   geom.Size(),
		TotalSectors: plan.TotalSectors,
		Warnings:     warnings,
	}, nil
}

// packer holds state for archive creation.
type packer struct {
	cfg  packConfig
	geom sector.Geometry
}

// log returns the logger, falling back to a discard logger if nil.
func (p *packer) log() *slog.Logger {
	if p.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.cfg.logger
}

// plan runs the layout planner and indexes the surviving inputs by path.
func (p *packer) plan(inputs []Input) (*layout.Plan, map[string]Input, []DuplicatePathWarning, error) {
	lin := make([]layout.Input, len(inputs))
	byPath := make(map[string]Input, len(inputs))
	for i, in := range inputs {
		lin[i] = layout.Input{Path: in.Path, Length: in.Length}
		byPath[in.Path] = in // later input wins, matching the planner
	}

	plan, err := layout.New(p.geom, lin, p.cfg.checksums)
	if err != nil {
		return nil, nil, nil, err
	}

	warnings := make([]DuplicatePathWarning, 0, len(plan.Dropped))
	for _, path := range plan.Dropped {
		p.log().Warn("duplicate path dropped", "path", path)
		warnings = append(warnings, DuplicatePathWarning{Path: path})
	}
	return plan, byPath, warnings, nil
}

// digestPass computes each file's SHA-256 before serialization. The table
// precedes file data, so digests must be known up front.
func (p *packer) digestPass(ctx context.Context, root *tree.Node, byPath map[string]Input) error {
	return root.Walk(func(path string, n *tree.Node) error {
		if n.Kind != tree.KindFile {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		in, ok := byPath[path]
		if !ok {
			return fmt.Errorf("cdfs: no input for planned path %s", path)
		}
		f, err := in.Open()
		if err != nil {
			return err
		}
		digester := digest.Canonical.Digester()
		_, err = io.Copy(digester.Hash(), f)
		f.Close()
		if err != nil {
			return fmt.Errorf("cdfs: digest %s: %w", path, err)
		}
		n.Digest = digester.Hash().Sum(nil)
		p.log().Debug("digested", "path", path, "digest", digester.Digest())
		return nil
	})
}

// stream writes header, table, and file data through the sector cache.
func (p *packer) stream(ctx context.Context, cw *cache.Writer, plan *layout.Plan, byPath map[string]Input) error {
	hdr := plan.Header(p.geom, p.cfg.checksums)
	if _, err := cw.Write(codec.EncodeHeader(hdr)); err != nil {
		return err
	}
	if err := cw.Pad(); err != nil {
		return err
	}
	if cw.LBA() != hdr.RootLBA {
		return fmt.Errorf("cdfs: internal: table starts at LBA %d, planned %d", cw.LBA(), hdr.RootLBA)
	}

	table, err := codec.EncodeTree(plan.Root, p.cfg.checksums)
	if err != nil {
		return err
	}
	if _, err := cw.Write(table); err != nil {
		return err
	}
	if err := cw.Pad(); err != nil {
		return err
	}
	if cw.LBA() != hdr.DataLBA {
		return fmt.Errorf("cdfs: internal: data starts at LBA %d, planned %d", cw.LBA(), hdr.DataLBA)
	}

	done := 0
	var bytesDone uint64
	return plan.Root.Walk(func(path string, n *tree.Node) error {
		if n.Kind != tree.KindFile {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if cw.LBA() != n.LBA {
			return fmt.Errorf("cdfs: internal: %s lands at LBA %d, planned %d", path, cw.LBA(), n.LBA)
		}
		if err := p.writeFile(cw, path, n, byPath); err != nil {
			return err
		}
		done++
		bytesDone += n.Length
		p.log().Debug("packed", "path", path, "bytes", n.Length, "lba", n.LBA)
		if p.cfg.progress != nil {
			p.cfg.progress(ProgressEvent{
				Path:       path,
				BytesDone:  bytesDone,
				BytesTotal: plan.ByteCount,
				FilesDone:  done,
				FilesTotal: plan.FileCount,
			})
		}
		return nil
	})
}

// writeFile streams exactly the planned byte length of one input, then
// pads to the sector boundary.
func (p *packer) writeFile(cw *cache.Writer, path string, n *tree.Node, byPath map[string]Input) error {
	in, ok := byPath[path]
	if !ok {
		return fmt.Errorf("cdfs: no input for planned path %s", path)
	}
	f, err := in.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.CopyN(cw, f, int64(n.Length)); err != nil {
		if err == io.EOF {
			return fmt.Errorf("cdfs: %s shrank below its planned %d bytes", path, n.Length)
		}
		return fmt.Errorf("cdfs: pack %s: %w", path, err)
	}
	return cw.Pad()
}
