package cdfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/cdfs/internal/cache"
	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/sector"
	"github.com/meigma/cdfs/internal/tree"
)

// FindingCode identifies a class of verification finding.
type FindingCode string

const (
	// FindingCorruptEntry marks a structurally unreadable directory table
	// record; entries after it could not be scanned.
	FindingCorruptEntry FindingCode = "corrupt-entry"

	// FindingSpanBounds marks a File Span lying outside the file data
	// region or past the archive's total sector count.
	FindingSpanBounds FindingCode = "span-out-of-bounds"

	// FindingSpanOverlap marks two File Spans sharing sectors.
	FindingSpanOverlap FindingCode = "span-overlap"

	// FindingLBARange marks a file record whose start LBA lies outside
	// the archive entirely.
	FindingLBARange FindingCode = "lba-out-of-range"

	// FindingDuplicateName marks two entries with the same name in one
	// directory.
	FindingDuplicateName FindingCode = "duplicate-name"

	// FindingChecksum marks a file whose content no longer matches its
	// recorded digest.
	FindingChecksum FindingCode = "checksum-mismatch"
)

// Finding is one recorded violation. Findings are collected, never fatal.
type Finding struct {
	Code   FindingCode
	Path   string
	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Code, f.Path, f.Detail)
}

// Report is the outcome of a verification pass.
type Report struct {
	Findings     []Finding
	Files        int
	TotalSectors uint32
	SectorSize   uint32

	// ChecksumsVerified is true when file content was recomputed against
	// recorded digests (requires VerifyWithChecksums and an archive
	// packed with PackWithChecksums).
	ChecksumsVerified bool
}

// OK reports whether the pass found no violations.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

// verifyConfig holds configuration for verification.
type verifyConfig struct {
	checksums  bool
	cacheBytes int64
	logger     *slog.Logger
}

// VerifyOption configures verification.
type VerifyOption func(*verifyConfig)

// VerifyWithChecksums recomputes each file's SHA-256 against the digest
// recorded at pack time. Skipped (structural checks only) when the archive
// records no digests. This reads all file data.
func VerifyWithChecksums() VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.checksums = true
	}
}

// VerifyWithCacheSize sets the sector cache budget in bytes. Zero uses
// DefaultCacheSize.
func VerifyWithCacheSize(n int64) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.cacheBytes = n
	}
}

// VerifyWithLogger sets the logger for verification diagnostics. Nil
// discards.
func VerifyWithLogger(l *slog.Logger) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.logger = l
	}
}

// Verify re-derives the archive's layout invariants and reports every
// violation found. It never writes.
//
// Header-level faults are fatal: without a trusted header nothing can be
// located. Past the header, the directory table is decoded leniently, so
// an isolated corrupt record becomes a finding while the intact branches
// are still checked, and every entry-level violation is collected into
// the report rather than aborting the pass.
func Verify(ctx context.Context, src ByteSource, opts ...VerifyOption) (*Report, error) {
	cfg := verifyConfig{cacheBytes: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheBytes == 0 {
		cfg.cacheBytes = DefaultCacheSize
	}

	hdr, geom, err := readHeader(src)
	if err != nil {
		return nil, err
	}

	reader, err := cache.NewReader(src, geom, cfg.cacheBytes)
	if err != nil {
		return nil, err
	}
	table := make([]byte, hdr.TableBytes)
	if _, err := io.ReadFull(reader.Span(hdr.RootLBA, uint64(hdr.TableBytes)), table); err != nil {
		return nil, err
	}
	root, faults := codec.DecodeTreeLenient(table, hdr)

	report := &Report{
		TotalSectors: hdr.TotalSectors,
		SectorSize:   hdr.SectorSize,
	}
	for _, f := range faults {
		report.Findings = append(report.Findings, Finding{
			Code:   FindingCorruptEntry,
			Path:   f.Path,
			Detail: f.Err.Error(),
		})
	}

	v := &verifier{hdr: hdr, geom: geom, report: report}
	v.walk(root)
	v.overlaps()

	if cfg.checksums && hdr.Digests() {
		if err := v.checksums(ctx, root, reader); err != nil {
			return nil, err
		}
		report.ChecksumsVerified = true
	}

	if cfg.logger != nil {
		cfg.logger.Info("verification finished", "files", report.Files, "findings", len(report.Findings))
	}
	return report, nil
}

// fileSpan is one file's sector range, collected for the overlap check.
type fileSpan struct {
	path  string
	start uint32
	end   uint64 // exclusive, in sectors
}

type verifier struct {
	hdr    codec.Header
	geom   sector.Geometry
	report *Report
	spans  []fileSpan
}

// walk runs the per-entry checks: start-LBA range, span arithmetic and
// bounds, and name uniqueness within each directory.
func (v *verifier) walk(root *tree.Node) {
	_ = root.Walk(func(path string, n *tree.Node) error { //nolint:errcheck // collector never errors
		if n.Kind == tree.KindDir {
			seen := make(map[string]bool, len(n.Children))
			for _, c := range n.Children {
				if seen[c.Name] {
					v.add(FindingDuplicateName, path, fmt.Sprintf("name %q appears more than once", c.Name))
				}
				seen[c.Name] = true
			}
			return nil
		}

		v.report.Files++
		if n.Length == 0 {
			return nil
		}
		end := uint64(n.LBA) + v.geom.BytesToSectors(n.Length)
		switch {
		case n.LBA >= v.hdr.TotalSectors:
			v.add(FindingLBARange, path, fmt.Sprintf("start LBA %d outside %d total sectors", n.LBA, v.hdr.TotalSectors))
		case n.LBA < v.hdr.DataLBA:
			v.add(FindingSpanBounds, path, fmt.Sprintf("span starts at LBA %d inside the metadata region (data begins at %d)", n.LBA, v.hdr.DataLBA))
		case end > uint64(v.hdr.TotalSectors):
			v.add(FindingSpanBounds, path, fmt.Sprintf("span ends at sector %d of %d", end, v.hdr.TotalSectors))
		}
		v.spans = append(v.spans, fileSpan{path: path, start: n.LBA, end: end})
		return nil
	})
}

// overlaps checks that no two File Spans share sectors. Spans are sorted
// by start for the pairwise check; the report order follows the sorted
// spans, not the tree.
func (v *verifier) overlaps() {
	spans := v.spans
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if uint64(cur.start) < prev.end {
			v.add(FindingSpanOverlap, cur.path, fmt.Sprintf("sectors %d..%d overlap %s (ends at %d)", cur.start, cur.end, prev.path, prev.end))
		}
	}
}

// checksums recomputes each file's digest through the sector cache.
// A mismatch is a finding; a read failure is fatal.
func (v *verifier) checksums(ctx context.Context, root *tree.Node, reader *cache.Reader) error {
	return root.Walk(func(path string, n *tree.Node) error {
		if n.Kind != tree.KindFile {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(n.Digest) != codec.DigestSize {
			v.add(FindingChecksum, path, "no digest recorded")
			return nil
		}
		// Skip spans already flagged out of bounds; reading them would
		// fault or read foreign bytes.
		end := uint64(n.LBA) + v.geom.BytesToSectors(n.Length)
		if n.Length > 0 && (n.LBA < v.hdr.DataLBA || end > uint64(v.hdr.TotalSectors)) {
			return nil
		}
		digester := digest.Canonical.Digester()
		if _, err := io.Copy(digester.Hash(), reader.Span(n.LBA, n.Length)); err != nil {
			return fmt.Errorf("cdfs: verify %s: %w", path, err)
		}
		if !bytes.Equal(digester.Hash().Sum(nil), n.Digest) {
			v.add(FindingChecksum, path, fmt.Sprintf("content digest %s does not match the recorded digest", digester.Digest()))
		}
		return nil
	})
}

func (v *verifier) add(code FindingCode, path, detail string) {
	v.report.Findings = append(v.report.Findings, Finding{Code: code, Path: path, Detail: detail})
}
