package cdfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/cdfs/internal/cache"
	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/tree"
)

// ExtractFailure records a single entry that could not be written.
// Per-file failures are collected; extraction continues with the
// remaining entries.
type ExtractFailure struct {
	Path string
	Err  error
}

func (f ExtractFailure) Error() string {
	return fmt.Sprintf("cdfs: extract %s: %v", f.Path, f.Err)
}

func (f ExtractFailure) Unwrap() error { return f.Err }

// ExtractSummary describes a completed extraction, including the entries
// that failed.
type ExtractSummary struct {
	Files  int
	Bytes  uint64
	Failed []ExtractFailure
}

// extractConfig holds configuration for extraction.
type extractConfig struct {
	progress ProgressFunc
}

// ExtractOption configures extraction.
type ExtractOption func(*extractConfig)

// ExtractWithProgress sets a callback receiving per-file progress events.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.progress = fn
	}
}

// Extract recreates the archive's directory structure and file contents
// under destDir, reading each File Span through the sector cache.
//
// Failures writing individual entries are collected in the summary and
// extraction continues; a failure reading the archive itself is fatal and
// returns an error. Existing files are overwritten.
func (a *Archive) Extract(ctx context.Context, destDir string, opts ...ExtractOption) (*ExtractSummary, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Fail fast before touching the filesystem: every span must lie
	// within the archive's declared sector count.
	var fileCount int
	var byteTotal uint64
	err := a.root.Walk(func(path string, n *tree.Node) error {
		if n.Kind != tree.KindFile {
			return nil
		}
		end := uint64(n.LBA) + a.geom.BytesToSectors(n.Length)
		if end > uint64(a.hdr.TotalSectors) {
			return fmt.Errorf("%w: %s extends to sector %d of %d", codec.ErrCorrupt, path, end, a.hdr.TotalSectors)
		}
		fileCount++
		byteTotal += n.Length
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	reader, err := cache.NewReader(a.src, a.geom, a.cacheBytes)
	if err != nil {
		return nil, err
	}

	ex := &extractor{
		archive: a,
		reader:  reader,
		destDir: destDir,
		cfg:     cfg,
		buf:     make([]byte, 32*1024),
		total:   byteTotal,
		files:   fileCount,
	}
	if err := ex.run(ctx); err != nil {
		return nil, err
	}
	return &ex.summary, nil
}

// extractor holds state for one extraction pass.
type extractor struct {
	archive *Archive
	reader  *cache.Reader
	destDir string
	cfg     extractConfig
	buf     []byte
	total   uint64
	files   int
	summary ExtractSummary
}

func (ex *extractor) run(ctx context.Context) error {
	return ex.archive.root.Walk(func(path string, n *tree.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		target := filepath.Join(ex.destDir, filepath.FromSlash(path))

		if n.Kind == tree.KindDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				ex.fail(path, err)
			}
			return nil
		}

		if err := ex.writeFile(target, n); err != nil {
			if isSourceErr(err) {
				return err // archive read failure is fatal
			}
			ex.fail(path, err)
			return nil
		}

		ex.summary.Files++
		ex.summary.Bytes += n.Length
		ex.archive.log().Debug("extracted", "path", path, "bytes", n.Length)
		if ex.cfg.progress != nil {
			ex.cfg.progress(ProgressEvent{
				Path:       path,
				BytesDone:  ex.summary.Bytes,
				BytesTotal: ex.total,
				FilesDone:  ex.summary.Files,
				FilesTotal: ex.files,
			})
		}
		return nil
	})
}

func (ex *extractor) fail(path string, err error) {
	ex.archive.log().Warn("extract failed", "path", path, "error", err)
	ex.summary.Failed = append(ex.summary.Failed, ExtractFailure{Path: path, Err: err})
}

// writeFile copies one File Span to target. Read-side errors come back
// wrapped in sourceErr so the caller can tell a broken archive from a
// broken destination.
func (ex *extractor) writeFile(target string, n *tree.Node) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	span := ex.reader.Span(n.LBA, n.Length)
	for {
		nr, rerr := span.Read(ex.buf)
		if nr > 0 {
			if _, werr := f.Write(ex.buf[:nr]); werr != nil {
				f.Close()
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			return &sourceErr{err: rerr}
		}
	}
	return f.Close()
}

// sourceErr marks a failure reading the archive itself.
type sourceErr struct {
	err error
}

func (e *sourceErr) Error() string { return e.err.Error() }
func (e *sourceErr) Unwrap() error { return e.err }

func isSourceErr(err error) bool {
	_, ok := err.(*sourceErr) //nolint:errorlint // set by writeFile directly
	return ok
}
