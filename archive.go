package cdfs

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/cdfs/internal/cache"
	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/sector"
	"github.com/meigma/cdfs/internal/tree"
)

// ByteSource provides random access to an archive's bytes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// NewFileSource wraps an open file as a ByteSource. The caller keeps
// ownership of the file and must not close it while the source is in use.
func NewFileSource(f *os.File) (ByteSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &fileSource{f: f, size: info.Size()}, nil
}

type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }

// Kind discriminates file entries from directory entries.
type Kind uint8

const (
	KindFile = Kind(tree.KindFile)
	KindDir  = Kind(tree.KindDir)
)

// String returns "file", "dir", or "unknown".
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Entry is one directory entry in an archive's stored traversal order.
type Entry struct {
	Path   string
	Kind   Kind
	Length uint64 // files only
	LBA    uint32
	Digest digest.Digest // empty when the archive records no checksums
}

// Archive is a parsed CDFS archive: header plus directory tree, with the
// byte source retained for extraction.
type Archive struct {
	src        ByteSource
	geom       sector.Geometry
	hdr        codec.Header
	root       *tree.Node
	cacheBytes int64
	logger     *slog.Logger
}

// openConfig holds configuration for Open.
type openConfig struct {
	cacheBytes int64
	logger     *slog.Logger
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// OpenWithCacheSize sets the sector cache budget in bytes used for all
// reads from the archive. Zero uses DefaultCacheSize.
func OpenWithCacheSize(n int64) OpenOption {
	return func(cfg *openConfig) {
		cfg.cacheBytes = n
	}
}

// OpenWithLogger sets the logger for read diagnostics. Nil discards.
func OpenWithLogger(l *slog.Logger) OpenOption {
	return func(cfg *openConfig) {
		cfg.logger = l
	}
}

// Open parses the header and directory table of an archive. Structural
// faults are fatal here: ErrNotArchive for a bad magic, ErrUnsupportedVersion
// for an unknown version, ErrCorrupt for invalid or truncated metadata.
// Use Verify to inspect a damaged archive.
func Open(src ByteSource, opts ...OpenOption) (*Archive, error) {
	cfg := openConfig{cacheBytes: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheBytes == 0 {
		cfg.cacheBytes = DefaultCacheSize
	}
	if cfg.cacheBytes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrCacheSize, cfg.cacheBytes)
	}

	hdr, geom, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	root, err := readTable(src, geom, hdr, cfg.cacheBytes, false)
	if err != nil {
		return nil, err
	}
	return &Archive{
		src:        src,
		geom:       geom,
		hdr:        hdr,
		root:       root,
		cacheBytes: cfg.cacheBytes,
		logger:     cfg.logger,
	}, nil
}

// readHeader bootstraps: the header's 40 bytes are read directly since the
// sector geometry is not known until they are decoded. All later reads go
// through the sector cache.
func readHeader(src ByteSource) (codec.Header, sector.Geometry, error) {
	buf := make([]byte, codec.HeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, codec.HeaderSize), buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: file smaller than header", codec.ErrCorrupt)
		}
		return codec.Header{}, sector.Geometry{}, err
	}
	hdr, err := codec.DecodeHeader(buf)
	if err != nil {
		return codec.Header{}, sector.Geometry{}, err
	}
	geom, err := sector.New(hdr.SectorSize)
	if err != nil {
		return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}
	if geom.Offset(hdr.RootLBA) < codec.HeaderSize {
		return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: directory table overlaps header", codec.ErrCorrupt)
	}
	wantData := uint64(hdr.RootLBA) + geom.BytesToSectors(uint64(hdr.TableBytes))
	if uint64(hdr.DataLBA) != wantData {
		return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: data region at LBA %d, table ends at %d", codec.ErrCorrupt, hdr.DataLBA, wantData)
	}
	if hdr.TotalSectors < hdr.DataLBA {
		return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: total sectors %d precede data region %d", codec.ErrCorrupt, hdr.TotalSectors, hdr.DataLBA)
	}
	if tableEnd := geom.Offset(hdr.RootLBA) + int64(hdr.TableBytes); tableEnd > src.Size() {
		return codec.Header{}, sector.Geometry{}, fmt.Errorf("%w: directory table extends past end of file", codec.ErrCorrupt)
	}
	return hdr, geom, nil
}

// readTable reads and decodes the directory table through the sector
// cache. The lenient mode is used by Verify; faults are returned via the
// tree walk there, not here.
func readTable(src ByteSource, geom sector.Geometry, hdr codec.Header, cacheBytes int64, lenient bool) (*tree.Node, error) {
	r, err := cache.NewReader(src, geom, cacheBytes)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, hdr.TableBytes)
	if _, err := io.ReadFull(r.Span(hdr.RootLBA, uint64(hdr.TableBytes)), buf); err != nil {
		return nil, err
	}
	if lenient {
		root, _ := codec.DecodeTreeLenient(buf, hdr)
		return root, nil
	}
	return codec.DecodeTree(buf, hdr)
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Version returns the archive's format version.
func (a *Archive) Version() uint32 { return a.hdr.Version }

// SectorSize returns the archive's sector size in bytes.
func (a *Archive) SectorSize() uint32 { return a.hdr.SectorSize }

// TotalSectors returns the archive's total sector count, metadata
// included.
func (a *Archive) TotalSectors() uint32 { return a.hdr.TotalSectors }

// Checksummed reports whether the archive records per-file digests.
func (a *Archive) Checksummed() bool { return a.hdr.Digests() }

// Len returns the number of entries, directories included, excluding the
// root.
func (a *Archive) Len() int { return int(a.hdr.EntryCount) }

// Entries iterates the archive in its stored traversal order: depth-first
// pre-order, children in the order they were packed. The order is part of
// the format and is never re-sorted.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		_ = a.root.Walk(func(path string, n *tree.Node) error { //nolint:errcheck // walk stops via sentinel only
			if path == "." {
				return nil
			}
			e := Entry{Path: path, Kind: Kind(n.Kind), Length: n.Length, LBA: n.LBA}
			if n.Kind == tree.KindFile && len(n.Digest) > 0 {
				e.Digest = digest.NewDigestFromBytes(digest.SHA256, n.Digest)
			}
			if !yield(e) {
				return errStopWalk
			}
			return nil
		})
	}
}

var errStopWalk = fmt.Errorf("cdfs: stop walk")
