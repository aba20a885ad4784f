package cdfs

import (
	"github.com/meigma/cdfs/internal/cache"
	"github.com/meigma/cdfs/internal/codec"
	"github.com/meigma/cdfs/internal/layout"
	"github.com/meigma/cdfs/internal/sector"
)

// Errors re-exported from internal packages.
var (
	// ErrSectorSize is returned when a sector size is not a power of two
	// within the supported range.
	ErrSectorSize = sector.ErrSize

	// ErrCacheSize is returned when a cache byte budget is negative.
	ErrCacheSize = cache.ErrBudget

	// ErrArchiveTooLarge is returned when the layout would exceed the
	// 32-bit LBA address space.
	ErrArchiveTooLarge = layout.ErrTooLarge

	// ErrNotArchive is returned when the magic signature does not match.
	ErrNotArchive = codec.ErrNotArchive

	// ErrUnsupportedVersion is returned when the archive declares a format
	// version this package does not read.
	ErrUnsupportedVersion = codec.ErrVersion

	// ErrCorrupt is returned when archive metadata is structurally invalid
	// or truncated.
	ErrCorrupt = codec.ErrCorrupt
)

// DuplicatePathWarning records a pack input dropped because a later input
// claimed the same path. Non-fatal; collected in the pack summary.
type DuplicatePathWarning struct {
	Path string
}

func (w DuplicatePathWarning) Error() string {
	return "cdfs: duplicate path dropped: " + w.Path
}
