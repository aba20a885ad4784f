// Package sector defines the sector geometry of a CDFS archive: the sector
// size, LBA-to-byte-offset arithmetic, and padding rules. Everything that
// touches the byte stream derives its addressing from a Geometry.
package sector

import (
	"errors"
	"fmt"
	"math/bits"
)

// Sector size bounds. Sizes must be a power of two within these limits.
const (
	MinSize = 512
	MaxSize = 65536

	// DefaultSize matches the common 2048-byte CD-ROM data sector.
	DefaultSize = 2048
)

// ErrSize is returned when a sector size is not a power of two within
// [MinSize, MaxSize].
var ErrSize = errors.New("cdfs: invalid sector size")

// Geometry holds a validated sector size. The size is fixed for the
// archive's entire lifetime; it is chosen once at creation and never
// changes on read.
type Geometry struct {
	size uint32
}

// New validates size and returns the corresponding geometry.
func New(size uint32) (Geometry, error) {
	if size < MinSize || size > MaxSize || bits.OnesCount32(size) != 1 {
		return Geometry{}, fmt.Errorf("%w: %d (must be a power of two in [%d, %d])", ErrSize, size, MinSize, MaxSize)
	}
	return Geometry{size: size}, nil
}

// Size returns the sector size in bytes.
func (g Geometry) Size() uint32 {
	return g.size
}

// BytesToSectors returns ceil(n / sector size): the number of sectors
// needed to hold n bytes. Zero bytes need zero sectors.
func (g Geometry) BytesToSectors(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)/uint64(g.size) + 1
}

// Offset returns the byte offset of the given LBA from the start of the
// archive.
func (g Geometry) Offset(lba uint32) int64 {
	return int64(lba) * int64(g.size)
}

// Pad returns the number of zero bytes needed to extend n bytes to the
// next sector boundary. Returns 0 when n is already sector-aligned.
func (g Geometry) Pad(n uint64) uint64 {
	rem := n % uint64(g.size)
	if rem == 0 {
		return 0
	}
	return uint64(g.size) - rem
}
