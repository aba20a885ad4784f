// Package codec serializes and deserializes the CDFS on-disk metadata: the
// fixed 40-byte header and the directory tree.
//
// All integer fields are little-endian. The directory tree is written as a
// depth-first pre-order stream of self-describing records, children in
// stored order:
//
//	kind      uint8   (1 = file, 2 = directory)
//	name len  uint16
//	name      UTF-8 bytes (empty only for the root record)
//	file:     start LBA uint32, byte length uint64,
//	          raw SHA-256 digest (32 bytes, only when FlagDigests is set)
//	directory: child count uint32, then each child record recursively
//
// Encode and decode are symmetric: the byte stream produced by EncodeTree
// decodes to an identical tree, stored order included.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/meigma/cdfs/internal/tree"
)

// Magic is "CDFS" read as a big-endian uint32. Written little-endian, the
// archive begins with the bytes "SFDC".
const Magic = 0x43444653

// Version is the format version written by this package.
const Version = 1

// HeaderSize is the encoded size of the archive header in bytes.
const HeaderSize = 40

// FlagDigests marks archives whose file records carry a SHA-256 digest.
const FlagDigests uint32 = 1 << 0

// DigestSize is the byte length of a recorded file digest (SHA-256).
const DigestSize = 32

const (
	kindFile = uint8(tree.KindFile)
	kindDir  = uint8(tree.KindDir)
)

// Structural decode errors.
var (
	// ErrNotArchive is returned when the magic signature does not match.
	ErrNotArchive = errors.New("cdfs: not a CDFS archive")

	// ErrVersion is returned when the archive's format version is not
	// supported by this package.
	ErrVersion = errors.New("cdfs: unsupported format version")

	// ErrCorrupt is returned when the metadata stream is structurally
	// invalid or truncated.
	ErrCorrupt = errors.New("cdfs: corrupt archive")
)

// Header is the decoded archive header.
type Header struct {
	Version      uint32
	SectorSize   uint32
	Flags        uint32
	TotalSectors uint32
	RootLBA      uint32 // first sector of the directory table
	TableBytes   uint32 // byte length of the serialized tree
	EntryCount   uint32 // entries in the tree, excluding the root
	DataLBA      uint32 // first sector of file data
}

// Digests reports whether file records carry SHA-256 digests.
func (h Header) Digests() bool {
	return h.Flags&FlagDigests != 0
}

// EncodeHeader serializes h into a HeaderSize-byte slice.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], Magic)
	le.PutUint32(b[4:], h.Version)
	le.PutUint32(b[8:], h.SectorSize)
	le.PutUint32(b[12:], h.Flags)
	le.PutUint32(b[16:], h.TotalSectors)
	le.PutUint32(b[20:], h.RootLBA)
	le.PutUint32(b[24:], h.TableBytes)
	le.PutUint32(b[28:], h.EntryCount)
	le.PutUint32(b[32:], h.DataLBA)
	// b[36:40] reserved, zero
	return b
}

// DecodeHeader parses a HeaderSize-byte header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(b))
	}
	le := binary.LittleEndian
	if m := le.Uint32(b[0:]); m != Magic {
		return Header{}, fmt.Errorf("%w: magic %#08x", ErrNotArchive, m)
	}
	h := Header{
		Version:      le.Uint32(b[4:]),
		SectorSize:   le.Uint32(b[8:]),
		Flags:        le.Uint32(b[12:]),
		TotalSectors: le.Uint32(b[16:]),
		RootLBA:      le.Uint32(b[20:]),
		TableBytes:   le.Uint32(b[24:]),
		EntryCount:   le.Uint32(b[28:]),
		DataLBA:      le.Uint32(b[32:]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: version %d (want %d)", ErrVersion, h.Version, Version)
	}
	return h, nil
}

// TreeSize returns the encoded byte length of the tree, including the root
// record. digests selects whether file records carry a digest field.
func TreeSize(root *tree.Node, digests bool) (uint64, error) {
	var size uint64
	err := root.Walk(func(path string, n *tree.Node) error {
		size += 1 + 2 + uint64(len(n.Name)) // kind, name len, name
		if n.Kind == tree.KindFile {
			size += 4 + 8 // LBA, length
			if digests {
				size += DigestSize
			}
		} else {
			size += 4 // child count
		}
		if len(n.Name) > math.MaxUint16 {
			return fmt.Errorf("cdfs: entry name too long: %s", path)
		}
		return nil
	})
	return size, err
}

// EncodeTree serializes the tree in depth-first pre-order.
func EncodeTree(root *tree.Node, digests bool) ([]byte, error) {
	size, err := TreeSize(root, digests)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, size)
	buf, err = encodeNode(buf, root, digests)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func encodeNode(buf []byte, n *tree.Node, digests bool) ([]byte, error) {
	le := binary.LittleEndian
	buf = append(buf, uint8(n.Kind))
	buf = le.AppendUint16(buf, uint16(len(n.Name)))
	buf = append(buf, n.Name...)

	if n.Kind == tree.KindFile {
		buf = le.AppendUint32(buf, n.LBA)
		buf = le.AppendUint64(buf, n.Length)
		if digests {
			if len(n.Digest) != DigestSize {
				return nil, fmt.Errorf("cdfs: missing digest for %s", n.Name)
			}
			buf = append(buf, n.Digest...)
		}
		return buf, nil
	}

	if len(n.Children) > math.MaxUint32 {
		return nil, fmt.Errorf("cdfs: too many children under %s", n.Name)
	}
	buf = le.AppendUint32(buf, uint32(len(n.Children)))
	var err error
	for _, c := range n.Children {
		if buf, err = encodeNode(buf, c, digests); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Fault records an isolated structural defect found during a lenient
// decode. Path is the archive path of the nearest enclosing directory.
type Fault struct {
	Path string
	Err  error
}

// DecodeTree parses a serialized tree. The buffer must hold exactly the
// table region (Header.TableBytes bytes). Any structural defect returns an
// error wrapping ErrCorrupt.
func DecodeTree(b []byte, h Header) (*tree.Node, error) {
	d := &decoder{buf: b, digests: h.Digests()}
	root, err := d.node(".", true)
	if err != nil {
		return nil, err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes after directory tree", ErrCorrupt, len(d.buf)-d.off)
	}
	if got := uint32(root.Count()); got != h.EntryCount {
		return nil, fmt.Errorf("%w: entry count %d, header declares %d", ErrCorrupt, got, h.EntryCount)
	}
	return root, nil
}

// DecodeTreeLenient parses as much of the tree as is structurally sound.
// The first defect stops the scan (records are not self-delimiting past a
// fault), but everything decoded before it is returned along with the
// fault so callers can keep checking the intact branches.
func DecodeTreeLenient(b []byte, h Header) (*tree.Node, []Fault) {
	d := &decoder{buf: b, digests: h.Digests(), lenient: true}
	root, err := d.node(".", true)
	if err != nil {
		// The root record itself is unreadable.
		return tree.NewRoot(), append(d.faults, Fault{Path: ".", Err: err})
	}
	return root, d.faults
}

type decoder struct {
	buf     []byte
	off     int
	digests bool
	lenient bool
	dead    bool // set after a structural fault; the stream cannot be re-synced
	faults  []Fault
}

func (d *decoder) take(n int, what string) ([]byte, error) {
	if len(d.buf)-d.off < n {
		return nil, fmt.Errorf("%w: truncated %s at offset %d", ErrCorrupt, what, d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// node decodes one record and, for directories, its children.
func (d *decoder) node(path string, isRoot bool) (*tree.Node, error) {
	le := binary.LittleEndian

	kb, err := d.take(1, "entry kind")
	if err != nil {
		return nil, err
	}
	kind := kb[0]
	if kind != kindFile && kind != kindDir {
		return nil, fmt.Errorf("%w: unknown entry kind %d at offset %d", ErrCorrupt, kind, d.off-1)
	}
	if isRoot && kind != kindDir {
		return nil, fmt.Errorf("%w: root record is not a directory", ErrCorrupt)
	}

	nb, err := d.take(2, "name length")
	if err != nil {
		return nil, err
	}
	nameLen := int(le.Uint16(nb))
	nameBytes, err := d.take(nameLen, "entry name")
	if err != nil {
		return nil, err
	}
	name := string(nameBytes)
	if isRoot {
		if name != "" {
			return nil, fmt.Errorf("%w: root record has a name", ErrCorrupt)
		}
	} else if nameErr := tree.CheckName(name); nameErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, nameErr)
	}

	n := &tree.Node{Name: name, Kind: tree.Kind(kind)}
	nodePath := name
	if isRoot {
		nodePath = "."
	} else if path != "." {
		nodePath = path + "/" + name
	}

	if kind == kindFile {
		fb, err := d.take(12, "file record")
		if err != nil {
			return nil, err
		}
		n.LBA = le.Uint32(fb[0:])
		n.Length = le.Uint64(fb[4:])
		if d.digests {
			dg, err := d.take(DigestSize, "file digest")
			if err != nil {
				return nil, err
			}
			n.Digest = append([]byte(nil), dg...)
		}
		return n, nil
	}

	cb, err := d.take(4, "child count")
	if err != nil {
		return nil, err
	}
	count := le.Uint32(cb)
	seen := make(map[string]bool, count)
	for i := uint32(0); i < count; i++ {
		child, err := d.node(nodePath, false)
		if err != nil {
			if d.lenient {
				d.faults = append(d.faults, Fault{Path: nodePath, Err: err})
				d.dead = true
				return n, nil
			}
			return nil, err
		}
		if d.dead {
			// A descendant faulted; keep what was decoded and stop.
			n.Children = append(n.Children, child)
			return n, nil
		}
		// Strict decode rejects duplicate names; the lenient path leaves
		// them in place so the verifier can report a typed finding.
		if seen[child.Name] && !d.lenient {
			return nil, fmt.Errorf("%w: duplicate name %q in %s", ErrCorrupt, child.Name, nodePath)
		}
		seen[child.Name] = true
		n.Children = append(n.Children, child)
	}
	return n, nil
}
