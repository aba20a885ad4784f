package codec

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cdfs/internal/tree"
)

func testTree(t *testing.T, withDigests bool) *tree.Node {
	t.Helper()
	root := tree.NewRoot()
	for _, p := range []string{"zeta.txt", "sub/b.bin", "sub/a.bin", "sub/deep/c.dat"} {
		_, err := root.Insert(p, 100)
		require.NoError(t, err)
	}
	lba := uint32(4)
	err := root.Walk(func(path string, n *tree.Node) error {
		if n.Kind != tree.KindFile {
			return nil
		}
		n.LBA = lba
		lba++
		if withDigests {
			sum := sha256.Sum256([]byte(path))
			n.Digest = sum[:]
		}
		return nil
	})
	require.NoError(t, err)
	return root
}

func header(root *tree.Node, table []byte, digests bool) Header {
	h := Header{
		Version:      Version,
		SectorSize:   2048,
		TotalSectors: 16,
		RootLBA:      1,
		TableBytes:   uint32(len(table)),
		EntryCount:   uint32(root.Count()),
		DataLBA:      2,
	}
	if digests {
		h.Flags |= FlagDigests
	}
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:      Version,
		SectorSize:   512,
		Flags:        FlagDigests,
		TotalSectors: 12345,
		RootLBA:      1,
		TableBytes:   999,
		EntryCount:   42,
		DataLBA:      3,
	}
	b := EncodeHeader(h)
	require.Len(t, b, HeaderSize)
	// Magic is written little-endian, so the file starts with "SFDC".
	assert.Equal(t, []byte("SFDC"), b[:4])

	got, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Digests())
}

func TestDecodeHeaderErrors(t *testing.T) {
	h := EncodeHeader(Header{Version: Version, SectorSize: 2048})

	t.Run("short", func(t *testing.T) {
		_, err := DecodeHeader(h[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("bad magic", func(t *testing.T) {
		b := bytes.Clone(h)
		b[0] = 'X'
		_, err := DecodeHeader(b)
		assert.ErrorIs(t, err, ErrNotArchive)
	})
	t.Run("bad version", func(t *testing.T) {
		b := bytes.Clone(h)
		b[4] = 99
		_, err := DecodeHeader(b)
		assert.ErrorIs(t, err, ErrVersion)
	})
}

func TestTreeRoundTrip(t *testing.T) {
	for _, digests := range []bool{false, true} {
		name := "plain"
		if digests {
			name = "with digests"
		}
		t.Run(name, func(t *testing.T) {
			root := testTree(t, digests)

			table, err := EncodeTree(root, digests)
			require.NoError(t, err)
			size, err := TreeSize(root, digests)
			require.NoError(t, err)
			assert.Equal(t, size, uint64(len(table)))

			got, err := DecodeTree(table, header(root, table, digests))
			require.NoError(t, err)

			var want, have []string
			collect := func(out *[]string) func(string, *tree.Node) error {
				return func(path string, n *tree.Node) error {
					*out = append(*out, path)
					return nil
				}
			}
			require.NoError(t, root.Walk(collect(&want)))
			require.NoError(t, got.Walk(collect(&have)))
			assert.Equal(t, want, have, "stored order must round-trip")

			sub := got.Child("sub")
			require.NotNil(t, sub)
			b := sub.Child("b.bin")
			require.NotNil(t, b)
			assert.Equal(t, uint64(100), b.Length)
			if digests {
				assert.Len(t, b.Digest, DigestSize)
			} else {
				assert.Nil(t, b.Digest)
			}
		})
	}
}

func TestDecodeTreeTruncated(t *testing.T) {
	root := testTree(t, false)
	table, err := EncodeTree(root, false)
	require.NoError(t, err)

	h := header(root, table, false)
	for _, cut := range []int{1, len(table) / 2, len(table) - 1} {
		_, err := DecodeTree(table[:cut], h)
		assert.ErrorIs(t, err, ErrCorrupt, "cut at %d", cut)
	}
}

func TestDecodeTreeEntryCountMismatch(t *testing.T) {
	root := testTree(t, false)
	table, err := EncodeTree(root, false)
	require.NoError(t, err)

	h := header(root, table, false)
	h.EntryCount++
	_, err = DecodeTree(table, h)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeTreeLenientKeepsIntactBranches(t *testing.T) {
	root := testTree(t, false)
	table, err := EncodeTree(root, false)
	require.NoError(t, err)
	h := header(root, table, false)

	// Truncate inside the last record. The earlier entries survive.
	partial, faults := DecodeTreeLenient(table[:len(table)-4], h)
	require.NotEmpty(t, faults)
	assert.ErrorIs(t, faults[0].Err, ErrCorrupt)
	assert.NotNil(t, partial.Child("zeta.txt"))
	require.NotNil(t, partial.Child("sub"))
	assert.NotNil(t, partial.Child("sub").Child("b.bin"))
}

func TestDecodeTreeDuplicateNames(t *testing.T) {
	// Hand-build a directory with two children named the same.
	root := tree.NewRoot()
	root.Children = []*tree.Node{
		{Name: "a", Kind: tree.KindFile, LBA: 2, Length: 1},
		{Name: "a", Kind: tree.KindFile, LBA: 3, Length: 1},
	}
	table, err := EncodeTree(root, false)
	require.NoError(t, err)
	h := header(root, table, false)

	_, err = DecodeTree(table, h)
	assert.ErrorIs(t, err, ErrCorrupt)

	// Lenient decode keeps both entries for the verifier to flag.
	got, faults := DecodeTreeLenient(table, h)
	assert.Empty(t, faults)
	assert.Len(t, got.Children, 2)
}
