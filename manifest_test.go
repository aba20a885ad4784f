package cdfs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteManifestStoredOrder(t *testing.T) {
	t.Parallel()

	src := memSource{
		{path: "zz.txt", data: []byte("z")},
		{path: "aa/bb.txt", data: []byte("b")},
		{path: "mm.txt", data: []byte("m")},
	}
	a, err := Open(bytes.NewReader(packBytes(t, src)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.WriteManifest(&buf))

	// Input order, not sorted; directories omitted.
	assert.Equal(t, "zz.txt\naa/bb.txt\nmm.txt\n", buf.String())
}

func TestReadManifest(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("# layout list\n\nb.txt\n  a.txt  \n\n# trailing comment\nc/d.txt\n")
	paths, err := ReadManifest(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "a.txt", "c/d.txt"}, paths)
}

func TestManifestRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"one.txt":   []byte("1"),
		"two.txt":   []byte("2"),
		"three.txt": []byte("3"),
	}
	dir := t.TempDir()
	writeTree(t, dir, files)

	// Pack in a deliberate non-lexicographic order via a manifest.
	order := []string{"two.txt", "three.txt", "one.txt"}
	raw := packBytes(t, ManifestSource(dir, order))

	a, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.WriteManifest(&buf))
	paths, err := ReadManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, order, paths)

	// Feeding the manifest back reproduces an identical archive.
	raw2 := packBytes(t, ManifestSource(dir, paths))
	assert.Equal(t, raw, raw2)
}

func TestManifestSourceRejectsEscapes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ManifestSource(dir, []string{"../escape.txt"}).Inputs()
	require.Error(t, err)

	_, err = ManifestSource(dir, []string{"missing.txt"}).Inputs()
	require.Error(t, err)
}
