package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cdfs/internal/sector"
	"github.com/meigma/cdfs/internal/tree"
)

func geom(t *testing.T, size uint32) sector.Geometry {
	t.Helper()
	g, err := sector.New(size)
	require.NoError(t, err)
	return g
}

func TestPlanSpecScenario(t *testing.T) {
	// a.txt (10 bytes) and b/c.txt (5000 bytes) at sector size 2048:
	// one sector and three sectors respectively.
	g := geom(t, 2048)
	p, err := New(g, []Input{
		{Path: "a.txt", Length: 10},
		{Path: "b/c.txt", Length: 5000},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), p.RootLBA)
	// Header sector + one table sector (the table is tiny).
	assert.Equal(t, uint32(2), p.DataLBA)

	a := p.Root.Child("a.txt")
	require.NotNil(t, a)
	assert.Equal(t, uint32(2), a.LBA)

	c := p.Root.Child("b").Child("c.txt")
	require.NotNil(t, c)
	assert.Equal(t, uint32(3), c.LBA)

	// 2 metadata + 1 + ceil(5000/2048)=3 data sectors.
	assert.Equal(t, uint32(6), p.TotalSectors)
	assert.Equal(t, 2, p.FileCount)
	assert.Equal(t, uint64(5010), p.ByteCount)
	assert.Empty(t, p.Dropped)
}

func TestPlanPreservesInputOrder(t *testing.T) {
	g := geom(t, 512)
	p, err := New(g, []Input{
		{Path: "z.bin", Length: 512},
		{Path: "a.bin", Length: 512},
		{Path: "m/x.bin", Length: 1},
	}, false)
	require.NoError(t, err)

	// LBAs ascend in input order, not path order.
	z, a := p.Root.Child("z.bin"), p.Root.Child("a.bin")
	x := p.Root.Child("m").Child("x.bin")
	assert.Less(t, z.LBA, a.LBA)
	assert.Less(t, a.LBA, x.LBA)
}

func TestPlanDuplicateLaterWins(t *testing.T) {
	g := geom(t, 512)
	p, err := New(g, []Input{
		{Path: "dup.txt", Length: 100},
		{Path: "other.txt", Length: 100},
		{Path: "dup.txt", Length: 200},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"dup.txt"}, p.Dropped)
	assert.Equal(t, 2, p.FileCount)
	assert.Equal(t, uint64(300), p.ByteCount)
	assert.Equal(t, uint64(200), p.Root.Child("dup.txt").Length)
}

func TestPlanZeroLengthFile(t *testing.T) {
	g := geom(t, 512)
	p, err := New(g, []Input{
		{Path: "empty", Length: 0},
		{Path: "one", Length: 1},
	}, false)
	require.NoError(t, err)

	empty, one := p.Root.Child("empty"), p.Root.Child("one")
	// Zero-length files occupy no sectors; the next file reuses the LBA.
	assert.Equal(t, empty.LBA, one.LBA)
	assert.Equal(t, p.DataLBA+1, p.TotalSectors)
}

func TestPlanTooLarge(t *testing.T) {
	g := geom(t, 512)
	_, err := New(g, []Input{
		{Path: "huge1", Length: 1 << 40},
		{Path: "huge2", Length: 1 << 40},
	}, false)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPlanDirectoryLBAs(t *testing.T) {
	g := geom(t, 512)
	p, err := New(g, []Input{{Path: "a/b/c.txt", Length: 1}}, false)
	require.NoError(t, err)

	err = p.Root.Walk(func(path string, n *tree.Node) error {
		if n.Kind == tree.KindDir {
			assert.Equal(t, p.RootLBA, n.LBA, "directory %s points at the table region", path)
		}
		return nil
	})
	require.NoError(t, err)
}
