package cdfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCleanArchive(t *testing.T) {
	t.Parallel()

	src := memSource{
		{path: "a.txt", data: bytes.Repeat([]byte("a"), 10)},
		{path: "b/c.txt", data: bytes.Repeat([]byte("c"), 5000)},
	}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, uint32(2048), report.SectorSize)
	assert.Equal(t, uint32(6), report.TotalSectors)
	assert.False(t, report.ChecksumsVerified)
}

func TestVerifyChecksums(t *testing.T) {
	t.Parallel()

	src := memSource{{path: "a.txt", data: []byte("original content")}}
	raw := packBytes(t, src, PackWithSectorSize(2048), PackWithChecksums())

	report, err := Verify(context.Background(), bytes.NewReader(raw), VerifyWithChecksums())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.True(t, report.ChecksumsVerified)

	// Flip a byte inside the file data region (LBA 2). The structure is
	// untouched, so only the checksum pass notices.
	raw[2*2048] ^= 0xff

	report, err = Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, report.OK())

	report, err = Verify(context.Background(), bytes.NewReader(raw), VerifyWithChecksums())
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingChecksum, report.Findings[0].Code)
	assert.Equal(t, "a.txt", report.Findings[0].Path)
}

func TestVerifyChecksumsWithoutDigests(t *testing.T) {
	t.Parallel()

	src := memSource{{path: "a.txt", data: []byte("no digests recorded")}}
	raw := packBytes(t, src)

	report, err := Verify(context.Background(), bytes.NewReader(raw), VerifyWithChecksums())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.False(t, report.ChecksumsVerified)
}

func TestVerifySpanPastEnd(t *testing.T) {
	t.Parallel()

	// 5000 bytes fill 3 data sectors, 5 total. Moving the span start to
	// LBA 4 keeps it inside the archive but runs the tail past the end.
	src := memSource{{path: "a.txt", data: bytes.Repeat([]byte("a"), 5000)}}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// Table at sector 1: root record is 7 bytes, then the file record's
	// kind (1), name length (2), and name (5) precede its start LBA.
	lbaOff := 2048 + 7 + 1 + 2 + 5
	raw[lbaOff] = 4

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingSpanBounds, report.Findings[0].Code)
	assert.Equal(t, "a.txt", report.Findings[0].Path)
}

func TestVerifySpanInMetadata(t *testing.T) {
	t.Parallel()

	src := memSource{{path: "a.txt", data: []byte("data")}}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// Point the span at the directory table sector.
	raw[2048+7+1+2+5] = 1

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingSpanBounds, report.Findings[0].Code)
	assert.Equal(t, "a.txt", report.Findings[0].Path)
}

func TestVerifyLBAOutOfRange(t *testing.T) {
	t.Parallel()

	src := memSource{{path: "a.txt", data: []byte("data")}}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// A start LBA past the total sector count is out of range outright,
	// not just a span running over the end.
	lbaOff := 2048 + 7 + 1 + 2 + 5
	raw[lbaOff] = 0xff
	raw[lbaOff+1] = 0xff

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingLBARange, report.Findings[0].Code)
	assert.Equal(t, "a.txt", report.Findings[0].Path)
}

func TestVerifySpanOverlap(t *testing.T) {
	t.Parallel()

	// Two 3000-byte files take 2 sectors each: a at LBA 2, b at LBA 4,
	// 6 sectors total.
	src := memSource{
		{path: "a.txt", data: bytes.Repeat([]byte("a"), 3000)},
		{path: "b.txt", data: bytes.Repeat([]byte("b"), 3000)},
	}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// The second file record's start LBA sits 8 bytes into its record
	// (kind, name length, name), after the 7-byte root record and the
	// 20-byte first file record. Pull b back into a's span.
	lbaOff := 2048 + 7 + 20 + 8
	raw[lbaOff] = 3

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingSpanOverlap, report.Findings[0].Code)
	assert.Equal(t, "b.txt", report.Findings[0].Path)
}

func TestVerifyCorruptEntry(t *testing.T) {
	t.Parallel()

	src := memSource{{path: "a.txt", data: []byte("data")}}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// Clobber the file record's kind byte. Strict open refuses the whole
	// archive; verify degrades it to a finding.
	raw[2048+7] = 9

	_, err := Open(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrCorrupt)

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingCorruptEntry, report.Findings[0].Code)
	assert.Equal(t, ".", report.Findings[0].Path)
}

func TestVerifyDuplicateName(t *testing.T) {
	t.Parallel()

	src := memSource{
		{path: "a.txt", data: []byte("one")},
		{path: "b.txt", data: []byte("two")},
	}
	raw := packBytes(t, src, PackWithSectorSize(2048))

	// Rename the second entry to collide with the first. The root record
	// is 7 bytes and each file record is 20, so the second record's name
	// begins 3 bytes into it.
	raw[2048+7+20+3] = 'a'

	_, err := Open(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrCorrupt)

	report, err := Verify(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingDuplicateName, report.Findings[0].Code)
	assert.Equal(t, ".", report.Findings[0].Path)
}

func TestVerifyNotArchive(t *testing.T) {
	t.Parallel()

	_, err := Verify(context.Background(), bytes.NewReader(bytes.Repeat([]byte{0x01}, 64)))
	require.ErrorIs(t, err, ErrNotArchive)
}
