// Package cdfs reads and writes CDFS archives: single-file containers that
// bundle a game's asset tree for sequential, seek-bounded reads off
// fixed-block media.
//
// An archive is addressed in fixed-size sectors. The metadata region comes
// first: a 40-byte little-endian header in sector 0, then the directory
// table starting at the root LBA. File data follows on the next sector
// boundary, each file stored verbatim and zero-padded to a whole number of
// sectors. The directory table is a depth-first pre-order serialization of
// the directory tree; children keep the exact order the pack inputs were
// given in, which is how physical media layout is controlled. See the
// internal codec package for the field-level encoding.
//
// # Packing
//
// Pack a directory tree into an archive:
//
//	out, err := os.Create("assets.dat")
//	if err != nil {
//	    return err
//	}
//	summary, err := cdfs.Pack(ctx, cdfs.DirSource("./assets"), out)
//
// Layout order follows the source. DirSource walks lexicographically;
// ManifestSource packs in the manifest's exact order.
//
// # Reading
//
// Open parses the header and directory table; Extract, Entries, and
// WriteManifest operate on the parsed archive:
//
//	f, err := os.Open("assets.dat")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	src, err := cdfs.NewFileSource(f)
//	if err != nil {
//	    return err
//	}
//	a, err := cdfs.Open(src)
//	if err != nil {
//	    return err
//	}
//	summary, err := a.Extract(ctx, "./out")
//
// Verify re-derives the layout invariants of an archive without writing
// anything, collecting violations into a report instead of stopping at the
// first one.
package cdfs
