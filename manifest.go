package cdfs

import (
	"bufio"
	"io"
	"strings"
)

// WriteManifest writes the archive's file paths to w, one per line, in the
// stored traversal order. Directories are omitted; they are implied by the
// paths. The output round-trips through ReadManifest and ManifestSource to
// rebuild an archive with identical entry order.
func (a *Archive) WriteManifest(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for e := range a.Entries() {
		if e.Kind != KindFile {
			continue
		}
		if _, err := bw.WriteString(e.Path); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadManifest reads a path list written by WriteManifest. Blank lines and
// lines starting with '#' are skipped; surrounding whitespace is trimmed.
// Order is preserved.
func ReadManifest(r io.Reader) ([]string, error) {
	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}
