package cdfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Input is one ordered pack input: a slash-separated relative path, the
// byte length, and a way to open the content for reading.
type Input struct {
	Path   string
	Length uint64
	Open   func() (io.ReadCloser, error)
}

// Source supplies the ordered inputs for a pack. The slice order is the
// physical layout order of the archive.
type Source interface {
	Inputs() ([]Input, error)
}

// DirSource packs the regular files under dir. The walk order is
// lexicographic within each directory (fs.WalkDir order). Symbolic links
// are not followed and empty directories are not preserved. Paths that
// escape dir are rejected when opened.
func DirSource(dir string) Source {
	return dirSource{dir: dir}
}

type dirSource struct {
	dir string
}

func (s dirSource) Inputs() ([]Input, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	var inputs []Input
	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() < 0 {
			return fmt.Errorf("cdfs: negative file size: %s", path)
		}
		inputs = append(inputs, Input{
			Path:   path,
			Length: uint64(info.Size()),
			Open:   openInRoot(s.dir, path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inputs, nil
}

// ManifestSource packs the named files under dir in the exact order given.
// This is the mechanism for controlling physical layout deliberately; use
// ReadManifest to load the path list from a manifest file.
func ManifestSource(dir string, paths []string) Source {
	return manifestSource{dir: dir, paths: paths}
}

type manifestSource struct {
	dir   string
	paths []string
}

func (s manifestSource) Inputs() ([]Input, error) {
	inputs := make([]Input, 0, len(s.paths))
	for _, p := range s.paths {
		p = normalizePath(p)
		if !fs.ValidPath(p) || p == "." {
			return nil, fmt.Errorf("cdfs: invalid manifest path: %q", p)
		}
		f, err := os.OpenInRoot(s.dir, filepath.FromSlash(p))
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		f.Close()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("cdfs: not a regular file: %s", p)
		}
		inputs = append(inputs, Input{
			Path:   p,
			Length: uint64(info.Size()),
			Open:   openInRoot(s.dir, p),
		})
	}
	return inputs, nil
}

func openInRoot(dir, path string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return os.OpenInRoot(dir, filepath.FromSlash(path))
	}
}

// normalizePath converts a user-provided path to slash-separated
// fs.ValidPath form: separators unified, leading/trailing and repeated
// slashes collapsed. Dot and dotdot segments are preserved for
// fs.ValidPath to reject.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	segs := strings.Split(p, "/")
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return "."
	}
	return strings.Join(out, "/")
}
