// Package tree holds the in-memory directory tree of a CDFS archive.
//
// Children keep the order in which they were inserted. That order encodes
// the physical layout of the archive and round-trips through serialization
// untouched; nothing in this package sorts.
package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates file entries from directory entries.
type Kind uint8

const (
	KindFile Kind = 1
	KindDir  Kind = 2
)

// ErrName is returned when a path segment is empty or contains a
// path separator.
var ErrName = errors.New("cdfs: invalid entry name")

// Node is a single directory entry. Directories carry Children in
// insertion order; files carry a starting LBA and byte length. Digest
// is an optional raw SHA-256 of the file content, recorded at pack time.
type Node struct {
	Name     string
	Kind     Kind
	LBA      uint32
	Length   uint64
	Digest   []byte
	Children []*Node
}

// NewRoot returns an empty root directory. The root is the only node
// allowed an empty name.
func NewRoot() *Node {
	return &Node{Kind: KindDir}
}

// Child returns the direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// remove drops the direct child with the given name, if present.
func (n *Node) remove(name string) {
	for i, c := range n.Children {
		if c.Name == name {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Insert adds a file node at the slash-separated path, creating
// intermediate directories as needed. When an entry already exists at a
// claimed path with a conflicting identity (same file path twice, or a
// file standing where a directory is needed and vice versa), the later
// insertion wins: the earlier entry is removed and its full paths are
// returned in dropped so the caller can report them.
func (n *Node) Insert(path string, length uint64) (dropped []string, err error) {
	segs := strings.Split(path, "/")
	cur := n
	for i, seg := range segs {
		if err := CheckName(seg); err != nil {
			return dropped, fmt.Errorf("%w: %q in %q", err, seg, path)
		}
		last := i == len(segs)-1
		existing := cur.Child(seg)

		if last {
			if existing != nil {
				dropped = append(dropped, paths(existing, strings.Join(segs[:i], "/"))...)
				cur.remove(seg)
			}
			cur.Children = append(cur.Children, &Node{Name: seg, Kind: KindFile, Length: length})
			return dropped, nil
		}

		switch {
		case existing == nil:
			next := &Node{Name: seg, Kind: KindDir}
			cur.Children = append(cur.Children, next)
			cur = next
		case existing.Kind == KindDir:
			cur = existing
		default:
			// A file occupies the directory's path. Later wins: replace it.
			dropped = append(dropped, paths(existing, strings.Join(segs[:i], "/"))...)
			cur.remove(seg)
			next := &Node{Name: seg, Kind: KindDir}
			cur.Children = append(cur.Children, next)
			cur = next
		}
	}
	return dropped, nil
}

// Walk visits the tree in depth-first pre-order: the node itself, then its
// children in stored order. The root is visited with path ".". Returning
// an error from fn stops the walk.
func (n *Node) Walk(fn func(path string, node *Node) error) error {
	return walk(n, ".", fn)
}

func walk(n *Node, path string, fn func(string, *Node) error) error {
	if err := fn(path, n); err != nil {
		return err
	}
	for _, c := range n.Children {
		p := c.Name
		if path != "." {
			p = path + "/" + c.Name
		}
		if err := walk(c, p, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of entries in the tree, excluding the root.
func (n *Node) Count() int {
	count := 0
	for _, c := range n.Children {
		count += 1 + c.Count()
	}
	return count
}

// paths collects the file paths under a node being dropped, including the
// node itself when it is a file. parent is the slash path of the node's
// parent ("" for root).
func paths(n *Node, parent string) []string {
	p := n.Name
	if parent != "" {
		p = parent + "/" + n.Name
	}
	if n.Kind == KindFile {
		return []string{p}
	}
	var out []string
	for _, c := range n.Children {
		out = append(out, paths(c, p)...)
	}
	return out
}

// CheckName rejects path segments that are empty, dot entries, or contain
// separators or NUL.
func CheckName(s string) error {
	if s == "" || s == "." || s == ".." {
		return ErrName
	}
	if strings.ContainsAny(s, "/\\\x00") {
		return ErrName
	}
	return nil
}
