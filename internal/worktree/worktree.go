// internal/worktree/worktree.go
package worktree

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"sprig/internal/errors"
	"sprig/internal/safe"

	"github.com/spf13/afero"
)

// MetaDir holds the repository state inside the working tree root.
const MetaDir = ".sprig"

var (
	ErrFileNotFound = errors.NotFound("File does not exist.")
	ErrOutsideTree  = errors.Validation("path is outside the repository")
	ErrNotRepo      = errors.NotFound("Not in an initialized sprig directory.")
)

// Tree gives access to the files of one working tree. Paths handed to and
// returned by Tree are slash-separated and relative to the root.
type Tree struct {
	fs   afero.Fs
	root string
}

func New(fs afero.Fs, root string) *Tree {
	return &Tree{fs: fs, root: filepath.Clean(root)}
}

func (t *Tree) Root() string { return t.root }

// MetaPath joins elem onto the metadata directory.
func (t *Tree) MetaPath(elem ...string) string {
	return filepath.Join(append([]string{t.root, MetaDir}, elem...)...)
}

// FindRoot searches upward from startDir for a directory holding MetaDir.
func FindRoot(fsys afero.Fs, startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if ok, _ := afero.DirExists(fsys, filepath.Join(dir, MetaDir)); ok {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrNotRepo
}

// ShouldIgnore reports whether a root-relative path is never versioned.
func ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case MetaDir, ".git":
			return true
		}
	}
	return false
}

// Clean turns a user-supplied path (relative to the root, or absolute
// inside it) into a root-relative slash path.
func (t *Tree) Clean(p string) (string, error) {
	if p == "" {
		return "", ErrOutsideTree
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(t.root, p)
		if err != nil {
			return "", ErrOutsideTree
		}
		p = rel
	}
	rel := path.Clean(filepath.ToSlash(p))
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) || ShouldIgnore(rel) {
		return "", ErrOutsideTree
	}
	return rel, nil
}

func (t *Tree) abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// Exists reports whether rel names a regular working file.
func (t *Tree) Exists(rel string) (bool, error) {
	info, err := t.fs.Stat(t.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}
	return !info.IsDir(), nil
}

// Read returns the bytes of a working file, or ErrFileNotFound when rel is
// missing or a directory.
func (t *Tree) Read(rel string) ([]byte, error) {
	ok, err := t.Exists(rel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFileNotFound
	}
	data, err := afero.ReadFile(t.fs, t.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// Digest hashes the current bytes of a working file.
func (t *Tree) Digest(rel string) (string, error) {
	data, err := t.Read(rel)
	if err != nil {
		return "", err
	}
	return safe.Digest(data), nil
}

// Write replaces the content of a working file, creating parent dirs.
func (t *Tree) Write(rel string, data []byte) error {
	p := t.abs(rel)
	if err := t.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", rel, err)
	}
	if err := afero.WriteFile(t.fs, p, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// Remove deletes a working file if present and prunes parent directories
// left empty, stopping at the root.
func (t *Tree) Remove(rel string) error {
	p := t.abs(rel)
	if err := t.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}

	for dir := filepath.Dir(p); dir != t.root && strings.HasPrefix(dir, t.root); dir = filepath.Dir(dir) {
		empty, err := afero.IsEmpty(t.fs, dir)
		if err != nil || !empty {
			break
		}
		if err := t.fs.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Files lists every versionable file in the tree, sorted.
func (t *Tree) Files() ([]string, error) {
	var files []string
	err := afero.Walk(t.fs, t.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == t.root {
			return nil
		}

		rel, err := filepath.Rel(t.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if ShouldIgnore(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking working tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
