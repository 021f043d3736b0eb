package filesystem

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Exists reports whether path exists, following symlinks.
func Exists(fsys afero.Fs, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}

// IsRegularFile reports whether path currently resolves to a regular file.
func IsRegularFile(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsDir reports whether path currently resolves to a directory.
func IsDir(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Canonical returns the canonical form of path: absolute, cleaned and, on
// the OS filesystem, with every symlink resolved. Two paths naming the same
// file yield the same canonical path.
func Canonical(fsys afero.Fs, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !isOS(fsys) {
		return filepath.Clean(abs), nil
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// IsWithin reports whether path lies strictly under root. Both are compared
// in cleaned form; root itself is not within root.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:2] == ".." && os.IsPathSeparator(rel[2])
}

// Resolve is Canonical for paths that may not exist yet: the longest
// existing ancestor is resolved and the remainder appended. It never fails;
// when nothing can be resolved the cleaned absolute path is returned. A nil
// fsys resolves lexically.
func Resolve(fsys afero.Fs, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if fsys == nil || !isOS(fsys) {
		return abs
	}

	dir, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// Overlaps reports whether a and b are the same directory or one lies
// under the other.
func Overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	return a == b || IsWithin(a, b) || IsWithin(b, a)
}
