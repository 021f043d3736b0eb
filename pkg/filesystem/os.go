package filesystem

import (
	"github.com/spf13/afero"
)

// NewOS creates a filesystem backed by the real OS filesystem
func NewOS() afero.Fs {
	return afero.NewOsFs()
}

// NewMemory creates an in-memory filesystem, mostly useful in tests
func NewMemory() afero.Fs {
	return afero.NewMemMapFs()
}

// isOS reports whether fsys talks to the real OS filesystem, where symlinks
// can be resolved.
func isOS(fsys afero.Fs) bool {
	_, ok := fsys.(*afero.OsFs)
	return ok
}
