package destination

import (
	"context"
	"path/filepath"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/spf13/afero"
)

// Local keeps archives in a directory on this machine
type Local struct {
	fs  afero.Fs
	dir string
}

// NewLocal returns a destination rooted at dir
func NewLocal(fs afero.Fs, dir string) *Local {
	return &Local{fs: fs, dir: filepath.Clean(dir)}
}

// Stage implements Destination
func (l *Local) Stage() string {
	return l.dir
}

// Store implements Destination. The file is already in place.
func (l *Local) Store(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrCancelled, "store cancelled")
	}
	if !filesystem.IsWithin(l.dir, localPath) {
		return "", errors.Newf(errors.ErrDestination, "%s is not inside %s", localPath, l.dir)
	}
	if !filesystem.IsRegularFile(l.fs, localPath) {
		return "", errors.Newf(errors.ErrDestination, "%s does not exist", localPath)
	}
	return localPath, nil
}

// Close implements Destination
func (l *Local) Close() error {
	return nil
}

func (l *Local) String() string {
	return l.dir
}
