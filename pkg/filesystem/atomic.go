package filesystem

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// AtomicWriteFile writes path through a temporary sibling file that is
// renamed into place only after write succeeds and the data is synced. On
// any failure the temporary file is removed, so a truncated file never
// appears under the final name.
func AtomicWriteFile(fsys afero.Fs, path string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	closed := false

	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		_ = fsys.Remove(tmpName)
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = fsys.Chmod(tmpName, perm); err != nil {
		return err
	}
	return fsys.Rename(tmpName, path)
}
