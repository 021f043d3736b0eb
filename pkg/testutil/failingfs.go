package testutil

import (
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Operations FailingFs can intercept
const (
	OpOpen   = "open"
	OpCreate = "create"
	OpMkdir  = "mkdir"
	OpRename = "rename"
	OpWrite  = "write"
	OpRemove = "remove"
)

// FailingFs wraps an afero.Fs and returns an injected error whenever Fail
// returns one for an operation and path. Writes on files it opened are
// intercepted with OpWrite.
type FailingFs struct {
	afero.Fs
	Fail func(op, name string) error
}

// FailWhen returns a Fail func that fails op for any path containing
// fragment.
func FailWhen(op, fragment string, err error) func(string, string) error {
	return func(gotOp, name string) error {
		if gotOp == op && strings.Contains(name, fragment) {
			return err
		}
		return nil
	}
}

func (f *FailingFs) check(op, name string) error {
	if f.Fail == nil {
		return nil
	}
	if err := f.Fail(op, name); err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}
	return nil
}

func (f *FailingFs) Create(name string) (afero.File, error) {
	if err := f.check(OpCreate, name); err != nil {
		return nil, err
	}
	file, err := f.Fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: file, fs: f}, nil
}

func (f *FailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	op := OpOpen
	if flag&os.O_CREATE != 0 {
		op = OpCreate
	}
	if err := f.check(op, name); err != nil {
		return nil, err
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: file, fs: f}, nil
}

func (f *FailingFs) Open(name string) (afero.File, error) {
	if err := f.check(OpOpen, name); err != nil {
		return nil, err
	}
	return f.Fs.Open(name)
}

func (f *FailingFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.check(OpMkdir, name); err != nil {
		return err
	}
	return f.Fs.Mkdir(name, perm)
}

func (f *FailingFs) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdir, path); err != nil {
		return err
	}
	return f.Fs.MkdirAll(path, perm)
}

func (f *FailingFs) Rename(oldname, newname string) error {
	if err := f.check(OpRename, newname); err != nil {
		return err
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *FailingFs) Remove(name string) error {
	if err := f.check(OpRemove, name); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

func (f *FailingFs) RemoveAll(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}
	return f.Fs.RemoveAll(path)
}

type failingFile struct {
	afero.File
	fs *FailingFs
}

func (ff *failingFile) Write(p []byte) (int, error) {
	if err := ff.fs.check(OpWrite, ff.Name()); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}
