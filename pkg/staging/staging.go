// Package staging materializes discovered files into a private mirror
// directory that the archive is built from.
//
// An Arena owns one staging root for one run. Opening it destroys whatever
// a crashed run left behind and recreates the root empty; Destroy removes
// it again. Files are laid out by their home-relative path and are either
// encrypted (when a key is supplied) or copied.
package staging

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arthur-debert/keystash/pkg/cipher"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	dirMode  os.FileMode = 0700
	fileMode os.FileMode = 0600
)

// Entry records one staged file
type Entry struct {
	// Source is the canonical path of the discovered file
	Source string
	// Rel is the slash-separated path inside the staging tree and archive
	Rel string
	// Staged is the absolute path of the staged copy
	Staged string
	// Encrypted is true when Staged holds a cipher blob
	Encrypted bool
}

// Arena is the staging root of a single run
type Arena struct {
	fs        afero.Fs
	root      string
	home      string
	entries   []Entry
	byRel     map[string]string
	destroyed bool
	logger    zerolog.Logger
}

// CheckRoot rejects staging roots that wiping would make destructive: the
// home directory or any directory containing it, and any directory that
// equals, contains or lies under one of protected. Paths are compared after
// resolving symlinks; a nil fs compares them lexically.
func CheckRoot(fs afero.Fs, root, home string, protected ...string) error {
	if root == "" || filepath.Clean(root) == string(filepath.Separator) {
		return errors.Newf(errors.ErrInvalidInput, "refusing to use %q as staging root", root)
	}
	resolved := filesystem.Resolve(fs, root)
	if home != "" {
		h := filesystem.Resolve(fs, home)
		if h == resolved || filesystem.IsWithin(resolved, h) {
			return errors.Newf(errors.ErrInvalidInput, "staging root %s would contain the home directory %s", root, home).
				WithDetail("staging", root)
		}
	}
	for _, p := range protected {
		if p == "" {
			continue
		}
		if filesystem.Overlaps(resolved, filesystem.Resolve(fs, p)) {
			return errors.Newf(errors.ErrInvalidInput, "staging root %s overlaps %s", root, p).
				WithDetail("staging", root).
				WithDetail("overlaps", p)
		}
	}
	return nil
}

// RemoveStale deletes a staging root left behind by an earlier run. A
// missing root is not an error.
func RemoveStale(fs afero.Fs, root string) error {
	if !filesystem.Exists(fs, root) {
		return nil
	}
	logger := logging.GetLogger("staging")
	logger.Warn().Str("path", root).Msg("Removing staging directory left by an earlier run")
	if err := fs.RemoveAll(root); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "cannot remove stale staging directory %s", root)
	}
	return nil
}

// Open prepares root for a new run, destroying any leftover content
func Open(fs afero.Fs, root, home string) (*Arena, error) {
	logger := logging.GetLogger("staging")
	if err := CheckRoot(fs, root, home); err != nil {
		return nil, err
	}
	root = filepath.Clean(root)

	if err := RemoveStale(fs, root); err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(root, dirMode); err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "cannot create staging directory %s", root)
	}
	// MkdirAll leaves an existing mode alone and is subject to umask
	if err := fs.Chmod(root, dirMode); err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "cannot restrict staging directory %s", root)
	}

	// Discovered paths are canonical, so the home they are mapped against
	// must be too
	if home != "" {
		if canonical, err := filesystem.Canonical(fs, home); err == nil {
			home = canonical
		}
	}

	logger.Debug().Str("path", root).Msg("Staging root ready")
	return &Arena{
		fs:     fs,
		root:   root,
		home:   home,
		byRel:  make(map[string]string),
		logger: logger,
	}, nil
}

// Root is the staging root directory
func (a *Arena) Root() string {
	return a.root
}

// Entries returns the staged entries in staging order
func (a *Arena) Entries() []Entry {
	return append([]Entry(nil), a.entries...)
}

// StagedPaths returns the absolute staged paths in staging order
func (a *Arena) StagedPaths() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Staged
	}
	return out
}

// Stage copies or encrypts one discovered file into the arena. With a nil
// key the file is copied as is; otherwise it is sealed with its relative
// path as associated data.
func (a *Arena) Stage(source string, key *keys.Key) (Entry, error) {
	if a.destroyed {
		return Entry{}, errors.New(errors.ErrInternal, "staging arena already destroyed")
	}

	rel := filepath.ToSlash(paths.RelativeToHome(a.home, source))
	if rel == "" {
		return Entry{}, errors.Newf(errors.ErrIO, "cannot derive a staging path for %s", source)
	}
	staged := filepath.Join(a.root, filepath.FromSlash(rel))
	if !filesystem.IsWithin(a.root, staged) {
		return Entry{}, errors.Newf(errors.ErrIO, "staging path for %s escapes the staging root", source).
			WithDetail("rel", rel)
	}
	if prev, ok := a.byRel[rel]; ok {
		return Entry{}, errors.Newf(errors.ErrIO, "%s and %s map to the same staging path %s", prev, source, rel).
			WithDetail("rel", rel)
	}

	if err := a.fs.MkdirAll(filepath.Dir(staged), dirMode); err != nil {
		return Entry{}, errors.Wrapf(err, errors.ErrIO, "cannot create staging directory for %s", rel)
	}

	plaintext, err := afero.ReadFile(a.fs, source)
	if err != nil {
		return Entry{}, errors.Wrapf(err, errors.ErrIO, "cannot read %s", source)
	}

	payload := plaintext
	encrypted := key != nil
	if encrypted {
		payload, err = cipher.Seal(plaintext, key, []byte(rel))
		keys.Zero(plaintext)
		if err != nil {
			return Entry{}, err
		}
	}

	err = afero.WriteFile(a.fs, staged, payload, fileMode)
	if !encrypted {
		keys.Zero(plaintext)
	}
	if err != nil {
		_ = a.fs.Remove(staged)
		return Entry{}, errors.Wrapf(err, errors.ErrIO, "cannot write staged file %s", rel)
	}

	entry := Entry{Source: source, Rel: rel, Staged: staged, Encrypted: encrypted}
	a.entries = append(a.entries, entry)
	a.byRel[rel] = source
	a.logger.Debug().
		Str("source", source).
		Str("rel", rel).
		Bool("encrypted", encrypted).
		Msg("Staged file")
	return entry, nil
}

// StageAll stages sources in order, stopping at the first failure
func (a *Arena) StageAll(ctx context.Context, sources []string, key *keys.Key) error {
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCancelled, "staging cancelled")
		}
		if _, err := a.Stage(source, key); err != nil {
			return err
		}
	}
	a.logger.Info().Int("files", len(a.entries)).Msg("Staging complete")
	return nil
}

// Destroy removes the staging root and everything in it. Safe to call more
// than once.
func (a *Arena) Destroy() error {
	if a == nil || a.destroyed {
		return nil
	}
	if err := a.fs.RemoveAll(a.root); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "cannot remove staging directory %s", a.root)
	}
	a.destroyed = true
	a.entries = nil
	a.byRel = nil
	a.logger.Debug().Str("path", a.root).Msg("Staging root destroyed")
	return nil
}
