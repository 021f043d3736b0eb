// Package archive packs a staging tree into a single compressed file and
// unpacks it again.
//
// Entry names are the staged files' paths relative to the staging root,
// slash-separated, so the archive mirrors the staging layout exactly.
// Archives are written to a temporary file beside their final name and
// renamed into place once complete.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Format is a supported container format
type Format string

const (
	FormatTarGz Format = "tar.gz"
	FormatZip   Format = "zip"
)

// FilePrefix starts every archive file name
const FilePrefix = "keystash-"

// timestampLayout gives archive names one-second resolution
const timestampLayout = "20060102-150405"

// entryMode is recorded for every entry regardless of the source file mode
const entryMode = 0600

// ParseFormat accepts "tar.gz" (or "tgz") and "zip"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", errors.Newf(errors.ErrArchiveFormat, "unsupported archive format %q (want tar.gz or zip)", s).
			WithDetail("format", s)
	}
}

// Ext is the file extension for the format, without a leading dot
func (f Format) Ext() string {
	return string(f)
}

// FormatOf infers the format from an archive file name
func FormatOf(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	}
	return "", errors.Newf(errors.ErrArchiveFormat, "cannot tell archive format of %s", path)
}

// Options tune Compress
type Options struct {
	// Comment is stored in the container header (gzip comment or zip
	// archive comment). Used for the key header.
	Comment string
	// Now stamps the file name and entries. Defaults to time.Now.
	Now time.Time
}

// Builder creates and reads archives of one format
type Builder interface {
	Format() Format
	// Compress writes stagedPaths, each under stagingRoot, into a new
	// archive in destDir and returns its path.
	Compress(stagingRoot string, stagedPaths []string, destDir string, opts Options) (string, error)
	// Extract expands every entry under destination and returns the entry
	// names in archive order.
	Extract(archivePath, destination string) ([]string, error)
	// Entries lists entry names in archive order
	Entries(archivePath string) ([]string, error)
	// ReadComment returns the container comment
	ReadComment(archivePath string) (string, error)
}

// New returns the builder for format
func New(format Format, fs afero.Fs) (Builder, error) {
	base := base{fs: fs, logger: logging.GetLogger("archive")}
	switch format {
	case FormatTarGz:
		return &tarGz{base}, nil
	case FormatZip:
		return &zipArchive{base}, nil
	default:
		return nil, errors.Newf(errors.ErrArchiveFormat, "unsupported archive format %q", format)
	}
}

// ForPath returns the builder matching an existing archive's extension
func ForPath(fs afero.Fs, archivePath string) (Builder, error) {
	format, err := FormatOf(archivePath)
	if err != nil {
		return nil, err
	}
	return New(format, fs)
}

// FileName returns the archive file name for a run finishing at t
func FileName(format Format, t time.Time) string {
	return fmt.Sprintf("%s%s.%s", FilePrefix, t.Format(timestampLayout), format.Ext())
}

type base struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// entryWriter adds one file's content under name
type entryWriter func(name string, size int64, r io.Reader) error

func (b base) compress(format Format, stagingRoot string, stagedPaths []string, destDir string, opts Options,
	write func(w io.Writer, each func(entryWriter) error) error) (string, error) {

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Validate every entry before anything touches disk
	names := make([]string, len(stagedPaths))
	for i, staged := range stagedPaths {
		if !filesystem.IsWithin(stagingRoot, staged) {
			return "", errors.Newf(errors.ErrIO, "staged path %s is outside staging root %s", staged, stagingRoot)
		}
		rel, err := filepath.Rel(stagingRoot, staged)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrIO, "cannot relativize %s", staged)
		}
		names[i] = filepath.ToSlash(rel)
	}

	if err := b.fs.MkdirAll(destDir, 0700); err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot create destination %s", destDir)
	}
	archivePath := filepath.Join(destDir, FileName(format, now))
	if filesystem.Exists(b.fs, archivePath) {
		return "", errors.Newf(errors.ErrIO, "archive %s already exists", archivePath).
			WithDetail("path", archivePath)
	}

	each := func(add entryWriter) error {
		for i, staged := range stagedPaths {
			if err := b.addFile(add, names[i], staged); err != nil {
				return err
			}
		}
		return nil
	}

	err := filesystem.AtomicWriteFile(b.fs, archivePath, 0600, func(w io.Writer) error {
		return write(w, each)
	})
	if err != nil {
		if errors.GetErrorCode(err) != errors.ErrUnknown {
			return "", err
		}
		return "", errors.Wrapf(err, errors.ErrIO, "failed to write archive %s", archivePath)
	}

	b.logger.Info().
		Str("path", archivePath).
		Str("format", string(format)).
		Int("entries", len(names)).
		Msg("Archive written")
	return archivePath, nil
}

func (b base) addFile(add entryWriter, name, path string) error {
	f, err := b.fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "cannot open staged file %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "cannot stat staged file %s", path)
	}
	if !info.Mode().IsRegular() {
		return errors.Newf(errors.ErrIO, "staged path %s is not a regular file", path)
	}

	if err := add(name, info.Size(), f); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "cannot add %s to archive", name)
	}
	b.logger.Trace().Str("entry", name).Int64("size", info.Size()).Msg("Added entry")
	return nil
}

// extractTo writes one entry under destination after checking it cannot
// escape it, returning the cleaned entry name.
func (b base) extractTo(destination, name string, r io.Reader) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	target := filepath.Join(destination, clean)
	if filepath.IsAbs(clean) || !filesystem.IsWithin(destination, target) {
		return "", errors.Newf(errors.ErrIO, "archive entry %q escapes the destination", name).
			WithDetail("entry", name)
	}

	if err := b.fs.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot create directory for %s", name)
	}
	out, err := b.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entryMode)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot create %s", target)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return "", errors.Wrapf(err, errors.ErrIO, "cannot write %s", target)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot write %s", target)
	}
	return filepath.ToSlash(clean), nil
}

func (b base) open(archivePath string) (afero.File, os.FileInfo, error) {
	f, err := b.fs.Open(archivePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrIO, "cannot open archive %s", archivePath)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, errors.ErrIO, "cannot stat archive %s", archivePath)
	}
	return f, info, nil
}
