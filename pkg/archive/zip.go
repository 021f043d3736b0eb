package archive

import (
	"archive/zip"
	"io"
	"strings"
	"time"

	"github.com/arthur-debert/keystash/pkg/errors"
)

type zipArchive struct {
	base
}

func (z *zipArchive) Format() Format { return FormatZip }

func (z *zipArchive) Compress(stagingRoot string, stagedPaths []string, destDir string, opts Options) (string, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	opts.Now = now

	return z.compress(FormatZip, stagingRoot, stagedPaths, destDir, opts, func(w io.Writer, each func(entryWriter) error) error {
		zipWriter := zip.NewWriter(w)
		if err := zipWriter.SetComment(opts.Comment); err != nil {
			return err
		}

		err := each(func(name string, _ int64, r io.Reader) error {
			header := &zip.FileHeader{
				Name:     name,
				Method:   zip.Deflate,
				Modified: now,
			}
			header.SetMode(entryMode)
			entry, err := zipWriter.CreateHeader(header)
			if err != nil {
				return err
			}
			_, err = io.Copy(entry, r)
			return err
		})
		if err != nil {
			return err
		}
		return zipWriter.Close()
	})
}

func (z *zipArchive) Extract(archivePath, destination string) ([]string, error) {
	var names []string
	err := z.read(archivePath, func(r *zip.Reader) error {
		for _, file := range r.File {
			if strings.HasSuffix(file.Name, "/") || file.FileInfo().IsDir() {
				continue
			}
			if !file.Mode().IsRegular() {
				z.logger.Warn().Str("entry", file.Name).Msg("Skipping non-regular archive entry")
				continue
			}
			name, err := z.extractEntry(destination, file)
			if err != nil {
				return err
			}
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	z.logger.Info().Str("archive", archivePath).Str("destination", destination).Int("entries", len(names)).Msg("Archive extracted")
	return names, nil
}

func (z *zipArchive) extractEntry(destination string, file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot read entry %s", file.Name)
	}
	defer func() { _ = rc.Close() }()
	return z.extractTo(destination, file.Name, rc)
}

func (z *zipArchive) Entries(archivePath string) ([]string, error) {
	var names []string
	err := z.read(archivePath, func(r *zip.Reader) error {
		for _, file := range r.File {
			if !file.FileInfo().IsDir() {
				names = append(names, file.Name)
			}
		}
		return nil
	})
	return names, err
}

func (z *zipArchive) ReadComment(archivePath string) (string, error) {
	var comment string
	err := z.read(archivePath, func(r *zip.Reader) error {
		comment = r.Comment
		return nil
	})
	return comment, err
}

func (z *zipArchive) read(archivePath string, fn func(*zip.Reader) error) error {
	f, info, err := z.open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveFormat, "%s is not a zip file", archivePath)
	}
	return fn(r)
}
