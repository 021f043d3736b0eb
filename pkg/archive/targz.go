package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"time"

	"github.com/arthur-debert/keystash/pkg/errors"
)

type tarGz struct {
	base
}

func (t *tarGz) Format() Format { return FormatTarGz }

func (t *tarGz) Compress(stagingRoot string, stagedPaths []string, destDir string, opts Options) (string, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	opts.Now = now

	return t.compress(FormatTarGz, stagingRoot, stagedPaths, destDir, opts, func(w io.Writer, each func(entryWriter) error) error {
		gzWriter := gzip.NewWriter(w)
		gzWriter.Comment = opts.Comment
		gzWriter.ModTime = now

		tarWriter := tar.NewWriter(gzWriter)
		err := each(func(name string, size int64, r io.Reader) error {
			header := &tar.Header{
				Typeflag: tar.TypeReg,
				Name:     name,
				Mode:     entryMode,
				Size:     size,
				ModTime:  now,
				Format:   tar.FormatPAX,
			}
			if err := tarWriter.WriteHeader(header); err != nil {
				return err
			}
			_, err := io.CopyN(tarWriter, r, size)
			return err
		})
		if err != nil {
			return err
		}
		if err := tarWriter.Close(); err != nil {
			return err
		}
		return gzWriter.Close()
	})
}

func (t *tarGz) Extract(archivePath, destination string) ([]string, error) {
	var names []string
	err := t.walk(archivePath, func(header *tar.Header, r io.Reader) error {
		switch header.Typeflag {
		case tar.TypeDir:
			return nil
		case tar.TypeReg:
		default:
			t.logger.Warn().Str("entry", header.Name).Msg("Skipping non-regular archive entry")
			return nil
		}
		name, err := t.extractTo(destination, header.Name, r)
		if err != nil {
			return err
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info().Str("archive", archivePath).Str("destination", destination).Int("entries", len(names)).Msg("Archive extracted")
	return names, nil
}

func (t *tarGz) Entries(archivePath string) ([]string, error) {
	var names []string
	err := t.walk(archivePath, func(header *tar.Header, _ io.Reader) error {
		if header.Typeflag == tar.TypeReg {
			names = append(names, header.Name)
		}
		return nil
	})
	return names, err
}

func (t *tarGz) ReadComment(archivePath string) (string, error) {
	f, _, err := t.open(archivePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrArchiveFormat, "%s is not a gzip file", archivePath)
	}
	defer func() { _ = gzReader.Close() }()
	return gzReader.Comment, nil
}

func (t *tarGz) walk(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	f, _, err := t.open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveFormat, "%s is not a gzip file", archivePath)
	}
	defer func() { _ = gzReader.Close() }()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, errors.ErrIO, "corrupt archive %s", archivePath)
		}
		if err := fn(header, tarReader); err != nil {
			return err
		}
	}
}
