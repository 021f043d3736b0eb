package backup

import (
	"context"
	"io"
	"path/filepath"

	"github.com/arthur-debert/keystash/pkg/archive"
	"github.com/arthur-debert/keystash/pkg/cipher"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/secrets"
	"github.com/spf13/afero"
)

// ExtractOptions control Extract
type ExtractOptions struct {
	// Decrypt replaces every extracted blob with its plaintext
	Decrypt bool
	// Secrets supplies the passphrase when Decrypt is set
	Secrets secrets.Source
}

// Extract unpacks archivePath into dest and, when asked, decrypts the
// entries in place. It returns the extracted relative paths. This is a
// building block for restoring, not a restore: nothing is copied back to
// its original location.
func Extract(ctx context.Context, fs afero.Fs, archivePath, dest string, opts ExtractOptions) ([]string, error) {
	logger := logging.GetLogger("backup.extract")
	builder, err := archive.ForPath(fs, archivePath)
	if err != nil {
		return nil, err
	}

	// Read the header first so a plain archive fails before anything is
	// written
	var header keys.Header
	if opts.Decrypt {
		if opts.Secrets == nil {
			return nil, errors.New(errors.ErrInternal, "decryption requested without a passphrase source")
		}
		comment, err := builder.ReadComment(archivePath)
		if err != nil {
			return nil, err
		}
		if comment == "" {
			return nil, errors.Newf(errors.ErrInvalidInput, "%s was not encrypted", archivePath)
		}
		header, err = keys.ParseHeader(comment)
		if err != nil {
			return nil, err
		}
	}

	rels, err := builder.Extract(archivePath, dest)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("archive", archivePath).Str("dest", dest).Int("entries", len(rels)).Msg("Archive extracted")

	if !opts.Decrypt {
		return rels, nil
	}

	passphrase, err := opts.Secrets.Passphrase(ctx)
	if err != nil {
		return nil, err
	}
	key, err := keys.Derive(passphrase, header.Salt, header.Params)
	keys.Zero(passphrase)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	if err := DecryptTree(ctx, fs, dest, rels, key); err != nil {
		return nil, err
	}
	return rels, nil
}

// DecryptTree replaces each blob under root, named by its relative path,
// with its plaintext. Each file is rewritten atomically, so a failure leaves
// every file either fully decrypted or untouched. It stops at the first
// file that fails to authenticate.
func DecryptTree(ctx context.Context, fs afero.Fs, root string, rels []string, key *keys.Key) error {
	logger := logging.GetLogger("backup.extract")
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCancelled, "decryption cancelled")
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		if !filesystem.IsWithin(root, path) {
			return errors.Newf(errors.ErrIO, "entry %s escapes %s", rel, root)
		}

		blob, err := afero.ReadFile(fs, path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrIO, "cannot read %s", path)
		}
		plain, err := cipher.Open(blob, key, []byte(rel))
		if err != nil {
			return errors.Wrapf(err, errors.ErrAuthentication, "cannot decrypt %s; wrong passphrase or damaged archive", rel)
		}

		err = filesystem.AtomicWriteFile(fs, path, 0600, func(w io.Writer) error {
			_, err := w.Write(plain)
			return err
		})
		keys.Zero(plain)
		if err != nil {
			return errors.Wrapf(err, errors.ErrIO, "cannot write %s", path)
		}
		logger.Debug().Str("rel", rel).Msg("Decrypted")
	}
	logger.Info().Int("files", len(rels)).Msg("Decryption complete")
	return nil
}
