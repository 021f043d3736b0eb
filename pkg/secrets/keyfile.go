package secrets

import (
	"bytes"
	"context"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/spf13/afero"
)

// KeyFile reads the passphrase from a file. One trailing newline is
// stripped so files written with echo work.
type KeyFile struct {
	FS   afero.Fs
	Path string
}

// Passphrase implements Source
func (k KeyFile) Passphrase(ctx context.Context) ([]byte, error) {
	logger := logging.GetLogger("secrets.keyfile")
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "passphrase acquisition cancelled")
	}

	info, err := k.FS.Stat(k.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrKeyFile, "cannot read key file %s", k.Path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Newf(errors.ErrKeyFile, "key file %s is not a regular file", k.Path).
			WithDetail("path", k.Path)
	}
	if info.Mode().Perm()&0077 != 0 {
		logger.Warn().
			Str("path", k.Path).
			Str("mode", info.Mode().Perm().String()).
			Msg("Key file is readable by other users; chmod 600 recommended")
	}

	data, err := afero.ReadFile(k.FS, k.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrKeyFile, "cannot read key file %s", k.Path)
	}

	passphrase := data
	switch {
	case bytes.HasSuffix(passphrase, []byte("\r\n")):
		passphrase = passphrase[:len(passphrase)-2]
	case bytes.HasSuffix(passphrase, []byte("\n")):
		passphrase = passphrase[:len(passphrase)-1]
	}
	if len(passphrase) == 0 {
		return nil, errors.Newf(errors.ErrPassphraseEmpty, "key file %s is empty", k.Path)
	}

	logger.Debug().Str("path", k.Path).Msg("Passphrase read from key file")
	return passphrase, nil
}
