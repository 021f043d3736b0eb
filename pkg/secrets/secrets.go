// Package secrets acquires the passphrase a backup run derives its key from.
//
// A Source is asked exactly once per run. Returned byte slices belong to the
// caller, who should zero them when done.
package secrets

import (
	"context"
	"os"

	"github.com/arthur-debert/keystash/pkg/config"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/spf13/afero"
)

// EnvPassphrase is the environment variable read by Env
const EnvPassphrase = "KEYSTASH_PASSPHRASE"

// Source supplies a passphrase
type Source interface {
	Passphrase(ctx context.Context) ([]byte, error)
}

// Static always returns the same passphrase
type Static []byte

// Passphrase implements Source
func (s Static) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "passphrase acquisition cancelled")
	}
	if len(s) == 0 {
		return nil, errors.New(errors.ErrPassphraseEmpty, "passphrase must not be empty")
	}
	return append([]byte(nil), s...), nil
}

// Env reads the passphrase from an environment variable, EnvPassphrase by
// default.
type Env struct {
	Name string
}

// Passphrase implements Source
func (e Env) Passphrase(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "passphrase acquisition cancelled")
	}
	name := e.Name
	if name == "" {
		name = EnvPassphrase
	}
	value := os.Getenv(name)
	if value == "" {
		return nil, errors.Newf(errors.ErrPassphraseEmpty, "%s is not set", name).
			WithDetail("variable", name)
	}
	return []byte(value), nil
}

// FromSettings picks the passphrase source a run should use: the key file
// when one is configured, the terminal prompt when prompting is enabled,
// and the environment otherwise.
func FromSettings(fs afero.Fs, s *config.Settings) Source {
	switch {
	case s.KeyPath() != "":
		return KeyFile{FS: fs, Path: s.KeyPath()}
	case s.EncryptionPassphrasePrompt:
		return NewPrompt()
	default:
		return Env{}
	}
}
