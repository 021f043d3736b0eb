package secrets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Prompt asks for the passphrase on the terminal without echo. With Confirm
// set the passphrase is asked twice and both entries must match.
type Prompt struct {
	Out     io.Writer
	Confirm bool
	// ReadPassword reads one line without echo. Defaults to reading the
	// terminal on stdin.
	ReadPassword func() ([]byte, error)
}

// NewPrompt returns a double-entry prompt on stdin/stderr
func NewPrompt() *Prompt {
	return &Prompt{Out: os.Stderr, Confirm: true, ReadPassword: readTerminal}
}

// Passphrase implements Source
func (p *Prompt) Passphrase(ctx context.Context) ([]byte, error) {
	read := p.ReadPassword
	if read == nil {
		read = readTerminal
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "passphrase acquisition cancelled")
	}
	fmt.Fprint(out, "Passphrase: ")
	first, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New(errors.ErrPassphraseEmpty, "passphrase must not be empty")
	}
	if !p.Confirm {
		return first, nil
	}

	if err := ctx.Err(); err != nil {
		keys.Zero(first)
		return nil, errors.Wrap(err, errors.ErrCancelled, "passphrase acquisition cancelled")
	}
	fmt.Fprint(out, "Confirm passphrase: ")
	second, err := read()
	fmt.Fprintln(out)
	if err != nil {
		keys.Zero(first)
		return nil, err
	}
	defer keys.Zero(second)

	if !bytes.Equal(first, second) {
		keys.Zero(first)
		return nil, errors.New(errors.ErrPassphraseMismatch, "passphrases do not match")
	}
	return first, nil
}

func readTerminal() ([]byte, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil, errors.New(errors.ErrInvalidInput, "cannot prompt for passphrase: stdin is not a terminal; use encryption_key_path or "+EnvPassphrase)
	}
	pw, err := term.ReadPassword(int(fd))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrIO, "failed to read passphrase")
	}
	return pw, nil
}
