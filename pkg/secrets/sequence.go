package secrets

import (
	"github.com/arthur-debert/keystash/pkg/errors"
)

// Sequence returns a ReadPassword func that yields entries in order, for
// driving a Prompt without a terminal.
func Sequence(entries ...string) func() ([]byte, error) {
	i := 0
	return func() ([]byte, error) {
		if i >= len(entries) {
			return nil, errors.New(errors.ErrIO, "no more input")
		}
		entry := entries[i]
		i++
		return []byte(entry), nil
	}
}
