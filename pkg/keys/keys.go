// Package keys derives the per-run encryption key from a passphrase.
//
// Keys come from argon2id over the passphrase and a random per-run salt.
// The salt and cost parameters are not secret; they travel with the archive
// as a header string so the same passphrase can re-derive the key later.
package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/arthur-debert/keystash/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the length of derived keys in bytes
	KeySize = 32
	// SaltSize is the length of generated salts in bytes
	SaltSize = 16

	algorithm = "argon2id"
)

// Params are the argon2id cost parameters
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams follow the argon2 RFC 9106 second recommended option
var DefaultParams = Params{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

// Validate rejects parameters argon2 cannot use
func (p Params) Validate() error {
	if p.Time < 1 {
		return errors.New(errors.ErrKeyDerivation, "kdf time must be at least 1")
	}
	if p.Threads < 1 {
		return errors.New(errors.ErrKeyDerivation, "kdf threads must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return errors.Newf(errors.ErrKeyDerivation, "kdf memory must be at least %d KiB", 8*uint32(p.Threads))
	}
	return nil
}

// Key is a derived symmetric key. It lives only in memory.
type Key struct {
	bytes []byte
}

// Derive runs argon2id over passphrase and salt
func Derive(passphrase, salt []byte, params Params) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, errors.New(errors.ErrPassphraseEmpty, "passphrase must not be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New(errors.ErrKeyDerivation, "salt must not be empty")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Key{bytes: argon2.IDKey(passphrase, salt, params.Time, params.MemoryKiB, params.Threads, KeySize)}, nil
}

// FromBytes wraps raw key material, copying it
func FromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, errors.Newf(errors.ErrKeyDerivation, "key must be %d bytes, got %d", KeySize, len(b))
	}
	return &Key{bytes: append([]byte(nil), b...)}, nil
}

// NewSalt returns SaltSize random bytes
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, errors.ErrKeyDerivation, "failed to generate salt")
	}
	return salt, nil
}

// Bytes exposes the key material. Callers must not retain or modify it.
// A destroyed key returns nil.
func (k *Key) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.bytes
}

// Equal compares two keys in constant time
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

// Destroyed reports whether Destroy has run
func (k *Key) Destroyed() bool {
	return k == nil || k.bytes == nil
}

// Destroy zeroes the key material. Safe to call more than once and on nil.
func (k *Key) Destroy() {
	if k == nil || k.bytes == nil {
		return
	}
	Zero(k.bytes)
	k.bytes = nil
}

// String never reveals key material
func (k *Key) String() string {
	return "keys.Key(REDACTED)"
}

// GoString keeps %#v from printing the bytes
func (k *Key) GoString() string {
	return k.String()
}

// Zero overwrites b with zeroes
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Header is the non-secret information needed to re-derive a key
type Header struct {
	Params Params
	Salt   []byte
}

// String renders the header as argon2id$v=19$t=3,m=65536,p=4$<salt>
func (h Header) String() string {
	return fmt.Sprintf("%s$v=%d$t=%d,m=%d,p=%d$%s",
		algorithm, argon2.Version,
		h.Params.Time, h.Params.MemoryKiB, h.Params.Threads,
		base64.RawStdEncoding.EncodeToString(h.Salt))
}

// ParseHeader is the inverse of Header.String
func ParseHeader(s string) (Header, error) {
	parts := strings.Split(strings.TrimSpace(s), "$")
	if len(parts) != 4 || parts[0] != algorithm {
		return Header{}, errors.Newf(errors.ErrKeyDerivation, "not a key header: %q", s)
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return Header{}, errors.Wrapf(err, errors.ErrKeyDerivation, "malformed version in key header")
	}
	if version != argon2.Version {
		return Header{}, errors.Newf(errors.ErrKeyDerivation, "unsupported argon2 version %d", version)
	}

	var h Header
	if _, err := fmt.Sscanf(parts[2], "t=%d,m=%d,p=%d", &h.Params.Time, &h.Params.MemoryKiB, &h.Params.Threads); err != nil {
		return Header{}, errors.Wrapf(err, errors.ErrKeyDerivation, "malformed parameters in key header")
	}
	if err := h.Params.Validate(); err != nil {
		return Header{}, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return Header{}, errors.Newf(errors.ErrKeyDerivation, "malformed salt in key header")
	}
	h.Salt = salt
	return h, nil
}
