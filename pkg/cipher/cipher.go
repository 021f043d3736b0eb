// Package cipher implements per-file authenticated encryption.
//
// Blobs are framed as nonce || ciphertext || tag using ChaCha20-Poly1305
// with a fresh random 96-bit nonce per call. Whole files are processed in
// memory.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/keys"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the length of the nonce prefix of every blob
	NonceSize = chacha20poly1305.NonceSize
	// Overhead is the number of bytes a blob adds to its plaintext
	Overhead = NonceSize + chacha20poly1305.Overhead
)

// Encrypt seals plaintext under key with no associated data
func Encrypt(plaintext []byte, key *keys.Key) ([]byte, error) {
	return Seal(plaintext, key, nil)
}

// Decrypt opens a blob produced by Encrypt
func Decrypt(blob []byte, key *keys.Key) ([]byte, error) {
	return Open(blob, key, nil)
}

// Seal encrypts plaintext and binds aad to the result. The same aad must be
// supplied to Open.
func Seal(plaintext []byte, key *keys.Key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(blob); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to generate nonce")
	}
	return aead.Seal(blob, blob[:NonceSize], plaintext, aad), nil
}

// Open authenticates and decrypts blob. Any mismatch in key, aad or content
// fails with ErrAuthentication and returns no plaintext.
func Open(blob []byte, key *keys.Key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < Overhead {
		return nil, errors.Newf(errors.ErrAuthentication, "blob too short: %d bytes", len(blob))
	}

	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], aad)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrAuthentication, "message authentication failed")
	}
	return plaintext, nil
}

func newAEAD(key *keys.Key) (stdcipher.AEAD, error) {
	if key.Destroyed() {
		return nil, errors.New(errors.ErrInternal, "key has been destroyed")
	}
	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to initialise cipher")
	}
	return aead, nil
}
