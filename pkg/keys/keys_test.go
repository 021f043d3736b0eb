package keys_test

import (
	"fmt"
	"testing"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the tests fast
var testParams = keys.Params{Time: 1, MemoryKiB: 64, Threads: 1}

func TestDerive(t *testing.T) {
	salt := []byte("0123456789abcdef")

	t.Run("deterministic_for_same_inputs", func(t *testing.T) {
		a, err := keys.Derive([]byte("correct-horse"), salt, testParams)
		require.NoError(t, err)
		b, err := keys.Derive([]byte("correct-horse"), salt, testParams)
		require.NoError(t, err)

		assert.Len(t, a.Bytes(), keys.KeySize)
		assert.True(t, a.Equal(b))
	})

	t.Run("salt_changes_key", func(t *testing.T) {
		a, err := keys.Derive([]byte("correct-horse"), salt, testParams)
		require.NoError(t, err)
		b, err := keys.Derive([]byte("correct-horse"), []byte("fedcba9876543210"), testParams)
		require.NoError(t, err)
		assert.False(t, a.Equal(b))
	})

	t.Run("empty_passphrase_rejected", func(t *testing.T) {
		_, err := keys.Derive(nil, salt, testParams)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrPassphraseEmpty))
	})

	t.Run("invalid_params_rejected", func(t *testing.T) {
		_, err := keys.Derive([]byte("pw"), salt, keys.Params{Time: 0, MemoryKiB: 64, Threads: 1})
		assert.True(t, errors.IsErrorCode(err, errors.ErrKeyDerivation))
	})
}

func TestKey_Destroy(t *testing.T) {
	key, err := keys.Derive([]byte("pw"), []byte("salt-salt-salt!!"), testParams)
	require.NoError(t, err)

	raw := key.Bytes()
	key.Destroy()

	assert.True(t, key.Destroyed())
	assert.Nil(t, key.Bytes())
	assert.Equal(t, make([]byte, keys.KeySize), raw, "backing array must be zeroed")

	assert.NotPanics(t, func() { key.Destroy() })
	var nilKey *keys.Key
	assert.NotPanics(t, func() { nilKey.Destroy() })
}

func TestKey_StringRedacted(t *testing.T) {
	key, err := keys.FromBytes(make([]byte, keys.KeySize))
	require.NoError(t, err)

	for _, s := range []string{key.String(), fmt.Sprintf("%v", key), fmt.Sprintf("%#v", key)} {
		assert.Contains(t, s, "REDACTED")
	}
}

func TestNewSalt(t *testing.T) {
	a, err := keys.NewSalt()
	require.NoError(t, err)
	b, err := keys.NewSalt()
	require.NoError(t, err)

	assert.Len(t, a, keys.SaltSize)
	assert.NotEqual(t, a, b)
}

func TestHeader(t *testing.T) {
	t.Run("round_trip", func(t *testing.T) {
		h := keys.Header{Params: keys.DefaultParams, Salt: []byte("0123456789abcdef")}
		s := h.String()
		assert.Regexp(t, `^argon2id\$v=19\$t=3,m=65536,p=4\$[A-Za-z0-9+/]+$`, s)

		back, err := keys.ParseHeader(s)
		require.NoError(t, err)
		assert.Equal(t, h, back)
	})

	t.Run("rejects_garbage", func(t *testing.T) {
		for _, s := range []string{
			"",
			"scrypt$v=19$t=3,m=65536,p=4$AAAA",
			"argon2id$v=16$t=3,m=65536,p=4$AAAA",
			"argon2id$v=19$t=x$AAAA",
			"argon2id$v=19$t=3,m=65536,p=4$!!!",
		} {
			_, err := keys.ParseHeader(s)
			assert.True(t, errors.IsErrorCode(err, errors.ErrKeyDerivation), s)
		}
	})
}
