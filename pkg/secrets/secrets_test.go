package secrets_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/arthur-debert/keystash/pkg/config"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/secrets"
	"github.com/arthur-debert/keystash/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt(t *testing.T) {
	tests := []struct {
		name     string
		confirm  bool
		inputs   []string
		want     string
		wantCode errors.ErrorCode
	}{
		{name: "matching entries", confirm: true, inputs: []string{"hunter2", "hunter2"}, want: "hunter2"},
		{name: "mismatch", confirm: true, inputs: []string{"hunter2", "hunter3"}, wantCode: errors.ErrPassphraseMismatch},
		{name: "empty", confirm: true, inputs: []string{"", ""}, wantCode: errors.ErrPassphraseEmpty},
		{name: "single entry", confirm: false, inputs: []string{"once"}, want: "once"},
		{name: "input ends early", confirm: true, inputs: []string{"hunter2"}, wantCode: errors.ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &secrets.Prompt{Out: &out, Confirm: tt.confirm, ReadPassword: secrets.Sequence(tt.inputs...)}

			got, err := p.Passphrase(context.Background())
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, tt.wantCode), "got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Contains(t, out.String(), "Passphrase: ")
			assert.NotContains(t, out.String(), tt.want, "passphrase must never be echoed")
		})
	}
}

func TestPrompt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &secrets.Prompt{Out: &bytes.Buffer{}, ReadPassword: secrets.Sequence("x")}
	_, err := p.Passphrase(ctx)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
}

func TestKeyFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     string
		wantCode errors.ErrorCode
	}{
		{name: "plain", content: "secret", want: "secret"},
		{name: "trailing newline", content: "secret\n", want: "secret"},
		{name: "crlf", content: "secret\r\n", want: "secret"},
		{name: "only one newline stripped", content: "secret\n\n", want: "secret\n"},
		{name: "inner whitespace kept", content: "  two words \n", want: "  two words "},
		{name: "empty", content: "\n", wantCode: errors.ErrPassphraseEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t, testutil.EnvMemoryOnly)
			path := env.WriteFile(".keystash.key", tt.content)

			got, err := secrets.KeyFile{FS: env.FS, Path: path}.Passphrase(context.Background())
			if tt.wantCode != "" {
				assert.True(t, errors.IsErrorCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	t.Run("missing", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvMemoryOnly)
		_, err := secrets.KeyFile{FS: env.FS, Path: env.Path("nope")}.Passphrase(context.Background())
		assert.True(t, errors.IsErrorCode(err, errors.ErrKeyFile))
	})

	t.Run("directory", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvMemoryOnly)
		dir := env.Mkdir("keys")
		_, err := secrets.KeyFile{FS: env.FS, Path: dir}.Passphrase(context.Background())
		assert.True(t, errors.IsErrorCode(err, errors.ErrKeyFile))
	})

	t.Run("loose permissions still read", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvMemoryOnly)
		path := env.Path("world-readable.key")
		require.NoError(t, afero.WriteFile(env.FS, path, []byte("secret"), 0644))
		got, err := secrets.KeyFile{FS: env.FS, Path: path}.Passphrase(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "secret", string(got))
	})
}

func TestEnv(t *testing.T) {
	testutil.NewEnv(t, testutil.EnvMemoryOnly)

	_, err := secrets.Env{}.Passphrase(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrPassphraseEmpty))

	t.Setenv(secrets.EnvPassphrase, "from-env")
	got, err := secrets.Env{}.Passphrase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(got))

	t.Setenv("OTHER_PASS", "other")
	got, err = secrets.Env{Name: "OTHER_PASS"}.Passphrase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other", string(got))
}

func TestStatic(t *testing.T) {
	s := secrets.Static("abc")
	got, err := s.Passphrase(context.Background())
	require.NoError(t, err)
	got[0] = 'x'
	again, err := s.Passphrase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again), "callers may zero what they receive")

	_, err = secrets.Static(nil).Passphrase(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrPassphraseEmpty))
}

func TestFromSettings(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvMemoryOnly)
	s, err := config.Defaults(env.Paths)
	require.NoError(t, err)

	s.EncryptionPassphrasePrompt = true
	_, ok := secrets.FromSettings(env.FS, s).(*secrets.Prompt)
	assert.True(t, ok)

	s.EncryptionKeyPath = "~/.keystash.key"
	kf, ok := secrets.FromSettings(env.FS, s).(secrets.KeyFile)
	require.True(t, ok, "key file wins over the prompt")
	assert.Equal(t, env.Path(".keystash.key"), kf.Path)

	s.EncryptionKeyPath = ""
	s.EncryptionPassphrasePrompt = false
	_, ok = secrets.FromSettings(env.FS, s).(secrets.Env)
	assert.True(t, ok)
}
