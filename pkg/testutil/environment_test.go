// Test Type: Unit Test
// Description: Tests for the test environment helpers

package testutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/keystash/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnv(t *testing.T) {
	t.Run("memory_env_isolates_home", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvMemoryOnly)

		assert.Equal(t, "/virtual/home", env.HomeDir)
		assert.Equal(t, env.HomeDir, os.Getenv("HOME"))
		assert.Equal(t, "/virtual/home/.ssh", env.Paths.SSHDir())
		assert.Equal(t, "/virtual/home/.gnupg", env.Paths.GPGDir())

		path := env.WriteFile(".ssh/id_rsa", "secret")
		assert.Equal(t, "/virtual/home/.ssh/id_rsa", path)
		assert.Equal(t, "secret", string(env.ReadFile(path)))
	})

	t.Run("isolated_env_uses_temp_dir", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvIsolated)

		path := env.WriteFile("notes/a.txt", "x")
		_, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(env.HomeDir, ".config", "keystash", "config.json"), env.Paths.ConfigFile())
	})
}

func TestFailingFs(t *testing.T) {
	boom := errors.New("boom")
	fs := &testutil.FailingFs{
		Fs:   afero.NewMemMapFs(),
		Fail: testutil.FailWhen(testutil.OpWrite, "bad", boom),
	}

	require.NoError(t, afero.WriteFile(fs, "/good.txt", []byte("ok"), 0600))

	err := afero.WriteFile(fs, "/bad.txt", []byte("nope"), 0600)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestFailingFs_Remove(t *testing.T) {
	boom := errors.New("boom")
	fs := &testutil.FailingFs{
		Fs:   afero.NewMemMapFs(),
		Fail: testutil.FailWhen(testutil.OpRemove, "/keep", boom),
	}
	require.NoError(t, fs.MkdirAll("/keep/sub", 0700))
	require.NoError(t, fs.MkdirAll("/drop", 0700))

	assert.ErrorIs(t, fs.RemoveAll("/keep"), boom)
	assert.ErrorIs(t, fs.Remove("/keep/sub"), boom)
	assert.NoError(t, fs.RemoveAll("/drop"))

	_, err := fs.Stat("/keep/sub")
	assert.NoError(t, err)
}
