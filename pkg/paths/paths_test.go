// Test Type: Unit Test
// Description: Tests for path resolution - XDG dirs, home expansion, relative layout

package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("xdg_defaults", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
		t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
		t.Setenv(EnvDataDir, "")
		t.Setenv(EnvConfigDir, "")
		t.Setenv(EnvCacheDir, "")

		p, err := New(home)
		require.NoError(t, err)

		assert.Equal(t, home, p.Home())
		assert.Equal(t, filepath.Join(home, "config", "keystash", "config.json"), p.ConfigFile())
		assert.Equal(t, filepath.Join(home, "data", "keystash", "backups"), p.DefaultBackupDir())
		assert.Equal(t, filepath.Join(home, "cache", "keystash", "staging"), p.DefaultStagingDir())
		assert.Equal(t, filepath.Join(home, ".ssh"), p.SSHDir())
	})

	t.Run("env_overrides", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(EnvDataDir, "~/vault")
		t.Setenv(EnvCacheDir, "/var/tmp/ks")

		p, err := New(home)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, "vault"), p.DataDir())
		assert.Equal(t, "/var/tmp/ks", p.CacheDir())
	})
}

func TestGPGDir(t *testing.T) {
	t.Run("gnupghome_wins", func(t *testing.T) {
		t.Setenv(EnvGnupgHome, "~/custom-gnupg")
		p, err := New("/home/user")
		require.NoError(t, err)
		assert.Equal(t, "/home/user/custom-gnupg", p.GPGDir())
	})

	t.Run("platform_defaults", func(t *testing.T) {
		assert.Equal(t, "/home/user/.gnupg", defaultGPGDir("/home/user", "linux", ""))
		assert.Equal(t, "/home/user/.gnupg", defaultGPGDir("/home/user", "darwin", ""))
		assert.Equal(t, filepath.Join("AppData", "gnupg"), defaultGPGDir("/home/user", "windows", "AppData"))
	})
}

func TestExpandHome(t *testing.T) {
	t.Setenv("KS_TEST_DIR", "/opt/secrets")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"~", "/home/user"},
		{"~/.ssh/id_rsa", "/home/user/.ssh/id_rsa"},
		{"~other/file", "~other/file"},
		{"$KS_TEST_DIR/token", "/opt/secrets/token"},
		{"/abs/path", "/abs/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandHome("/home/user", tt.in))
		})
	}
}

func TestRelativeToHome(t *testing.T) {
	tests := []struct {
		name, path, want string
	}{
		{"inside_home", "/home/user/.ssh/id_rsa", ".ssh/id_rsa"},
		{"top_level_in_home", "/home/user/.bash_history", ".bash_history"},
		{"outside_home_strips_root", "/etc/hosts", "etc/hosts"},
		{"sibling_with_shared_prefix", "/home/username/file", "home/username/file"},
		{"home_itself", "/home/user", "home/user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeToHome("/home/user", tt.path))
		})
	}
}
