package testutil

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/spf13/afero"
)

// EnvType defines the type of test environment
type EnvType int

const (
	EnvMemoryOnly EnvType = iota // Pure in-memory, no real filesystem
	EnvIsolated                  // Real filesystem in temp directory
)

// Env is an isolated user environment for a single test
type Env struct {
	Root    string
	HomeDir string
	FS      afero.Fs
	Paths   paths.Paths
	Type    EnvType

	t *testing.T
}

// NewEnv creates an environment and points HOME, the XDG base directories
// and every keystash variable at it for the duration of the test.
func NewEnv(t *testing.T, envType EnvType) *Env {
	t.Helper()

	env := &Env{t: t, Type: envType}
	switch envType {
	case EnvMemoryOnly:
		env.Root = "/virtual"
		env.FS = filesystem.NewMemory()
	case EnvIsolated:
		env.Root = t.TempDir()
		env.FS = filesystem.NewOS()
	}
	env.HomeDir = filepath.Join(env.Root, "home")

	t.Setenv(paths.EnvHome, env.HomeDir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(env.HomeDir, ".local", "share"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(env.HomeDir, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(env.HomeDir, ".cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(env.HomeDir, ".local", "state"))
	for _, name := range []string{
		paths.EnvDataDir, paths.EnvConfigDir, paths.EnvCacheDir,
		paths.EnvGnupgHome, paths.EnvHistFile, "KEYSTASH_PASSPHRASE",
	} {
		t.Setenv(name, "")
	}

	if err := env.FS.MkdirAll(env.HomeDir, 0700); err != nil {
		t.Fatalf("Failed to create home: %v", err)
	}

	p, err := paths.New(env.HomeDir)
	if err != nil {
		t.Fatalf("Failed to create paths: %v", err)
	}
	env.Paths = p
	return env
}

// Path returns the absolute path of a home-relative, slash-separated path
func (env *Env) Path(rel string) string {
	return filepath.Join(env.HomeDir, filepath.FromSlash(rel))
}

// WriteFile creates a file under the home directory with mode 0600,
// creating parents as needed, and returns its absolute path.
func (env *Env) WriteFile(rel, content string) string {
	env.t.Helper()
	path := env.Path(rel)
	if err := env.FS.MkdirAll(filepath.Dir(path), 0700); err != nil {
		env.t.Fatalf("Failed to create parent of %s: %v", rel, err)
	}
	if err := afero.WriteFile(env.FS, path, []byte(content), 0600); err != nil {
		env.t.Fatalf("Failed to write %s: %v", rel, err)
	}
	return path
}

// WriteFiles writes every entry of files, keyed by home-relative path
func (env *Env) WriteFiles(files map[string]string) {
	env.t.Helper()
	for rel, content := range files {
		env.WriteFile(rel, content)
	}
}

// Mkdir creates a home-relative directory and returns its absolute path
func (env *Env) Mkdir(rel string) string {
	env.t.Helper()
	path := env.Path(rel)
	if err := env.FS.MkdirAll(path, 0700); err != nil {
		env.t.Fatalf("Failed to create %s: %v", rel, err)
	}
	return path
}

// ReadFile returns the contents of an absolute path
func (env *Env) ReadFile(path string) []byte {
	env.t.Helper()
	data, err := afero.ReadFile(env.FS, path)
	if err != nil {
		env.t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}
