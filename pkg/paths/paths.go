package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/keystash/pkg/errors"
)

// Environment variable names
const (
	EnvDataDir   = "KEYSTASH_DATA_DIR"
	EnvConfigDir = "KEYSTASH_CONFIG_DIR"
	EnvCacheDir  = "KEYSTASH_CACHE_DIR"
	EnvGnupgHome = "GNUPGHOME"
	EnvHistFile  = "HISTFILE"
	EnvHome      = "HOME"
)

// Default directories and files
const (
	AppDirName     = "keystash"
	ConfigFileName = "config.json"
	BackupsDir     = "backups"
	StagingDir     = "staging"
	SSHDirName     = ".ssh"
	GPGDirName     = ".gnupg"
)

// Paths provides centralized path management for keystash
type Paths interface {
	Home() string
	DataDir() string
	ConfigDir() string
	CacheDir() string
	ConfigFile() string
	DefaultBackupDir() string
	DefaultStagingDir() string
	SSHDir() string
	GPGDir() string
	Expand(path string) string
	Relative(path string) string
}

type paths struct {
	home      string
	xdgData   string
	xdgConfig string
	xdgCache  string
}

// New creates a Paths instance rooted at home. An empty home is resolved
// from the environment.
func New(home string) (Paths, error) {
	if home == "" {
		h, err := GetHomeDirectory()
		if err != nil {
			return nil, err
		}
		home = h
	}

	absHome, err := filepath.Abs(home)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "failed to get absolute path for home directory")
	}

	// Pick up environment changes made since process start.
	xdg.Reload()

	p := &paths{home: absHome}
	p.xdgData = dirFromEnv(EnvDataDir, xdg.DataHome, absHome)
	p.xdgConfig = dirFromEnv(EnvConfigDir, xdg.ConfigHome, absHome)
	p.xdgCache = dirFromEnv(EnvCacheDir, xdg.CacheHome, absHome)
	return p, nil
}

func dirFromEnv(envName, xdgBase, home string) string {
	if dir := os.Getenv(envName); dir != "" {
		return ExpandHome(home, dir)
	}
	return filepath.Join(xdgBase, AppDirName)
}

// GetHomeDirectory returns the user's home directory.
// It first tries os.UserHomeDir(), then falls back to the HOME environment variable.
func GetHomeDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil && homeDir != "" {
		return homeDir, nil
	}

	homeDir = os.Getenv(EnvHome)
	if homeDir != "" {
		return homeDir, nil
	}

	return "", errors.New(errors.ErrIO, "unable to determine home directory: neither os.UserHomeDir() nor HOME environment variable are available")
}

func (p *paths) Home() string      { return p.home }
func (p *paths) DataDir() string   { return p.xdgData }
func (p *paths) ConfigDir() string { return p.xdgConfig }
func (p *paths) CacheDir() string  { return p.xdgCache }

// ConfigFile returns the default configuration file location
func (p *paths) ConfigFile() string {
	return filepath.Join(p.xdgConfig, ConfigFileName)
}

// DefaultBackupDir is where archives land unless configured otherwise
func (p *paths) DefaultBackupDir() string {
	return filepath.Join(p.xdgData, BackupsDir)
}

// DefaultStagingDir is the per-run staging root unless configured otherwise
func (p *paths) DefaultStagingDir() string {
	return filepath.Join(p.xdgCache, StagingDir)
}

// SSHDir returns the user's SSH directory
func (p *paths) SSHDir() string {
	return filepath.Join(p.home, SSHDirName)
}

// GPGDir returns the GnuPG home directory. GNUPGHOME wins when set.
func (p *paths) GPGDir() string {
	if dir := os.Getenv(EnvGnupgHome); dir != "" {
		return ExpandHome(p.home, dir)
	}
	return defaultGPGDir(p.home, runtime.GOOS, os.Getenv("APPDATA"))
}

func defaultGPGDir(home, goos, appData string) string {
	if goos == "windows" && appData != "" {
		return filepath.Join(appData, "gnupg")
	}
	return filepath.Join(home, GPGDirName)
}

// Expand resolves ~ and environment variables against this home
func (p *paths) Expand(path string) string {
	return ExpandHome(p.home, path)
}

// Relative maps an absolute path to its layout path under this home
func (p *paths) Relative(path string) string {
	return RelativeToHome(p.home, path)
}

// ExpandHome expands a leading ~ to home, otherwise any environment
// variables. ~otheruser is left untouched.
func ExpandHome(home, path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == filepath.Separator {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	return os.ExpandEnv(path)
}

// RelativeToHome returns path relative to home when it lies under it, and
// otherwise path with its volume and root stripped. The result never starts
// with a separator or "..".
func RelativeToHome(home, path string) string {
	clean := filepath.Clean(path)
	if home != "" {
		rel, err := filepath.Rel(filepath.Clean(home), clean)
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel
		}
	}
	return stripRoot(clean)
}

func stripRoot(path string) string {
	path = strings.TrimPrefix(path, filepath.VolumeName(path))
	return strings.TrimLeft(path, `/\`)
}
