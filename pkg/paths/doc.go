// Package paths provides centralized path handling for keystash.
//
// It answers three kinds of questions:
//
//   - Where keystash keeps its own files (config, backups, staging, logs),
//     following the XDG Base Directory specification.
//   - Where well-known sensitive material lives for the current user and
//     platform (SSH directory, GnuPG home, shell history).
//   - How an absolute file path maps to the relative path it gets inside the
//     staging tree and the archive.
//
// # Environment Variables
//
//   - KEYSTASH_DATA_DIR: Override the data directory (default: $XDG_DATA_HOME/keystash)
//   - KEYSTASH_CONFIG_DIR: Override the config directory (default: $XDG_CONFIG_HOME/keystash)
//   - KEYSTASH_CACHE_DIR: Override the cache directory (default: $XDG_CACHE_HOME/keystash)
//   - GNUPGHOME: GnuPG home directory (default: ~/.gnupg, %APPDATA%\gnupg on Windows)
//   - HISTFILE: Extra shell history file to include
//
// # Relative Layout
//
// Files under the home directory keep their home-relative path
// (~/.ssh/id_rsa becomes .ssh/id_rsa). Files outside home have their
// filesystem root stripped (/etc/hosts becomes etc/hosts). The fallback is
// lossy: on platforms with several roots (C:\, D:\) two different files can
// map to the same relative path.
package paths
