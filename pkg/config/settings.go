package config

import (
	"github.com/arthur-debert/keystash/pkg/archive"
	"github.com/arthur-debert/keystash/pkg/destination"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/arthur-debert/keystash/pkg/rules"
	"github.com/arthur-debert/keystash/pkg/staging"
)

// Settings is the read-only view of configuration a run consumes
type Settings struct {
	BackupDestinationPath      string       `koanf:"backup_destination_path"`
	EncryptionEnabled          bool         `koanf:"encryption_enabled"`
	EncryptionPassphrasePrompt bool         `koanf:"encryption_passphrase_prompt"`
	EncryptionKeyPath          string       `koanf:"encryption_key_path"`
	TemporaryStagingPath       string       `koanf:"temporary_staging_path"`
	ArchiveFormat              string       `koanf:"archive_format"`
	FilesToInclude             []rules.Spec `koanf:"files_to_include"`
	ParityShards               int          `koanf:"parity_shards"`
	KDFTime                    uint32       `koanf:"kdf_time"`
	KDFMemoryKiB               uint32       `koanf:"kdf_memory_kib"`
	KDFThreads                 uint8        `koanf:"kdf_threads"`

	// Source is the config file the settings came from, empty for defaults
	Source string `koanf:"-"`
	// Warnings collects non-fatal configuration problems
	Warnings []error `koanf:"-"`

	home string
}

// Rules implements rules.RuleSource
func (s *Settings) Rules() ([]rules.Rule, error) {
	return rules.ParseAll(s.FilesToInclude)
}

// Validate checks the settings that would otherwise fail late in a run
func (s *Settings) Validate() error {
	if _, err := archive.ParseFormat(s.ArchiveFormat); err != nil {
		return err
	}
	if _, err := s.Rules(); err != nil {
		return err
	}
	if s.ParityShards < 0 {
		return errors.Newf(errors.ErrInvalidInput, "parity_shards must not be negative, got %d", s.ParityShards)
	}
	if s.EncryptionEnabled {
		if err := s.KDFParams().Validate(); err != nil {
			return err
		}
	}

	// The staging root is wiped at the start and end of every run
	var protected []string
	if dest := s.Destination(); !destination.IsRemote(dest) {
		protected = append(protected, dest)
	}
	return staging.CheckRoot(nil, s.StagingPath(), s.home, protected...)
}

// Format returns the parsed archive format
func (s *Settings) Format() (archive.Format, error) {
	return archive.ParseFormat(s.ArchiveFormat)
}

// KDFParams returns the configured key derivation cost
func (s *Settings) KDFParams() keys.Params {
	return keys.Params{Time: s.KDFTime, MemoryKiB: s.KDFMemoryKiB, Threads: s.KDFThreads}
}

// Destination returns backup_destination_path with ~ and variables expanded.
// Remote URLs are returned unchanged.
func (s *Settings) Destination() string {
	return s.expand(s.BackupDestinationPath)
}

// StagingPath returns temporary_staging_path expanded
func (s *Settings) StagingPath() string {
	return s.expand(s.TemporaryStagingPath)
}

// KeyPath returns encryption_key_path expanded, empty when unset
func (s *Settings) KeyPath() string {
	return s.expand(s.EncryptionKeyPath)
}

// Home is the home directory the settings were resolved against
func (s *Settings) Home() string {
	return s.home
}

func (s *Settings) expand(path string) string {
	if path == "" {
		return ""
	}
	return paths.ExpandHome(s.home, path)
}
