package config

import (
	"bytes"
	_ "embed"
	stdjson "encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/afero"
)

// EnvPrefix is the prefix of environment variables that override settings
const EnvPrefix = "KEYSTASH_"

//go:embed embedded/defaults.json
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New(errors.ErrNotImplemented, "raw bytes provider only supports ReadBytes")
}

// Load reads settings from configPath, or the default config file when
// configPath is empty. Problems with the file are recorded as warnings and
// the defaults used instead; an error is returned only when the defaults
// themselves cannot be loaded.
func Load(fs afero.Fs, p paths.Paths, configPath string) (*Settings, error) {
	logger := logging.GetLogger("config")
	if configPath == "" {
		configPath = p.ConfigFile()
	}
	configPath = p.Expand(configPath)

	k, err := loadDefaults(p)
	if err != nil {
		return nil, err
	}

	var warnings []error
	source := ""

	switch {
	case !filesystem.Exists(fs, configPath):
		if err := writeDefaults(fs, p, configPath); err != nil {
			warnings = append(warnings, errors.Wrapf(err, errors.ErrConfigLoad, "could not write default config to %s", configPath))
		} else {
			logger.Info().Str("path", configPath).Msg("Wrote default configuration")
		}
	default:
		fk, err := loadFile(fs, configPath)
		if err != nil {
			warnings = append(warnings, err)
			break
		}
		merged := k.Copy()
		if err := merged.Merge(fk); err != nil {
			warnings = append(warnings, errors.Wrapf(err, errors.ErrConfigParse, "could not merge %s", configPath))
			break
		}
		if _, err := decode(merged); err != nil {
			warnings = append(warnings, errors.Wrapf(err, errors.ErrConfigParse, "invalid values in %s", configPath))
			break
		}
		k = merged
		source = configPath
	}

	envK := koanf.New(".")
	if err := envK.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		warnings = append(warnings, errors.Wrap(err, errors.ErrConfigLoad, "could not read environment overrides"))
	} else {
		withEnv := k.Copy()
		for _, key := range envK.Keys() {
			if k.Exists(key) && envK.String(key) != "" {
				_ = withEnv.Set(key, envK.Get(key))
			}
		}
		if _, err := decode(withEnv); err != nil {
			warnings = append(warnings, errors.Wrap(err, errors.ErrConfigParse, "invalid "+EnvPrefix+"* environment override"))
		} else {
			k = withEnv
		}
	}

	settings, err := decode(k)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to decode configuration")
	}
	settings.Source = source
	settings.Warnings = warnings
	settings.home = p.Home()

	for _, w := range warnings {
		logger.Warn().
			Str("code", string(errors.GetErrorCode(w))).
			Err(w).
			Msg("Configuration problem, using defaults")
	}
	return settings, nil
}

// Defaults returns the built-in settings for p without touching disk
func Defaults(p paths.Paths) (*Settings, error) {
	k, err := loadDefaults(p)
	if err != nil {
		return nil, err
	}
	s, err := decode(k)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to decode defaults")
	}
	s.home = p.Home()
	return s, nil
}

// DefaultJSON renders the built-in settings as indented JSON
func DefaultJSON(p paths.Paths) ([]byte, error) {
	k, err := loadDefaults(p)
	if err != nil {
		return nil, err
	}
	raw, err := k.Marshal(json.Parser())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to render defaults")
	}
	var out bytes.Buffer
	if err := stdjson.Indent(&out, raw, "", "  "); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to render defaults")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func loadDefaults(p paths.Paths) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, json.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load defaults")
	}
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"backup_destination_path": p.DefaultBackupDir(),
		"temporary_staging_path":  p.DefaultStagingDir(),
	}, "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load default paths")
	}
	return k, nil
}

// loadFile parses a config file with the parser matching its extension
func loadFile(fs afero.Fs, path string) (*koanf.Koanf, error) {
	parser := koanf.Parser(json.Parser())
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parser = toml.Parser()
	}

	var provider koanf.Provider
	if _, ok := fs.(*afero.OsFs); ok {
		provider = file.Provider(path)
	} else {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "could not read %s", path)
		}
		provider = &rawBytesProvider{bytes: data}
	}

	fk := koanf.New(".")
	if err := fk.Load(provider, parser); err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "could not read %s", path)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "malformed config %s", path)
	}
	return fk, nil
}

func writeDefaults(fs afero.Fs, p paths.Paths, path string) error {
	content, err := DefaultJSON(p)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return filesystem.AtomicWriteFile(fs, path, 0600, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

func decode(k *koanf.Koanf) (*Settings, error) {
	var s Settings
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &s,
			WeaklyTypedInput: true,
			ErrorUnused:      false,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &s, conf); err != nil {
		return nil, err
	}
	return &s, nil
}
