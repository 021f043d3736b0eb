package rules

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/keystash/pkg/errors"
)

// Kind is the type tag of a rule as written in configuration
type Kind string

const (
	KindShellHistory    Kind = "shell_history"
	KindSSHKeys         Kind = "ssh_keys"
	KindGPGKeys         Kind = "gpg_keys"
	KindCustomPath      Kind = "custom_path"
	KindCustomDirectory Kind = "custom_directory"
)

// DefaultPattern is used when a CustomDirectory rule names no patterns
const DefaultPattern = "*"

// Rule is a single selection rule. The set of implementations is closed.
type Rule interface {
	Kind() Kind
	IsEnabled() bool
	String() string
	isRule()
}

// ShellHistory selects shell history files in the home directory
type ShellHistory struct {
	Enabled bool
}

// SSHKeys selects the files directly inside the SSH directory
type SSHKeys struct {
	Enabled bool
}

// GPGKeys selects the files directly inside the GnuPG home
type GPGKeys struct {
	Enabled bool
}

// CustomPath selects one file
type CustomPath struct {
	Enabled bool
	Path    string
}

// CustomDirectory selects files under Path matching any of Patterns
type CustomDirectory struct {
	Enabled   bool
	Path      string
	Patterns  []string
	Recursive bool
}

func (ShellHistory) Kind() Kind    { return KindShellHistory }
func (SSHKeys) Kind() Kind         { return KindSSHKeys }
func (GPGKeys) Kind() Kind         { return KindGPGKeys }
func (CustomPath) Kind() Kind      { return KindCustomPath }
func (CustomDirectory) Kind() Kind { return KindCustomDirectory }

func (r ShellHistory) IsEnabled() bool    { return r.Enabled }
func (r SSHKeys) IsEnabled() bool         { return r.Enabled }
func (r GPGKeys) IsEnabled() bool         { return r.Enabled }
func (r CustomPath) IsEnabled() bool      { return r.Enabled }
func (r CustomDirectory) IsEnabled() bool { return r.Enabled }

func (ShellHistory) isRule()    {}
func (SSHKeys) isRule()         {}
func (GPGKeys) isRule()         {}
func (CustomPath) isRule()      {}
func (CustomDirectory) isRule() {}

func (r ShellHistory) String() string { return string(r.Kind()) }
func (r SSHKeys) String() string      { return string(r.Kind()) }
func (r GPGKeys) String() string      { return string(r.Kind()) }
func (r CustomPath) String() string   { return fmt.Sprintf("%s(%s)", r.Kind(), r.Path) }

func (r CustomDirectory) String() string {
	mode := "flat"
	if r.Recursive {
		mode = "recursive"
	}
	return fmt.Sprintf("%s(%s, [%s], %s)", r.Kind(), r.Path, strings.Join(r.Patterns, " "), mode)
}

// Spec is the configuration form of a rule. Optional booleans are pointers
// so an absent key can take its default.
type Spec struct {
	Type      string   `koanf:"type" json:"type"`
	Enabled   *bool    `koanf:"enabled" json:"enabled,omitempty"`
	Path      string   `koanf:"path" json:"path,omitempty"`
	Patterns  []string `koanf:"patterns" json:"patterns,omitempty"`
	Recursive *bool    `koanf:"recursive" json:"recursive,omitempty"`
}

// Parse converts a Spec into a Rule. Enabled and Recursive default to true,
// Patterns to ["*"].
func Parse(spec Spec) (Rule, error) {
	enabled := boolOr(spec.Enabled, true)
	kind := Kind(strings.TrimSpace(spec.Type))

	switch kind {
	case KindShellHistory:
		return ShellHistory{Enabled: enabled}, nil
	case KindSSHKeys:
		return SSHKeys{Enabled: enabled}, nil
	case KindGPGKeys:
		return GPGKeys{Enabled: enabled}, nil
	case KindCustomPath:
		if spec.Path == "" {
			return nil, errors.New(errors.ErrRuleInvalid, "custom_path rule requires a path").
				WithDetail("type", spec.Type)
		}
		return CustomPath{Enabled: enabled, Path: spec.Path}, nil
	case KindCustomDirectory:
		if spec.Path == "" {
			return nil, errors.New(errors.ErrRuleInvalid, "custom_directory rule requires a path").
				WithDetail("type", spec.Type)
		}
		patterns := spec.Patterns
		if len(patterns) == 0 {
			patterns = []string{DefaultPattern}
		}
		return CustomDirectory{
			Enabled:   enabled,
			Path:      spec.Path,
			Patterns:  append([]string(nil), patterns...),
			Recursive: boolOr(spec.Recursive, true),
		}, nil
	case "":
		return nil, errors.New(errors.ErrRuleInvalid, "rule is missing its type")
	default:
		return nil, errors.Newf(errors.ErrRuleInvalid, "unknown rule type %q", spec.Type).
			WithDetail("type", spec.Type)
	}
}

// ParseAll converts specs in order, failing on the first invalid one
func ParseAll(specs []Spec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		rule, err := Parse(spec)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrRuleInvalid, "files_to_include[%d]", i)
		}
		out = append(out, rule)
	}
	return out, nil
}

// ToSpec is the inverse of Parse
func ToSpec(rule Rule) Spec {
	spec := Spec{Type: string(rule.Kind()), Enabled: boolPtr(rule.IsEnabled())}
	switch r := rule.(type) {
	case CustomPath:
		spec.Path = r.Path
	case CustomDirectory:
		spec.Path = r.Path
		spec.Patterns = append([]string(nil), r.Patterns...)
		spec.Recursive = boolPtr(r.Recursive)
	}
	return spec
}

// RuleSource supplies the rules for a run
type RuleSource interface {
	Rules() ([]Rule, error)
}

// StaticSource is a fixed list of rules
type StaticSource []Rule

// Rules implements RuleSource
func (s StaticSource) Rules() ([]Rule, error) {
	return append([]Rule(nil), s...), nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func boolPtr(b bool) *bool {
	return &b
}
