package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// HistoryFiles are the shell and REPL history files looked up in the home
// directory by the ShellHistory rule.
var HistoryFiles = []string{
	".bash_history",
	".zsh_history",
	".zhistory",
	".histfile",
	".local/share/fish/fish_history",
	".sh_history",
	".ksh_history",
	".python_history",
	".node_repl_history",
	".psql_history",
	".mysql_history",
	".sqlite_history",
	".lesshst",
}

// Evaluator resolves rules against a filesystem
type Evaluator struct {
	FS     afero.Fs
	Home   string
	SSHDir string
	GPGDir string
	// Getenv looks up HISTFILE. Defaults to os.Getenv.
	Getenv func(string) string

	logger zerolog.Logger
}

// NewEvaluator creates an evaluator using the locations from p
func NewEvaluator(fs afero.Fs, p paths.Paths) *Evaluator {
	return &Evaluator{
		FS:     fs,
		Home:   p.Home(),
		SSHDir: p.SSHDir(),
		GPGDir: p.GPGDir(),
		Getenv: os.Getenv,
		logger: logging.GetLogger("rules.evaluator"),
	}
}

// Discover evaluates every enabled rule and returns the union of the files
// they select. Only a cancelled context makes it fail.
func (e *Evaluator) Discover(ctx context.Context, rules []Rule) (*FileSet, error) {
	set := NewFileSet()
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCancelled, "discovery cancelled")
		}
		if !rule.IsEnabled() {
			e.logger.Debug().Str("rule", rule.String()).Msg("Rule disabled, skipping")
			continue
		}

		before := set.Len()
		switch r := rule.(type) {
		case ShellHistory:
			e.discoverHistory(set)
		case SSHKeys:
			e.discoverFlat(set, e.SSHDir, r)
		case GPGKeys:
			e.discoverFlat(set, e.GPGDir, r)
		case CustomPath:
			e.discoverPath(set, r)
		case CustomDirectory:
			e.discoverDirectory(set, r)
		default:
			return nil, errors.Newf(errors.ErrRuleInvalid, "unsupported rule %T", rule)
		}

		e.logger.Debug().
			Str("rule", rule.String()).
			Int("added", set.Len()-before).
			Msg("Rule evaluated")
	}

	e.logger.Info().Int("files", set.Len()).Msg("Discovery complete")
	return set, nil
}

func (e *Evaluator) discoverHistory(set *FileSet) {
	for _, name := range HistoryFiles {
		path := filepath.Join(e.Home, filepath.FromSlash(name))
		if filesystem.IsRegularFile(e.FS, path) {
			e.add(set, path)
		}
	}

	if histFile := e.Getenv(paths.EnvHistFile); histFile != "" {
		path := paths.ExpandHome(e.Home, histFile)
		if filesystem.IsRegularFile(e.FS, path) {
			e.add(set, path)
		} else {
			e.warn(nil, "HISTFILE does not name a regular file", "path", path)
		}
	}
}

// discoverFlat adds the regular files directly inside dir
func (e *Evaluator) discoverFlat(set *FileSet, dir string, rule Rule) {
	entries, err := afero.ReadDir(e.FS, dir)
	if os.IsNotExist(err) {
		e.warn(nil, "Directory does not exist", "rule", rule.String(), "path", dir)
		return
	}
	if err != nil {
		e.warn(err, "Cannot list directory", "rule", rule.String(), "path", dir)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if filesystem.IsRegularFile(e.FS, path) {
			e.add(set, path)
		}
	}
}

func (e *Evaluator) discoverPath(set *FileSet, rule CustomPath) {
	path := e.absolute(rule.Path)
	switch {
	case filesystem.IsDir(e.FS, path):
		e.logger.Warn().
			Str("rule", rule.String()).
			Str("path", path).
			Msg("custom_path points to a directory, use custom_directory instead; skipping")
	case filesystem.IsRegularFile(e.FS, path):
		e.add(set, path)
	default:
		e.warn(nil, "Path does not exist or is not a regular file", "rule", rule.String(), "path", path)
	}
}

func (e *Evaluator) discoverDirectory(set *FileSet, rule CustomDirectory) {
	dir := e.absolute(rule.Path)
	if !filesystem.IsDir(e.FS, dir) {
		e.warn(nil, "Directory does not exist", "rule", rule.String(), "path", dir)
		return
	}

	patterns := rule.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}

	var valid []string
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			e.logger.Warn().
				Str("rule", rule.String()).
				Str("pattern", pattern).
				Err(err).
				Msg("Malformed pattern, skipping")
			continue
		}
		valid = append(valid, pattern)
	}
	if len(valid) == 0 {
		return
	}

	if !rule.Recursive {
		e.matchFlat(set, dir, valid)
		return
	}

	_ = afero.Walk(e.FS, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			e.logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		if matchesAny(valid, info.Name(), filepath.ToSlash(rel)) && filesystem.IsRegularFile(e.FS, path) {
			e.add(set, path)
		}
		return nil
	})
}

// matchFlat matches simple patterns against the entries of dir and
// expands patterns containing a slash, such as "sub/*.txt", relative to dir
func (e *Evaluator) matchFlat(set *FileSet, dir string, patterns []string) {
	var names []string
	for _, pattern := range patterns {
		if !strings.Contains(pattern, "/") {
			names = append(names, pattern)
			continue
		}
		matches, err := afero.Glob(e.FS, filepath.Join(dir, filepath.FromSlash(pattern)))
		if err != nil {
			e.logger.Warn().Err(err).Str("pattern", pattern).Msg("Cannot expand pattern")
			continue
		}
		for _, path := range matches {
			if filesystem.IsRegularFile(e.FS, path) {
				e.add(set, path)
			}
		}
	}
	if len(names) == 0 {
		return
	}

	entries, err := afero.ReadDir(e.FS, dir)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", dir).Msg("Cannot list directory")
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if matchesAny(names, entry.Name(), entry.Name()) && filesystem.IsRegularFile(e.FS, path) {
			e.add(set, path)
		}
	}
}

// matchesAny matches simple patterns against the base name and patterns
// containing a slash against the slash-separated relative path.
func matchesAny(patterns []string, name, rel string) bool {
	for _, pattern := range patterns {
		target := name
		if strings.Contains(pattern, "/") {
			target = rel
		}
		if matched, _ := filepath.Match(pattern, target); matched {
			return true
		}
	}
	return false
}

func (e *Evaluator) absolute(path string) string {
	expanded := paths.ExpandHome(e.Home, path)
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(e.Home, expanded)
	}
	return expanded
}

func (e *Evaluator) add(set *FileSet, path string) {
	canonical, err := filesystem.Canonical(e.FS, path)
	if err != nil {
		e.warn(err, "Cannot canonicalize path", "path", path)
		return
	}
	if !set.Add(canonical) {
		e.logger.Trace().Str("path", canonical).Msg("Already discovered")
		return
	}
	e.logger.Debug().Str("path", canonical).Msg("Discovered file")
}

// warn records a discovery problem. These never abort the run: an absent
// target is routine and logged at debug, anything else at warn.
func (e *Evaluator) warn(err error, msg string, fields ...string) {
	event := e.logger.Debug()
	if err != nil {
		event = e.logger.Warn().Err(err)
	}
	for i := 0; i+1 < len(fields); i += 2 {
		event = event.Str(fields[i], fields[i+1])
	}
	event.Str("code", string(errors.ErrDiscovery)).Msg(msg)
}
