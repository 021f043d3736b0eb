// Package backup runs the discover, stage, encrypt and archive pipeline.
//
// A run moves through a fixed sequence of states:
//
//	Idle -> Discovering -> KeyAcquisition -> Staging -> Archiving -> Cleanup -> Done | Failed
//
// A staging root left by a crashed run is removed before discovery.
// Discovering nothing then ends the run in Idle without creating anything.
// The key is acquired before the staging root is created, so a bad
// passphrase leaves no new files behind. Cleanup always runs once staging
// may have started: the staging root is removed and the key and passphrase
// are zeroed whatever the outcome. A cleanup failure after the archive is
// stored does not undo the run; it is reported in Result.Warnings and the
// leftover root is removed by the next run.
package backup

import (
	"context"
	"os"
	"time"

	"github.com/arthur-debert/keystash/pkg/archive"
	"github.com/arthur-debert/keystash/pkg/config"
	"github.com/arthur-debert/keystash/pkg/destination"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/internal/hashutil"
	"github.com/arthur-debert/keystash/pkg/keys"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/parity"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/arthur-debert/keystash/pkg/rules"
	"github.com/arthur-debert/keystash/pkg/secrets"
	"github.com/arthur-debert/keystash/pkg/staging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// State is a phase of a run
type State string

const (
	StateIdle           State = "idle"
	StateDiscovering    State = "discovering"
	StateKeyAcquisition State = "key_acquisition"
	StateStaging        State = "staging"
	StateArchiving      State = "archiving"
	StateCleanup        State = "cleanup"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Discoverer turns rules into the set of files to back up
type Discoverer interface {
	Discover(ctx context.Context, rs []rules.Rule) (*rules.FileSet, error)
}

// ParityWriter writes recovery data for a finished archive and returns the
// sidecar path
type ParityWriter func(fs afero.Fs, archivePath string) (string, error)

// Result describes a finished run
type Result struct {
	State State
	// ArchivePath is where the archive ended up, a local path or a URL
	ArchivePath string
	ParityPath  string
	// Checksum is the SHA256 of the archive, "sha256:<hex>"
	Checksum string
	// Files are the relative paths stored in the archive, in order
	Files     []string
	Encrypted bool
	Duration  time.Duration
	// Warnings are problems that did not fail the run
	Warnings []error
}

// Runner executes one backup run. Build it with NewRunner or fill every
// field by hand.
type Runner struct {
	Rules       rules.RuleSource
	Secrets     secrets.Source
	Settings    *config.Settings
	FS          afero.Fs
	Clock       func() time.Time
	Evaluator   Discoverer
	Builder     archive.Builder
	Destination destination.Destination
	// Parity is nil when no sidecar should be written
	Parity ParityWriter
	// OnTransition, when set, observes every state change
	OnTransition func(from, to State)

	state  State
	logger zerolog.Logger
}

// NewRunner wires a runner from settings
func NewRunner(fs afero.Fs, p paths.Paths, settings *config.Settings, src secrets.Source, dest destination.Destination) (*Runner, error) {
	format, err := settings.Format()
	if err != nil {
		return nil, err
	}
	builder, err := archive.New(format, fs)
	if err != nil {
		return nil, err
	}
	if err := staging.CheckRoot(fs, settings.StagingPath(), settings.Home(), dest.Stage()); err != nil {
		return nil, err
	}

	r := &Runner{
		Rules:       settings,
		Secrets:     src,
		Settings:    settings,
		FS:          fs,
		Clock:       time.Now,
		Evaluator:   rules.NewEvaluator(fs, p),
		Builder:     builder,
		Destination: dest,
	}
	if shards := settings.ParityShards; shards > 0 {
		r.Parity = func(fs afero.Fs, archivePath string) (string, error) {
			return parity.Encode(fs, archivePath, parity.DefaultDataShards, shards)
		}
	}
	return r, nil
}

// State is the current phase
func (r *Runner) State() State {
	if r.state == "" {
		return StateIdle
	}
	return r.state
}

func (r *Runner) transition(to State) {
	from := r.State()
	r.state = to
	r.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("State transition")
	if r.OnTransition != nil {
		r.OnTransition(from, to)
	}
}

// run holds the resources a single run acquires
type run struct {
	files      []string
	passphrase []byte
	key        *keys.Key
	header     string
	arena      *staging.Arena
}

func (rn *run) release() error {
	keys.Zero(rn.passphrase)
	rn.passphrase = nil
	if rn.key != nil {
		rn.key.Destroy()
	}
	return rn.arena.Destroy()
}

// Run performs one backup. On error no archive is left under its final
// name and the staging root is gone.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	r.logger = logging.GetLogger("backup")
	done := logging.LogOperationStart(r.logger, "backup")
	defer done()

	if err := r.check(); err != nil {
		return nil, err
	}

	start := r.Clock()
	res = &Result{State: StateIdle, Encrypted: r.Settings.EncryptionEnabled}
	r.state = StateIdle

	if err := staging.RemoveStale(r.FS, r.Settings.StagingPath()); err != nil {
		r.transition(StateFailed)
		res.State = StateFailed
		return res, err
	}

	r.transition(StateDiscovering)
	files, err := r.discover(ctx)
	if err != nil {
		r.transition(StateFailed)
		res.State = StateFailed
		return res, err
	}
	if len(files) == 0 {
		r.logger.Warn().Msg("No files found to back up")
		r.transition(StateIdle)
		res.State = StateIdle
		return res, nil
	}

	rn := &run{files: files}
	defer func() {
		r.transition(StateCleanup)
		if cerr := rn.release(); cerr != nil {
			if err == nil {
				r.logger.Warn().Err(cerr).Msg("Backup stored, but cleanup failed")
				res.Warnings = append(res.Warnings, cerr)
			} else {
				r.logger.Error().Err(cerr).Msg("Cleanup failed")
			}
		}
		if err != nil {
			r.transition(StateFailed)
			r.logger.Error().Err(err).Str("code", string(errors.GetErrorCode(err))).Msg("Backup failed")
		} else {
			r.transition(StateDone)
		}
		res.State = r.State()
		res.Duration = r.Clock().Sub(start)
	}()

	if r.Settings.EncryptionEnabled {
		r.transition(StateKeyAcquisition)
		if err := r.acquireKey(ctx, rn); err != nil {
			return res, err
		}
	}

	r.transition(StateStaging)
	if err := r.stage(ctx, rn); err != nil {
		return res, err
	}
	for _, e := range rn.arena.Entries() {
		res.Files = append(res.Files, e.Rel)
	}

	r.transition(StateArchiving)
	if err := r.archive(ctx, rn, res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Runner) check() error {
	switch {
	case r.Settings == nil:
		return errors.New(errors.ErrInternal, "runner has no settings")
	case r.Rules == nil || r.Evaluator == nil || r.Builder == nil || r.Destination == nil || r.FS == nil:
		return errors.New(errors.ErrInternal, "runner is not fully wired")
	case r.Settings.EncryptionEnabled && r.Secrets == nil:
		return errors.New(errors.ErrInternal, "encryption enabled without a passphrase source")
	}
	if err := staging.CheckRoot(r.FS, r.Settings.StagingPath(), r.Settings.Home(), r.Destination.Stage()); err != nil {
		return err
	}
	if r.Clock == nil {
		r.Clock = time.Now
	}
	return nil
}

func (r *Runner) discover(ctx context.Context) ([]string, error) {
	rs, err := r.Rules.Rules()
	if err != nil {
		return nil, err
	}
	set, err := r.Evaluator.Discover(ctx, rs)
	if err != nil {
		return nil, err
	}

	// Never back up our own staging area or earlier archives
	var exclude []string
	for _, root := range []string{r.Settings.StagingPath(), r.Destination.Stage()} {
		if root == "" {
			continue
		}
		if canonical, err := filesystem.Canonical(r.FS, root); err == nil {
			root = canonical
		}
		exclude = append(exclude, root)
	}
	var files []string
	for _, path := range set.Paths() {
		if within(path, exclude) {
			r.logger.Debug().Str("path", path).Msg("Skipping keystash working file")
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func within(path string, roots []string) bool {
	for _, root := range roots {
		if filesystem.IsWithin(root, path) {
			return true
		}
	}
	return false
}

func (r *Runner) acquireKey(ctx context.Context, rn *run) error {
	passphrase, err := r.Secrets.Passphrase(ctx)
	if err != nil {
		return err
	}
	rn.passphrase = passphrase

	salt, err := keys.NewSalt()
	if err != nil {
		return err
	}
	params := r.Settings.KDFParams()
	key, err := keys.Derive(passphrase, salt, params)
	if err != nil {
		return err
	}
	rn.key = key
	rn.header = keys.Header{Params: params, Salt: salt}.String()

	keys.Zero(rn.passphrase)
	rn.passphrase = nil
	r.logger.Info().Msg("Encryption key derived")
	return nil
}

func (r *Runner) stage(ctx context.Context, rn *run) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCancelled, "backup cancelled")
	}
	arena, err := staging.Open(r.FS, r.Settings.StagingPath(), r.Settings.Home())
	if err != nil {
		return err
	}
	rn.arena = arena
	return arena.StageAll(ctx, rn.files, rn.key)
}

func (r *Runner) archive(ctx context.Context, rn *run, res *Result) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCancelled, "backup cancelled")
	}
	archivePath, err := r.Builder.Compress(rn.arena.Root(), rn.arena.StagedPaths(), r.Destination.Stage(), archive.Options{
		Comment: rn.header,
		Now:     r.Clock(),
	})
	if err != nil {
		return err
	}

	sum, err := hashutil.FileChecksum(r.FS, archivePath)
	if err != nil {
		r.removeQuietly(archivePath)
		return errors.Wrapf(err, errors.ErrIO, "cannot checksum %s", archivePath)
	}
	res.Checksum = sum

	var sidecar string
	if r.Parity != nil {
		sidecar, err = r.Parity(r.FS, archivePath)
		if err != nil {
			// The archive is complete but the run failed; do not leave it behind
			r.removeQuietly(archivePath)
			return err
		}
	}

	stored, err := r.Destination.Store(ctx, archivePath)
	if err != nil {
		return err
	}
	res.ArchivePath = stored
	if sidecar != "" {
		storedSidecar, err := r.Destination.Store(ctx, sidecar)
		if err != nil {
			return err
		}
		res.ParityPath = storedSidecar
	}

	r.logger.Info().
		Str("archive", stored).
		Str("checksum", res.Checksum).
		Int("files", len(res.Files)).
		Bool("encrypted", res.Encrypted).
		Msg("Backup complete")
	return nil
}

func (r *Runner) removeQuietly(path string) {
	if err := r.FS.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn().Err(err).Str("path", path).Msg("Could not remove archive of failed run")
	}
}
