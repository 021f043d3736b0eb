// Package destination decides where finished archives end up.
//
// A run builds its archive in the directory returned by Stage and then hands
// each finished file to Store. For a local destination the two are the same
// place and Store only confirms the file is there. For Google Cloud Storage
// the archive is built in a private directory, uploaded, and the local copy
// removed.
package destination

import (
	"context"
	"strings"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/spf13/afero"
	"google.golang.org/api/option"
)

// GCSScheme prefixes destinations stored in Google Cloud Storage
const GCSScheme = "gs://"

// Destination receives the files a run produces
type Destination interface {
	// Stage is the local directory archives are built in
	Stage() string
	// Store moves a finished file from Stage to its final place and
	// returns where it ended up.
	Store(ctx context.Context, localPath string) (string, error)
	Close() error
	String() string
}

// IsRemote reports whether target names a remote destination
func IsRemote(target string) bool {
	return strings.HasPrefix(target, GCSScheme)
}

// Open returns the destination for target, a local directory or a
// gs://bucket/prefix URL. Remote destinations build archives in stageDir.
func Open(ctx context.Context, fs afero.Fs, target, stageDir string, opts ...option.ClientOption) (Destination, error) {
	if target == "" {
		return nil, errors.New(errors.ErrDestination, "no backup destination configured")
	}
	if IsRemote(target) {
		return NewGCS(ctx, fs, target, stageDir, opts...)
	}
	return NewLocal(fs, target), nil
}
