package destination

import (
	"context"
	stderrors "errors"
	"hash/crc32"
	"net/http"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// uploadChunkSize makes the writer stream instead of buffering
	// the whole archive before the first request.
	uploadChunkSize = 256 * 1024
	maxTries        = 5
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// errObjectExists is returned by put when the object was created before the
// upload finished. Retrying cannot succeed.
var errObjectExists = stderrors.New("object already exists")

// objectStore is the slice of a bucket GCS needs
type objectStore interface {
	exists(ctx context.Context, name string) (bool, error)
	// put uploads r as name, failing if name already exists, and returns
	// the CRC32C the server computed. An existing object yields
	// errObjectExists.
	put(ctx context.Context, name string, r io.Reader) (uint32, error)
	// remove deletes name; a missing object is not an error
	remove(ctx context.Context, name string) error
	close() error
}

// GCS uploads archives to a Google Cloud Storage bucket
type GCS struct {
	fs       afero.Fs
	bucket   string
	prefix   string
	stageDir string
	store    objectStore
	sleep    func(time.Duration)
	logger   zerolog.Logger
}

// ParseGCSURL splits gs://bucket/prefix into its bucket and object prefix.
// A non-empty prefix always ends in a slash.
func ParseGCSURL(raw string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(raw, GCSScheme) {
		return "", "", errors.Newf(errors.ErrDestination, "%q is not a %s URL", raw, GCSScheme)
	}
	rest := strings.TrimPrefix(raw, GCSScheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.Newf(errors.ErrDestination, "%q names no bucket", raw)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// NewGCS connects to the bucket named by rawURL. Client options are passed
// to the storage client, e.g. option.WithCredentialsFile.
func NewGCS(ctx context.Context, fs afero.Fs, rawURL, stageDir string, opts ...option.ClientOption) (*GCS, error) {
	bucket, prefix, err := ParseGCSURL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDestination, "cannot create storage client")
	}
	return newGCS(fs, bucket, prefix, stageDir, &bucketStore{client: client, bucket: client.Bucket(bucket)}), nil
}

func newGCS(fs afero.Fs, bucket, prefix, stageDir string, store objectStore) *GCS {
	return &GCS{
		fs:       fs,
		bucket:   bucket,
		prefix:   prefix,
		stageDir: filepath.Clean(stageDir),
		store:    store,
		sleep:    time.Sleep,
		logger:   logging.GetLogger("destination.gcs"),
	}
}

// Stage implements Destination
func (g *GCS) Stage() string {
	return g.stageDir
}

// ObjectName is the object a local file is uploaded as
func (g *GCS) ObjectName(localPath string) string {
	return g.prefix + path.Base(filepath.ToSlash(localPath))
}

// Store implements Destination. The local copy is removed once the upload
// is confirmed; on failure it is left in Stage.
func (g *GCS) Store(ctx context.Context, localPath string) (string, error) {
	name := g.ObjectName(localPath)
	url := GCSScheme + g.bucket + "/" + name

	// A precondition on the upload would only fail after sending the whole
	// file; asking first is cheaper.
	exists, err := g.store.exists(ctx, name)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrDestination, "cannot check %s", url)
	}
	if exists {
		return "", errors.Newf(errors.ErrDestination, "%s already exists", url).
			WithDetail("local", localPath)
	}

	local, err := g.checksum(localPath)
	if err != nil {
		return "", err
	}

	g.logger.Info().Str("object", url).Msg("Uploading")
	err = g.retry(ctx, name, func() error {
		f, err := g.fs.Open(localPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		remote, err := g.store.put(ctx, name, f)
		if stderrors.Is(err, errObjectExists) {
			return err
		}
		if err == nil && remote == local {
			return nil
		}
		if err == nil {
			err = errors.Newf(errors.ErrDestination, "checksum mismatch for %s: local %d, remote %d", url, local, remote)
		}
		// The object may have been committed before the failure surfaced;
		// drop it so the next try, or a later run, starts clean
		if rerr := g.store.remove(ctx, name); rerr != nil {
			g.logger.Error().Err(rerr).Str("object", url).Msg("Could not remove failed upload")
			return stderrors.Join(err, errObjectExists)
		}
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrDestination, "upload of %s failed, local copy kept", localPath)
	}

	if err := g.fs.Remove(localPath); err != nil {
		g.logger.Warn().Err(err).Str("path", localPath).Msg("Uploaded, but the local copy could not be removed")
	}
	g.logger.Info().Str("object", url).Msg("Upload complete")
	return url, nil
}

// Close releases the storage client
func (g *GCS) Close() error {
	return g.store.close()
}

func (g *GCS) String() string {
	return GCSScheme + g.bucket + "/" + g.prefix
}

func (g *GCS) checksum(localPath string) (uint32, error) {
	f, err := g.fs.Open(localPath)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrIO, "cannot open %s", localPath)
	}
	defer func() { _ = f.Close() }()

	h := crc32.New(castagnoliTable)
	if _, err := io.Copy(h, f); err != nil {
		return 0, errors.Wrapf(err, errors.ErrIO, "cannot read %s", localPath)
	}
	return h.Sum32(), nil
}

// retry runs f until it succeeds, the context ends, maxTries is reached or
// the object turns out to exist already
func (g *GCS) retry(ctx context.Context, name string, f func() error) error {
	for tries := 1; ; tries++ {
		err := f()
		if err == nil || tries == maxTries || stderrors.Is(err, errObjectExists) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn().Err(err).Str("object", name).Int("try", tries).Msg("Upload failed, retrying")
		g.sleep(time.Duration(100*tries) * time.Millisecond)
	}
}

type bucketStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func (b *bucketStore) exists(ctx context.Context, name string) (bool, error) {
	_, err := b.bucket.Object(name).Attrs(ctx)
	switch err {
	case nil:
		return true, nil
	case gcs.ErrObjectNotExist:
		return false, nil
	default:
		return false, err
	}
}

func (b *bucketStore) put(ctx context.Context, name string, r io.Reader) (uint32, error) {
	w := b.bucket.Object(name).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ChunkSize = uploadChunkSize
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return 0, err
	}
	// The object becomes visible only when Close succeeds
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if stderrors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return 0, stderrors.Join(errObjectExists, err)
		}
		return 0, err
	}
	return w.Attrs().CRC32C, nil
}

func (b *bucketStore) remove(ctx context.Context, name string) error {
	err := b.bucket.Object(name).Delete(ctx)
	if err == gcs.ErrObjectNotExist {
		return nil
	}
	return err
}

func (b *bucketStore) close() error {
	return b.client.Close()
}
