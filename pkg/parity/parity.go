// Package parity writes Reed-Solomon recovery data next to an archive so a
// partially corrupted archive can be detected and repaired.
//
// The archive is split into DataShards equal shards, zero padded, and
// ParityShards parity shards are computed over them. Every shard is hashed
// in HashRate-sized chunks so corruption can be located at chunk
// granularity; each chunk position can then lose up to ParityShards shards
// and still be rebuilt.
package parity

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/klauspost/reedsolomon"
	"github.com/spf13/afero"
	"golang.org/x/crypto/sha3"
)

const (
	// Ext is appended to the archive path to name the sidecar
	Ext = ".rs"
	// DefaultDataShards is the number of data shards used by the CLI
	DefaultDataShards = 10
	// DefaultHashRate is the chunk size hashes are computed over
	DefaultHashRate = 64 * 1024

	hashSize = 64
)

// Hash is a SHAKE256 digest
type Hash [hashSize]byte

func hashBytes(b []byte) Hash {
	var h Hash
	sha3.ShakeSum256(h[:], b)
	return h
}

// Sidecar is the gob-encoded content of a .rs file
type Sidecar struct {
	FileSize     int64
	DataShards   int
	ParityShards int
	HashRate     int64
	// Hashes holds per-chunk hashes for the data shards, then the parity
	// shards.
	Hashes [][]Hash
	Parity [][]byte
}

// Report describes what Verify or Repair found
type Report struct {
	Chunks           int
	DataMismatches   int
	ParityMismatches int
	Repaired         bool
}

// OK reports whether no corruption was found
func (r *Report) OK() bool {
	return r.DataMismatches == 0 && r.ParityMismatches == 0
}

// SidecarPath names the sidecar for archivePath
func SidecarPath(archivePath string) string {
	return archivePath + Ext
}

// Encode computes parity for archivePath and writes it to the sidecar path,
// which it returns.
func Encode(fs afero.Fs, archivePath string, dataShards, parityShards int) (string, error) {
	return encode(fs, archivePath, dataShards, parityShards, DefaultHashRate)
}

func encode(fs afero.Fs, archivePath string, dataShards, parityShards int, hashRate int64) (string, error) {
	logger := logging.GetLogger("parity")
	if dataShards < 1 || parityShards < 1 {
		return "", errors.Newf(errors.ErrParity, "need at least one data and one parity shard, got %d+%d", dataShards, parityShards)
	}

	data, size, err := readAndShard(fs, archivePath, dataShards)
	if err != nil {
		return "", err
	}

	sc := Sidecar{
		FileSize:     size,
		DataShards:   dataShards,
		ParityShards: parityShards,
		HashRate:     hashRate,
	}
	for i := 0; i < parityShards; i++ {
		sc.Parity = append(sc.Parity, make([]byte, len(data[0])))
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrParity, "invalid shard configuration")
	}
	all := append(append([][]byte(nil), data...), sc.Parity...)
	if err := enc.Encode(all); err != nil {
		return "", errors.Wrap(err, errors.ErrParity, "reed-solomon encoding failed")
	}

	for _, s := range all {
		sc.Hashes = append(sc.Hashes, hashChunks(chunk(s, hashRate)))
	}

	sidecarPath := SidecarPath(archivePath)
	err = filesystem.AtomicWriteFile(fs, sidecarPath, 0600, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(sc)
	})
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "cannot write parity file %s", sidecarPath)
	}

	logger.Info().
		Str("path", sidecarPath).
		Int("dataShards", dataShards).
		Int("parityShards", parityShards).
		Msg("Parity file written")
	return sidecarPath, nil
}

// Verify checks archivePath against its sidecar without modifying anything
func Verify(fs afero.Fs, archivePath, sidecarPath string) (*Report, error) {
	report, _, _, err := check(fs, archivePath, sidecarPath)
	return report, err
}

// Repair rebuilds corrupted chunks of archivePath from parity and rewrites
// the archive in place. It fails with ErrParity when too much is damaged.
func Repair(fs afero.Fs, archivePath, sidecarPath string) (*Report, error) {
	logger := logging.GetLogger("parity")
	report, sc, shards, err := check(fs, archivePath, sidecarPath)
	if err != nil {
		return nil, err
	}
	if report.DataMismatches == 0 {
		// Only parity is damaged; the archive itself is intact.
		return report, nil
	}

	enc, err := reedsolomon.New(sc.DataShards, sc.ParityShards)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrParity, "invalid shard configuration in parity file")
	}

	dataLen := int64(len(shards[0].whole))
	for c := 0; c < report.Chunks; c++ {
		recon := make([][]byte, len(shards))
		missing := 0
		for s := range shards {
			recon[s] = shards[s].chunks[c]
			if recon[s] == nil {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		if err := enc.ReconstructData(recon); err != nil {
			return nil, errors.Wrapf(err, errors.ErrParity, "chunk %d cannot be recovered", c)
		}
		for s := 0; s < sc.DataShards; s++ {
			copy(shards[s].whole[int64(c)*sc.HashRate:], recon[s])
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(dataLen) * sc.DataShards)
	for s := 0; s < sc.DataShards; s++ {
		buf.Write(shards[s].whole)
	}
	restored := buf.Bytes()[:sc.FileSize]

	err = filesystem.AtomicWriteFile(fs, archivePath, 0600, func(w io.Writer) error {
		_, err := w.Write(restored)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "cannot rewrite %s", archivePath)
	}

	report.Repaired = true
	logger.Warn().
		Str("path", archivePath).
		Int("dataMismatches", report.DataMismatches).
		Int("parityMismatches", report.ParityMismatches).
		Msg("Archive repaired from parity")
	return report, nil
}

type shardState struct {
	whole  []byte
	chunks [][]byte // nil where the hash did not match
}

func check(fs afero.Fs, archivePath, sidecarPath string) (*Report, *Sidecar, []shardState, error) {
	logger := logging.GetLogger("parity")
	sc, err := readSidecar(fs, sidecarPath)
	if err != nil {
		return nil, nil, nil, err
	}

	data, size, err := readAndShard(fs, archivePath, sc.DataShards)
	if err != nil {
		return nil, nil, nil, err
	}
	if size != sc.FileSize {
		logger.Warn().Int64("expected", sc.FileSize).Int64("actual", size).Msg("Archive size differs from parity record")
		data, err = reshard(fs, archivePath, sc)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	all := append(append([][]byte(nil), data...), sc.Parity...)
	if len(all) != len(sc.Hashes) {
		return nil, nil, nil, errors.New(errors.ErrParity, "parity file is inconsistent")
	}

	shards := make([]shardState, len(all))
	for i, s := range all {
		shards[i] = shardState{whole: s, chunks: chunk(s, sc.HashRate)}
	}

	report := &Report{Chunks: len(shards[0].chunks)}
	for s := range shards {
		if len(shards[s].chunks) != report.Chunks || len(sc.Hashes[s]) != report.Chunks {
			return nil, nil, nil, errors.New(errors.ErrParity, "parity file is inconsistent")
		}
		for c := range shards[s].chunks {
			if hashBytes(shards[s].chunks[c]) == sc.Hashes[s][c] {
				continue
			}
			shards[s].chunks[c] = nil
			if s < sc.DataShards {
				report.DataMismatches++
			} else {
				report.ParityMismatches++
			}
			logger.Debug().Int("shard", s).Int("chunk", c).Msg("Hash mismatch")
		}
	}
	return report, sc, shards, nil
}

// reshard lays the archive out with the recorded size, truncating or zero
// filling, so a length change shows up as chunk mismatches.
func reshard(fs afero.Fs, archivePath string, sc *Sidecar) ([][]byte, error) {
	raw, err := afero.ReadFile(fs, archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "cannot read %s", archivePath)
	}
	shardSize := shardSizeFor(sc.FileSize, sc.DataShards)
	buf := make([]byte, shardSize*int64(sc.DataShards))
	copy(buf, raw)
	return chunk(buf, shardSize), nil
}

func readSidecar(fs afero.Fs, path string) (*Sidecar, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrParity, "cannot open parity file %s", path)
	}
	defer func() { _ = f.Close() }()

	var sc Sidecar
	if err := gob.NewDecoder(f).Decode(&sc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrParity, "corrupt parity file %s", path)
	}
	if sc.DataShards < 1 || sc.ParityShards < 1 || sc.HashRate < 1 {
		return nil, errors.Newf(errors.ErrParity, "corrupt parity file %s", path)
	}
	return &sc, nil
}

func shardSizeFor(size int64, n int) int64 {
	s := (size + int64(n) - 1) / int64(n)
	if s == 0 {
		s = 1
	}
	return s
}

// readAndShard reads the file into n equal, zero padded shards
func readAndShard(fs afero.Fs, path string, n int) ([][]byte, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, errors.ErrIO, "cannot open %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.Wrapf(err, errors.ErrIO, "cannot stat %s", path)
	}
	size := info.Size()
	shardSize := shardSizeFor(size, n)

	buf := make([]byte, int64(n)*shardSize)
	if _, err := io.ReadFull(f, buf[:size]); err != nil {
		return nil, 0, errors.Wrapf(err, errors.ErrIO, "cannot read %s", path)
	}
	return chunk(buf, shardSize), size, nil
}

// chunk splits b into pieces of size bytes; the last may be shorter
func chunk(b []byte, size int64) [][]byte {
	var out [][]byte
	for int64(len(b)) > size {
		out = append(out, b[:size:size])
		b = b[size:]
	}
	return append(out, b)
}

func hashChunks(chunks [][]byte) []Hash {
	hashes := make([]Hash, len(chunks))
	for i, c := range chunks {
		hashes[i] = hashBytes(c)
	}
	return hashes
}
