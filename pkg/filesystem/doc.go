// Package filesystem provides the filesystem layer used by keystash.
//
// Every component that touches disk takes an afero.Fs so the same code runs
// against the OS filesystem in production and an in-memory filesystem in
// tests. On top of that the package adds the few primitives the backup
// pipeline depends on: regular-file checks, canonical paths for
// deduplication, and atomic temp-file-then-rename writes.
package filesystem
