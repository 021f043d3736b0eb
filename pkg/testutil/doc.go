// Package testutil provides utilities for testing keystash components.
//
// Key components:
//   - Env: an isolated home directory with XDG and keystash environment
//     variables pointed inside it, on either an in-memory or a real
//     temporary filesystem
//   - FailingFs: an afero.Fs wrapper that injects errors for chosen
//     operations and paths
//
// Usage guidelines:
//   - Prefer EnvMemoryOnly; use EnvIsolated when the code under test needs
//     real symlinks, permissions or the os package
//   - All test data should be defined inline, not in external files
package testutil
