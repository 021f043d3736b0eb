// Package rules turns declarative backup rules into the set of files a run
// will back up.
//
// # Rule Kinds
//
// Each rule kind is its own type implementing Rule:
//
//   - ShellHistory - well-known shell and REPL history files in the home
//     directory, plus the file named by $HISTFILE
//   - SSHKeys - regular files directly inside ~/.ssh
//   - GPGKeys - regular files directly inside the GnuPG home
//   - CustomPath - a single file; directories are rejected, not expanded
//   - CustomDirectory - glob patterns under a directory, optionally recursive
//
// Rules arrive from configuration as Spec values and are converted with
// Parse. An unknown type tag is an error at that point rather than a rule
// that silently matches nothing.
//
// # Configuration
//
//	"files_to_include": [
//	  {"type": "shell_history"},
//	  {"type": "ssh_keys"},
//	  {"type": "custom_directory", "path": "~/.aws", "patterns": ["*"], "recursive": true},
//	  {"type": "custom_path", "path": "~/.netrc", "enabled": false}
//	]
//
// # Discovery
//
// Evaluator.Discover walks the rules and collects canonical paths into a
// FileSet. Missing targets are logged and contribute nothing; discovery never
// aborts a run on its own. The resulting set does not depend on rule order.
package rules
