package keystash

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Back up your keys and shell history into one encrypted archive"
	MsgBackupShort     = "Discover, encrypt and archive sensitive files"
	MsgRestoreShort    = "Restore files from an archive (not implemented)"
	MsgExtractShort    = "Unpack an archive, optionally decrypting it"
	MsgVerifyShort     = "Check an archive against its parity file"
	MsgDiscoverShort   = "List the files a backup would include"
	MsgGenConfigShort  = "Print the default configuration"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Status messages
	MsgBackupDone      = "Backup complete"
	MsgArchiveLine     = "Archive: %s\n"
	MsgChecksumLine    = "Sum:     %s\n"
	MsgParityLine      = "Parity:  %s\n"
	MsgFilesLine       = "Files:   %d (%s)\n"
	MsgEncrypted       = "encrypted"
	MsgNotEncrypted    = "not encrypted"
	MsgNothingToBackUp = "No files matched the configured rules; nothing was written."
	MsgFileItem        = "  %s\n"
	MsgDiscoverCount   = "%d file(s) would be backed up:\n"
	MsgExtracted       = "Extracted %d file(s) to %s\n"
	MsgDecrypted       = "Decrypted %d file(s)\n"
	MsgVerifyOK        = "%s is intact (%d chunks checked)\n"
	MsgVerifyDamaged   = "%s is damaged: %d data and %d parity chunk(s) do not match\n"
	MsgVerifyRepaired  = "%s repaired\n"
	MsgWarning         = "Warning: %v\n"
	MsgVersionFormat   = "keystash %s (commit %s, built %s)\n"
	MsgRestoreNotBuilt = "restore is not implemented; use 'keystash extract --decrypt' and copy files back yourself"

	// Error messages
	MsgErrInitPaths = "failed to initialize paths: %w"
	MsgErrDamaged   = "archive is damaged; run with --repair to fix it"

	// Flag descriptions
	MsgFlagVerbose        = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig         = "Path to the configuration file"
	MsgFlagFormat         = "Archive format (tar.gz or zip)"
	MsgFlagNoEncrypt      = "Store files without encryption"
	MsgFlagKeyFile        = "Read the passphrase from this file"
	MsgFlagDest           = "Backup destination directory or gs://bucket/prefix URL"
	MsgFlagGCSCredentials = "Service account JSON file for Cloud Storage destinations"
	MsgFlagDecrypt        = "Decrypt every extracted file in place"
	MsgFlagRepair         = "Rebuild damaged chunks from parity"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/backup-long.txt
	msgBackupLongRaw string
	MsgBackupLong    = strings.TrimSpace(msgBackupLongRaw)

	//go:embed msgs/backup-example.txt
	msgBackupExampleRaw string
	MsgBackupExample    = strings.TrimRight(msgBackupExampleRaw, "\n")

	//go:embed msgs/extract-long.txt
	msgExtractLongRaw string
	MsgExtractLong    = strings.TrimSpace(msgExtractLongRaw)

	//go:embed msgs/extract-example.txt
	msgExtractExampleRaw string
	MsgExtractExample    = strings.TrimRight(msgExtractExampleRaw, "\n")

	//go:embed msgs/verify-long.txt
	msgVerifyLongRaw string
	MsgVerifyLong    = strings.TrimSpace(msgVerifyLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
