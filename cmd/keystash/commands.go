package keystash

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arthur-debert/keystash/internal/version"
	"github.com/arthur-debert/keystash/pkg/backup"
	"github.com/arthur-debert/keystash/pkg/config"
	"github.com/arthur-debert/keystash/pkg/destination"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/filesystem"
	"github.com/arthur-debert/keystash/pkg/logging"
	"github.com/arthur-debert/keystash/pkg/parity"
	"github.com/arthur-debert/keystash/pkg/paths"
	"github.com/arthur-debert/keystash/pkg/rules"
	"github.com/arthur-debert/keystash/pkg/secrets"
	"github.com/arthur-debert/keystash/pkg/ui/styles"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

// outgoingDir holds archives waiting to be uploaded to a remote destination
const outgoingDir = "outgoing"

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	// Initialize custom template formatting functions
	initTemplateFormatting()

	var verbosity int

	rootCmd := &cobra.Command{
		Use:     "keystash",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand given
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", MsgFlagVerbose)

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "COMMANDS:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "misc",
		Title: "MISC:",
	})
	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newGenConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// initEnv returns the filesystem and locations commands operate on
func initEnv() (afero.Fs, paths.Paths, error) {
	p, err := paths.New("")
	if err != nil {
		return nil, nil, fmt.Errorf(MsgErrInitPaths, err)
	}
	return filesystem.NewOS(), p, nil
}

// loadSettings loads the configuration and reports any problems with it on
// stderr. Problems are not fatal: the defaults are used instead.
func loadSettings(cmd *cobra.Command, fs afero.Fs, p paths.Paths, configPath string) (*config.Settings, error) {
	settings, err := config.Load(fs, p, configPath)
	if err != nil {
		return nil, err
	}
	for _, w := range settings.Warnings {
		fmt.Fprint(cmd.ErrOrStderr(), styles.Render(cmd.ErrOrStderr(), "Warning", fmt.Sprintf(MsgWarning, w)))
	}
	return settings, nil
}

func newBackupCmd() *cobra.Command {
	var (
		configPath     string
		format         string
		keyFile        string
		dest           string
		gcsCredentials string
		noEncrypt      bool
	)

	cmd := &cobra.Command{
		Use:     "backup",
		Short:   MsgBackupShort,
		Long:    MsgBackupLong,
		Example: MsgBackupExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, p, err := initEnv()
			if err != nil {
				return err
			}
			settings, err := loadSettings(cmd, fs, p, configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("format") {
				settings.ArchiveFormat = format
			}
			if flags.Changed("dest") {
				settings.BackupDestinationPath = dest
			}
			if flags.Changed("key-file") {
				settings.EncryptionKeyPath = keyFile
			}
			if noEncrypt {
				settings.EncryptionEnabled = false
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			var opts []option.ClientOption
			if gcsCredentials != "" {
				opts = append(opts, option.WithCredentialsFile(p.Expand(gcsCredentials)))
			}
			dst, err := destination.Open(cmd.Context(), fs, settings.Destination(), filepath.Join(p.CacheDir(), outgoingDir), opts...)
			if err != nil {
				return err
			}
			defer func() {
				if err := dst.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close destination")
				}
			}()

			log.Info().
				Str("destination", dst.String()).
				Str("format", settings.ArchiveFormat).
				Bool("encrypt", settings.EncryptionEnabled).
				Msg("Starting backup")

			runner, err := backup.NewRunner(fs, p, settings, secrets.FromSettings(fs, settings), dst)
			if err != nil {
				return err
			}
			res, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			printBackupResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", MsgFlagConfig)
	cmd.Flags().StringVarP(&format, "format", "f", "", MsgFlagFormat)
	cmd.Flags().StringVarP(&keyFile, "key-file", "k", "", MsgFlagKeyFile)
	cmd.Flags().StringVarP(&dest, "dest", "d", "", MsgFlagDest)
	cmd.Flags().StringVar(&gcsCredentials, "gcs-credentials", "", MsgFlagGCSCredentials)
	cmd.Flags().BoolVar(&noEncrypt, "no-encrypt", false, MsgFlagNoEncrypt)
	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"tar.gz", "zip"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func printBackupResult(out, errOut io.Writer, res *backup.Result) {
	if res.State == backup.StateIdle {
		fmt.Fprintln(out, styles.Render(out, "Warning", MsgNothingToBackUp))
		return
	}

	fmt.Fprintln(out, styles.Render(out, "Success", MsgBackupDone))
	fmt.Fprintf(out, MsgArchiveLine, styles.Render(out, "FilePath", res.ArchivePath))
	fmt.Fprintf(out, MsgChecksumLine, res.Checksum)
	if res.ParityPath != "" {
		fmt.Fprintf(out, MsgParityLine, styles.Render(out, "FilePath", res.ParityPath))
	}
	mode := MsgNotEncrypted
	if res.Encrypted {
		mode = MsgEncrypted
	}
	fmt.Fprintf(out, MsgFilesLine, len(res.Files), mode)
	for _, rel := range res.Files {
		fmt.Fprintf(out, MsgFileItem, styles.Render(out, "Muted", rel))
	}
	for _, w := range res.Warnings {
		fmt.Fprint(errOut, styles.Render(errOut, "Warning", fmt.Sprintf(MsgWarning, w)))
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "restore ARCHIVE",
		Short:   MsgRestoreShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New(errors.ErrNotImplemented, MsgRestoreNotBuilt)
		},
	}
}

func newExtractCmd() *cobra.Command {
	var (
		decrypt bool
		keyFile string
	)

	cmd := &cobra.Command{
		Use:     "extract ARCHIVE DEST",
		Short:   MsgExtractShort,
		Long:    MsgExtractLong,
		Example: MsgExtractExample,
		GroupID: "core",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, p, err := initEnv()
			if err != nil {
				return err
			}
			archivePath, err := absPath(p, args[0])
			if err != nil {
				return err
			}
			dest, err := absPath(p, args[1])
			if err != nil {
				return err
			}

			opts := backup.ExtractOptions{Decrypt: decrypt}
			if decrypt {
				opts.Secrets = extractSecrets(fs, p, keyFile)
			}
			rels, err := backup.Extract(cmd.Context(), fs, archivePath, dest, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, MsgExtracted, len(rels), styles.Render(out, "FilePath", dest))
			if decrypt {
				fmt.Fprintf(out, MsgDecrypted, len(rels))
			}
			for _, rel := range rels {
				fmt.Fprintf(out, MsgFileItem, rel)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&decrypt, "decrypt", false, MsgFlagDecrypt)
	cmd.Flags().StringVarP(&keyFile, "key-file", "k", "", MsgFlagKeyFile)
	return cmd
}

// absPath expands ~ and makes a command line path absolute
func absPath(p paths.Paths, arg string) (string, error) {
	abs, err := filepath.Abs(p.Expand(arg))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "invalid path %s", arg)
	}
	return abs, nil
}

// extractSecrets picks where the passphrase for decryption comes from. The
// passphrase already exists, so the prompt asks only once.
func extractSecrets(fs afero.Fs, p paths.Paths, keyFile string) secrets.Source {
	switch {
	case keyFile != "":
		return secrets.KeyFile{FS: fs, Path: p.Expand(keyFile)}
	case os.Getenv(secrets.EnvPassphrase) != "":
		return secrets.Env{}
	default:
		return &secrets.Prompt{Out: os.Stderr}
	}
}

func newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:     "verify ARCHIVE",
		Short:   MsgVerifyShort,
		Long:    MsgVerifyLong,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, p, err := initEnv()
			if err != nil {
				return err
			}
			archivePath, err := absPath(p, args[0])
			if err != nil {
				return err
			}
			sidecar := parity.SidecarPath(archivePath)
			out := cmd.OutOrStdout()

			report, err := parity.Verify(fs, archivePath, sidecar)
			if err != nil {
				return err
			}
			if report.OK() {
				fmt.Fprint(out, styles.Render(out, "Success", fmt.Sprintf(MsgVerifyOK, archivePath, report.Chunks)))
				return nil
			}

			fmt.Fprint(out, styles.Render(out, "Warning", fmt.Sprintf(MsgVerifyDamaged, archivePath, report.DataMismatches, report.ParityMismatches)))
			if !repair {
				return errors.New(errors.ErrParity, MsgErrDamaged)
			}
			if _, err := parity.Repair(fs, archivePath, sidecar); err != nil {
				return err
			}
			fmt.Fprint(out, styles.Render(out, "Success", fmt.Sprintf(MsgVerifyRepaired, archivePath)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, MsgFlagRepair)
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "discover",
		Short:   MsgDiscoverShort,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, p, err := initEnv()
			if err != nil {
				return err
			}
			settings, err := loadSettings(cmd, fs, p, configPath)
			if err != nil {
				return err
			}
			rs, err := settings.Rules()
			if err != nil {
				return err
			}
			set, err := rules.NewEvaluator(fs, p).Discover(cmd.Context(), rs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if set.Len() == 0 {
				fmt.Fprintln(out, styles.Render(out, "Warning", MsgNothingToBackUp))
				return nil
			}
			fmt.Fprintf(out, MsgDiscoverCount, set.Len())
			for _, path := range set.Paths() {
				fmt.Fprintf(out, MsgFileItem, styles.Render(out, "FilePath", p.Relative(path)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", MsgFlagConfig)
	return cmd
}

func newGenConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "genconfig",
		Short:   MsgGenConfigShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := initEnv()
			if err != nil {
				return err
			}
			data, err := config.DefaultJSON(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		Long:                  MsgCompletionLong,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		GroupID:               "misc",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
