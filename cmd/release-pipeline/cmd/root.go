package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/common"
	"github.com/oshokin/release-pipeline/internal/service/pipeline"
	"github.com/oshokin/release-pipeline/internal/version"
)

var (
	errCommandRequired = errors.New("a command is required")
	errBadLogLevel     = errors.New("unknown log level")
)

// flags collects the persistent command line flags.
type flags struct {
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level of the pipeline's own logs.
	logLevel string
	// hotfix overrides the configured hotfix suffix of remote artifact names.
	hotfix string
}

// phaseCommand describes one subcommand running a pipeline command.
type phaseCommand struct {
	name    string
	aliases []string
	short   string
}

//nolint:gochecknoglobals // Static command table.
var phaseCommands = []phaseCommand{
	{name: pipeline.CommandDownload, short: "Download the release artifacts and write their checksums"},
	{name: pipeline.CommandBuild, aliases: []string{pipeline.CommandDocs}, short: "Stage the documentation in the web root"},
	{name: pipeline.CommandRepackage, short: "Recompress the source tarball as .tar.gz"},
	{name: pipeline.CommandTest, short: "Build the source tarball and smoke test the result"},
	{name: pipeline.CommandUpdate, short: "Promote the release to the stable channel if it is newer"},
	{name: pipeline.CommandAll, short: "Run every phase in order"},
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "release-pipeline <command> <version> <build-hash>",
		Short: "Publish a release from a nightly build.",
		Long: `Publishes one release of the project from a nightly build.

Every command takes the public version (e.g. 1.4.8) and the nightly build hash.
"all" runs download, docs, repackage, test and update in this order and stops
at the first failure.`,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(f.logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errBadLogLevel, f.logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()

			return errCommandRequired
		},
	}

	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&f.hotfix, "hotfix", "", "hotfix suffix of remote artifact names, overrides the configuration")

	for _, pc := range phaseCommands {
		root.AddCommand(newPhaseCommand(pc, f))
	}

	return root
}

func newPhaseCommand(pc phaseCommand, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:     pc.name + " <version> <build-hash>",
		Aliases: pc.aliases,
		Short:   pc.short,
		Args:    cobra.ExactArgs(2), //nolint:mnd // Version and build hash.
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid, a failure from here on is not a usage problem.
			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &pipeline.Options{
				ConfigPath: f.configPath,
				Command:    pc.name,
				Version:    args[0],
				BuildHash:  args[1],
				Hotfix:     f.hotfix,
			}

			_, err := pipeline.Run(ctx, options)

			return err
		},
	}
}

// Execute runs the release-pipeline CLI and exits with non-zero status on error.
func Execute() {
	root := newRootCommand()
	root.SetOut(os.Stdout)
	version.AttachCobraVersionCommand(root)

	if err := root.ExecuteContext(context.Background()); err != nil {
		reportFailure(os.Stdout, os.Stderr, err)
		os.Exit(1)
	}
}

// reportFailure prints the phase failure banner to out, or any other error to errOut.
func reportFailure(out, errOut io.Writer, err error) {
	var phaseErr *common.PhaseError
	if !errors.As(err, &phaseErr) {
		_, _ = fmt.Fprintln(errOut, "Error:", err)

		return
	}

	if phaseErr.Err != nil {
		logger.ErrorKV(context.Background(), "Phase failed", "phase", phaseErr.Phase, "error", phaseErr.Err)
	}

	banner := phaseErr.Error()
	if isTerminal(out) {
		banner = color.Red.Sprint(banner)
	}

	_, _ = fmt.Fprintln(out, banner)
}

// isTerminal reports whether w is a terminal, so piped output keeps the plain banner.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
