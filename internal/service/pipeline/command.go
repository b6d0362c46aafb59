package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/oshokin/release-pipeline/internal/config"
	"github.com/oshokin/release-pipeline/internal/domain/release"
	"github.com/oshokin/release-pipeline/internal/logger"
	"github.com/oshokin/release-pipeline/internal/service/channel"
	"github.com/oshokin/release-pipeline/internal/service/common"
	"github.com/oshokin/release-pipeline/internal/service/docs"
	"github.com/oshokin/release-pipeline/internal/service/downloader"
	"github.com/oshokin/release-pipeline/internal/service/repackager"
	"github.com/oshokin/release-pipeline/internal/service/smoketest"
)

// Phase labels failures that happen before any phase starts.
const Phase = "init"

// Commands accepted on the command line.
const (
	CommandDownload  = "download"
	CommandBuild     = "build"
	CommandDocs      = "docs"
	CommandRepackage = "repackage"
	CommandTest      = "test"
	CommandUpdate    = "update"
	CommandAll       = "all"
)

// defaultDirMode is used for the download directory that holds the run marker.
const defaultDirMode os.FileMode = 0o755

var errUnknownCommand = errors.New("unknown command")

// Options are inputs accepted by the pipeline entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Config replaces loading from ConfigPath when set.
	Config *config.Config
	// Command selects one phase or "all".
	Command string
	// Version is the public version being released (e.g. "1.4.8").
	Version string
	// BuildHash identifies the nightly build.
	BuildHash string
	// Hotfix overrides the configured hotfix suffix when not empty.
	Hotfix string
	// Executor runs external tools; real processes are used when nil.
	Executor common.Executor
	// Client downloads artifacts; a client with the configured timeout is used when nil.
	Client *http.Client
}

// Report summarises a finished run.
type Report struct {
	// RunID identifies the run in logs and in the run marker.
	RunID string
	// Release is the resolved release.
	Release *release.Release
	// Phases lists the phases that completed, in order.
	Phases []string
	// Smoke is set when the smoke test ran.
	Smoke *smoketest.Outcome
	// Promotion is set when the channel updater ran.
	Promotion *channel.Decision
}

// runner holds the state shared by the phases of one run.
type runner struct {
	opts     *Options
	cfg      *config.Config
	executor common.Executor
	report   *Report
}

// Commands returns every accepted command in help order.
func Commands() []string {
	return []string{
		CommandDownload,
		CommandBuild,
		CommandDocs,
		CommandRepackage,
		CommandTest,
		CommandUpdate,
		CommandAll,
	}
}

// Plan returns the phases a command runs, in execution order.
func Plan(command string) ([]string, error) {
	switch command {
	case CommandDownload:
		return []string{downloader.Phase}, nil
	case CommandBuild, CommandDocs:
		return []string{docs.Phase}, nil
	case CommandRepackage:
		return []string{repackager.Phase}, nil
	case CommandTest:
		return []string{smoketest.Phase}, nil
	case CommandUpdate:
		return []string{channel.Phase}, nil
	case CommandAll:
		return []string{downloader.Phase, docs.Phase, repackager.Phase, smoketest.Phase, channel.Phase}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, command)
	}
}

// Run executes the selected command. Hard failures are *common.PhaseError values.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	names, err := Plan(opts.Command)
	if err != nil {
		return nil, common.Fail(Phase, opts.Command, err)
	}

	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(logger.WithName(ctx, "pipeline"),
		"run_id", r.report.RunID,
		"version", r.report.Release.Version.String())

	if err = os.MkdirAll(r.cfg.DownloadDir, defaultDirMode); err != nil {
		return nil, common.Fail(Phase, "mkdir "+r.cfg.DownloadDir, err)
	}

	guard, err := Acquire(ctx, r.cfg.DownloadDir, r.report.RunID)
	if err != nil {
		return nil, common.Fail(Phase, "acquire run marker in "+r.cfg.DownloadDir, err)
	}

	defer guard.Release(ctx)

	logger.InfoKV(ctx, "Pipeline started", "command", opts.Command, "build_hash", r.report.Release.BuildHash)

	for _, name := range names {
		if r.skip(ctx, name) {
			continue
		}

		logger.InfoKV(ctx, "Phase started", "phase", name)

		if err = r.runPhase(ctx, name); err != nil {
			return r.report, common.Fail(name, name, err)
		}

		r.report.Phases = append(r.report.Phases, name)
	}

	logger.InfoKV(ctx, "Pipeline finished", "phases", r.report.Phases)

	return r.report, nil
}

func newRunner(opts *Options) (*runner, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error

		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return nil, common.Fail(Phase, "load config "+opts.ConfigPath, err)
		}
	} else if err := config.Validate(cfg); err != nil {
		return nil, common.Fail(Phase, "validate config", err)
	}

	hotfix := cfg.HotfixSuffix
	if opts.Hotfix != "" {
		hotfix = opts.Hotfix
	}

	rel, err := release.New(cfg.Project, opts.Version, opts.BuildHash, hotfix)
	if err != nil {
		return nil, common.Fail(Phase, fmt.Sprintf("parse release %q %q", opts.Version, opts.BuildHash), err)
	}

	executor := opts.Executor
	if executor == nil {
		level, ok := logger.ParseLogLevel(cfg.CommandLogLevel)
		if !ok {
			level, _ = logger.ParseLogLevel(config.Default().CommandLogLevel)
		}

		executor = common.NewExecExecutor(common.WithOutputLevel(level))
	}

	return &runner{
		opts:     opts,
		cfg:      cfg,
		executor: executor,
		report: &Report{
			RunID:   uuid.NewString(),
			Release: rel,
		},
	}, nil
}

// skip reports whether a planned phase must not run.
// Promotion is withheld after a failed smoke test when the configuration asks for it.
func (r *runner) skip(ctx context.Context, name string) bool {
	if name != channel.Phase || !r.cfg.Promotion.RequireSmokeTest {
		return false
	}

	if r.report.Smoke == nil || r.report.Smoke.Passed {
		return false
	}

	logger.WarnKV(ctx, "Skipping promotion after a failed smoke test",
		"version_line", r.report.Smoke.VersionLine)

	return true
}

func (r *runner) runPhase(ctx context.Context, name string) error {
	switch name {
	case downloader.Phase:
		return r.download(ctx)
	case docs.Phase:
		return r.docs(ctx)
	case repackager.Phase:
		return r.repackage(ctx)
	case smoketest.Phase:
		return r.smokeTest(ctx)
	case channel.Phase:
		return r.update(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, name)
	}
}

func (r *runner) download(ctx context.Context) error {
	client := r.opts.Client
	if client == nil {
		client = &http.Client{Timeout: r.cfg.Timeout}
	}

	return downloader.Run(ctx, &downloader.Options{
		Release:   r.report.Release,
		Artifacts: r.cfg.ReleaseArtifacts(),
		BaseURL:   r.cfg.ArtifactBaseURL,
		Dir:       r.cfg.DownloadDir,
		Client:    client,
	})
}

func (r *runner) docs(ctx context.Context) error {
	return docs.Run(ctx, &docs.Options{
		Release:  r.report.Release,
		Config:   r.cfg,
		Executor: r.executor,
	})
}

func (r *runner) repackage(ctx context.Context) error {
	return repackager.Run(ctx, &repackager.Options{
		Release: r.report.Release,
		Dir:     r.cfg.DownloadDir,
	})
}

func (r *runner) smokeTest(ctx context.Context) error {
	outcome, err := smoketest.Run(ctx, &smoketest.Options{
		Release:  r.report.Release,
		Config:   r.cfg,
		Executor: r.executor,
	})
	if err != nil {
		return err
	}

	r.report.Smoke = outcome

	return nil
}

func (r *runner) update(ctx context.Context) error {
	decision, err := channel.Run(ctx, &channel.Options{
		Release: r.report.Release,
		WebRoot: r.cfg.WebRoot,
	})
	if err != nil {
		return err
	}

	r.report.Promotion = decision

	return nil
}
