package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/release-pipeline/internal/domain/release"
)

// Config holds every setting of a pipeline run.
type Config struct {
	// Project is the artifact filename prefix and binary name (e.g. "nim").
	Project string `yaml:"project"`
	// ArtifactBaseURL is the artifact store root; files live under <base>/<build-hash>/.
	ArtifactBaseURL string `yaml:"artifact_base_url"`
	// DownloadDir receives the artifacts and their checksum files.
	DownloadDir string `yaml:"download_dir"`
	// WebRoot is the public web root holding docs, the docs symlink and channels.
	WebRoot string `yaml:"web_root"`
	// WorkDir holds source checkouts and scratch directories.
	WorkDir string `yaml:"work_dir"`
	// HotfixSuffix is inserted into remote artifact names only.
	HotfixSuffix string `yaml:"hotfix_suffix"`
	// Timeout bounds each artifact download.
	Timeout time.Duration `yaml:"timeout"`
	// CommandLogLevel is the minimum level at which subprocess output is shown.
	CommandLogLevel string `yaml:"command_log_level"`
	// MinimalPath is the sanitized PATH used for build and test commands.
	MinimalPath []string `yaml:"minimal_path"`
	// Artifacts lists the files fetched by the downloader.
	Artifacts []Artifact `yaml:"artifacts"`
	// Docs configures the documentation stager.
	Docs Docs `yaml:"docs"`
	// Smoke configures the smoke tester.
	Smoke Smoke `yaml:"smoke"`
	// Promotion configures the channel updater.
	Promotion Promotion `yaml:"promotion"`
}

// Artifact is one entry of the artifact set.
type Artifact struct {
	// Suffix is the os/arch marker, empty for the source tarball.
	Suffix string `yaml:"suffix"`
	// Ext is the extension without the leading dot.
	Ext string `yaml:"ext"`
}

// Docs configures both documentation strategies.
type Docs struct {
	// Strategy is "build" (from a source checkout) or "extract" (from an archive).
	Strategy string `yaml:"strategy"`
	// Repository is the clone URL used by the build strategy.
	Repository string `yaml:"repository"`
	// StylesheetFile is the file, relative to the checkout, holding the stylesheet reference.
	StylesheetFile string `yaml:"stylesheet_file"`
	// StylesheetRef is the reference that receives a cache-busting query parameter.
	StylesheetRef string `yaml:"stylesheet_ref"`
	// Bootstrap are the commands compiling the build driver and the compiler.
	Bootstrap [][]string `yaml:"bootstrap"`
	// Build is the command producing the documentation.
	Build []string `yaml:"build"`
	// OutputDir is the produced documentation tree, relative to the checkout.
	OutputDir string `yaml:"output_dir"`
	// OutputManifest marks a finished build, relative to the checkout.
	OutputManifest string `yaml:"output_manifest"`
	// ArchiveSuffix selects the downloaded archive used by the extract strategy.
	ArchiveSuffix string `yaml:"archive_suffix"`
	// ArchiveExt is the extension of that archive.
	ArchiveExt string `yaml:"archive_ext"`
	// ArchiveDocDir is the documentation tree inside the unpacked archive.
	ArchiveDocDir string `yaml:"archive_doc_dir"`
}

// Smoke configures the smoke tester.
type Smoke struct {
	// Bootstrap are the commands building the compiler from the extracted tarball.
	Bootstrap [][]string `yaml:"bootstrap"`
	// Binary is the freshly built compiler, relative to the extracted tree.
	Binary string `yaml:"binary"`
	// VersionFlag is passed to Binary for the version self-check.
	VersionFlag string `yaml:"version_flag"`
	// SelfHost are the commands rebuilding the driver and compiler with the new compiler.
	SelfHost [][]string `yaml:"self_host"`
	// TestCommand runs one test category; {category} is substituted.
	TestCommand []string `yaml:"test_command"`
	// TestCategories are the categories run by TestCommand.
	TestCategories []string `yaml:"test_categories"`
	// TestEnv are extra KEY=VALUE variables for test commands.
	TestEnv []string `yaml:"test_env"`
	// InstallCommand installs one package; {package} is substituted.
	InstallCommand []string `yaml:"install_command"`
	// Packages are installed with InstallCommand.
	Packages []string `yaml:"packages"`
}

// Promotion configures the channel updater.
type Promotion struct {
	// RequireSmokeTest skips promotion in an "all" run whose smoke test soft-failed.
	RequireSmokeTest bool `yaml:"require_smoke_test"`
}

const (
	// DefaultConfigFilename is the default filename for pipeline settings.
	DefaultConfigFilename = "release-pipeline.yaml"

	// DefaultTimeout is the default duration of a single artifact download.
	DefaultTimeout = 30 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// StrategyBuild builds documentation from a source checkout.
	StrategyBuild = "build"
	// StrategyExtract copies documentation out of a downloaded archive.
	StrategyExtract = "extract"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errProjectRequired is returned when the project name is missing.
	errProjectRequired = errors.New("project must be provided")
	// errBaseURLRequired is returned when the artifact store URL is missing.
	errBaseURLRequired = errors.New("artifact base URL must be provided")
	// errNoSourceTarball is returned when the artifact set lacks the primary tarball.
	errNoSourceTarball = errors.New("artifacts must include the source tarball (empty suffix, tar.xz)")
	// errUnknownStrategy is returned for an unsupported docs strategy.
	errUnknownStrategy = errors.New("unknown docs strategy")
	// errBuildIncomplete is returned when the build strategy lacks its repository or command.
	errBuildIncomplete = errors.New("docs strategy build needs repository and build command")
	// errExtractIncomplete is returned when the extract strategy lacks its archive settings.
	errExtractIncomplete = errors.New("docs strategy extract needs archive_ext and archive_doc_dir")
	// errSmokeIncomplete is returned when the version self-check cannot be run.
	errSmokeIncomplete = errors.New("smoke test needs binary and version_flag")
	// errBadEnv is returned for test_env entries that are not KEY=VALUE.
	errBadEnv = errors.New("environment entries must look like KEY=VALUE")
)

// Default returns the settings used when no configuration file exists.
//
//nolint:funlen // A flat literal is the clearest way to show every default.
func Default() *Config {
	return &Config{
		Project:         "nim",
		ArtifactBaseURL: "https://github.com/nim-lang/nightlies/releases/download",
		DownloadDir:     "download",
		WebRoot:         "public",
		WorkDir:         "work",
		Timeout:         DefaultTimeout,
		CommandLogLevel: "debug",
		MinimalPath: []string{
			"/usr/local/sbin",
			"/usr/local/bin",
			"/usr/sbin",
			"/usr/bin",
			"/sbin",
			"/bin",
		},
		Artifacts: []Artifact{
			{Suffix: "", Ext: "tar.xz"},
			{Suffix: "-linux_x32", Ext: "tar.xz"},
			{Suffix: "-linux_x64", Ext: "tar.xz"},
			{Suffix: "_x32", Ext: "zip"},
			{Suffix: "_x64", Ext: "zip"},
		},
		Docs: Docs{
			Strategy:       StrategyExtract,
			Repository:     "https://github.com/nim-lang/Nim.git",
			StylesheetFile: "config/nimdoc.cfg",
			StylesheetRef:  "nimdoc.out.css",
			Bootstrap: [][]string{
				{"sh", "build_all.sh"},
			},
			Build:          []string{"./koch", "docs"},
			OutputDir:      "doc/html",
			OutputManifest: "doc/html/overview.html",
			ArchiveSuffix:  "-linux_x64",
			ArchiveExt:     "tar.xz",
			ArchiveDocDir:  "{project}-{version}/doc/html",
		},
		Smoke: Smoke{
			Bootstrap: [][]string{
				{"sh", "build.sh"},
			},
			Binary:      "bin/{project}",
			VersionFlag: "--version",
			SelfHost: [][]string{
				{"bin/{project}", "c", "koch"},
				{"./koch", "boot", "-d:release"},
			},
			TestCommand:    []string{"./koch", "tests", "--nim:bin/{project}", "cat", "{category}"},
			TestCategories: []string{"megatest", "gc"},
			TestEnv:        []string{"NIM_EXE_NOT_IN_PATH=NOT_IN_PATH"},
			InstallCommand: []string{"{bindir}/nimble", "install", "-y", "--nim:{bindir}/{project}", "{package}"},
			Packages:       []string{"jester", "karax"},
		},
	}
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default path yields Default().
func Load(path string) (*Config, error) {
	isDefaultPath := path == "" || path == DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && isDefaultPath:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
//
//nolint:cyclop // A flat list of independent checks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if strings.TrimSpace(cfg.Project) == "" {
		return errProjectRequired
	}

	if cfg.ArtifactBaseURL == "" {
		return errBaseURLRequired
	}

	if _, err := url.ParseRequestURI(cfg.ArtifactBaseURL); err != nil {
		return fmt.Errorf("invalid artifact base URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	defaults := Default()

	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaults.DownloadDir
	}

	if cfg.WebRoot == "" {
		cfg.WebRoot = defaults.WebRoot
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = defaults.WorkDir
	}

	if cfg.CommandLogLevel == "" {
		cfg.CommandLogLevel = defaults.CommandLogLevel
	}

	if !hasSourceTarball(cfg.Artifacts) {
		return errNoSourceTarball
	}

	if cfg.Docs.Strategy == "" {
		cfg.Docs.Strategy = StrategyExtract
	}

	switch cfg.Docs.Strategy {
	case StrategyBuild:
		if strings.TrimSpace(cfg.Docs.Repository) == "" || len(cfg.Docs.Build) == 0 {
			return errBuildIncomplete
		}
	case StrategyExtract:
		if cfg.Docs.ArchiveExt == "" || cfg.Docs.ArchiveDocDir == "" {
			return errExtractIncomplete
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStrategy, cfg.Docs.Strategy)
	}

	if strings.TrimSpace(cfg.Smoke.Binary) == "" || strings.TrimSpace(cfg.Smoke.VersionFlag) == "" {
		return errSmokeIncomplete
	}

	for _, entry := range cfg.Smoke.TestEnv {
		if key, _, ok := strings.Cut(entry, "="); !ok || key == "" {
			return fmt.Errorf("%w: %q", errBadEnv, entry)
		}
	}

	return nil
}

// ReleaseArtifacts converts the configured artifact set into domain values.
func (c *Config) ReleaseArtifacts() []release.Artifact {
	result := make([]release.Artifact, 0, len(c.Artifacts))
	for _, a := range c.Artifacts {
		result = append(result, release.Artifact{Suffix: a.Suffix, Ext: a.Ext})
	}

	return result
}

func hasSourceTarball(artifacts []Artifact) bool {
	for _, a := range artifacts {
		if a.Suffix == release.SourceTarball.Suffix && a.Ext == release.SourceTarball.Ext {
			return true
		}
	}

	return false
}
