// Package config provides configuration loading and management for piperun.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The package provides defaults that run the built-in
// pipeline locally with no configuration file at all.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [ExecutorConfig] selects how stage commands are run
//   - [ArtifactsConfig] selects where artifacts are stored
//   - [PagesConfig] controls publishing of the deploy stage's public directory
//
// Configuration priority (highest to lowest):
//  1. Environment variables (PIPERUN_ prefix; a .env file in the working directory is loaded first)
//  2. Config file specified by PIPERUN_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/piperun/config.yaml
//     - macOS: ~/Library/Application Support/piperun/config.yaml
//     - Windows: %APPDATA%\piperun\config.yaml
//  4. ./.piperun/config.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Executor kinds.
const (
	ExecutorShell  = "shell"
	ExecutorDocker = "docker"
)

// Artifact backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader] and used throughout
// the application. Use [DefaultConfig] to get sensible defaults.
type Config struct {
	// PipelineFile is the pipeline definition, relative to Workdir.
	// Default: ".piperun.yml". When the file does not exist the built-in
	// pipeline is used.
	PipelineFile string `mapstructure:"pipeline_file"`

	// Ref is the branch or tag the pipeline runs for. Empty resolves it from
	// CI_COMMIT_REF_NAME or git.
	Ref string `mapstructure:"ref"`

	// Workdir is the workspace stages run in. Default: ".".
	Workdir string `mapstructure:"workdir"`

	// StateDir holds run records, logs, local artifacts and the published
	// site, relative to Workdir. Default: ".piperun".
	StateDir string `mapstructure:"state_dir"`

	Executor  ExecutorConfig  `mapstructure:"executor"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Pages     PagesConfig     `mapstructure:"pages"`
	Output    OutputConfig    `mapstructure:"output"`
}

// ExecutorConfig contains settings for running stage commands.
type ExecutorConfig struct {
	// Kind is "shell" (default) or "docker".
	Kind string `mapstructure:"kind"`

	// DockerPath is the docker binary. Default: "docker".
	// Can be overridden with PIPERUN_DOCKER_PATH environment variable.
	DockerPath string `mapstructure:"docker_path"`

	// Shell runs each command line. Default: "sh".
	Shell string `mapstructure:"shell"`

	// Timeout bounds each command of stages that declare no timeout.
	// Default: 1h
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArtifactsConfig selects the artifact store.
type ArtifactsConfig struct {
	// Backend is "fs" (default) or "s3".
	Backend string `mapstructure:"backend"`

	// Dir is the fs backend root. Empty means <state_dir>/artifacts.
	Dir string `mapstructure:"dir"`

	// CacheSize is the number of artifact manifests kept in memory.
	// Default: 128
	CacheSize int `mapstructure:"cache_size"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config contains S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// PagesConfig controls static site publishing.
type PagesConfig struct {
	// Enabled turns publishing on. Default: true
	Enabled bool `mapstructure:"enabled"`

	// Stage is the stage whose success publishes the site. Default: "deploy"
	Stage string `mapstructure:"stage"`

	// Dir is the directory, relative to Workdir, that is published.
	// Default: "public"
	Dir string `mapstructure:"dir"`

	// SiteDir is where the site is published. Empty means <state_dir>/pages.
	SiteDir string `mapstructure:"site_dir"`

	// Addr is the listen address of `piperun pages serve`. Default: ":8080"
	Addr string `mapstructure:"addr"`
}

// OutputConfig contains terminal output formatting configuration.
type OutputConfig struct {
	// Color enables styled output. Default: true
	Color bool `mapstructure:"color"`

	// TruncateLength is the maximum length of failure messages in the run
	// summary. Longer messages are truncated with "..." suffix.
	// Default: 120
	TruncateLength int `mapstructure:"truncate_length"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PipelineFile: ".piperun.yml",
		Workdir:      ".",
		StateDir:     ".piperun",
		Executor: ExecutorConfig{
			Kind:       ExecutorShell,
			DockerPath: "docker",
			Shell:      "sh",
			Timeout:    time.Hour,
		},
		Artifacts: ArtifactsConfig{
			Backend:   BackendFS,
			CacheSize: 128,
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "piperun-artifacts",
				UseSSL: true,
			},
		},
		Pages: PagesConfig{
			Enabled: true,
			Stage:   "deploy",
			Dir:     "public",
			Addr:    ":8080",
		},
		Output: OutputConfig{
			Color:          true,
			TruncateLength: 120,
		},
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Executor.Kind {
	case ExecutorShell, ExecutorDocker:
	default:
		return fmt.Errorf("executor.kind must be %q or %q, got %q", ExecutorShell, ExecutorDocker, c.Executor.Kind)
	}
	if c.Executor.Timeout < 0 {
		return fmt.Errorf("executor.timeout must not be negative")
	}

	switch c.Artifacts.Backend {
	case BackendFS:
	case BackendS3:
		if c.Artifacts.S3.Endpoint == "" {
			return fmt.Errorf("artifacts.s3.endpoint is required for the s3 backend")
		}
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be %q or %q, got %q", BackendFS, BackendS3, c.Artifacts.Backend)
	}
	return nil
}

// PipelinePath returns the pipeline file resolved against Workdir.
func (c *Config) PipelinePath() string {
	return c.resolve(c.PipelineFile)
}

// StatePath returns the state directory resolved against Workdir.
func (c *Config) StatePath() string {
	return c.resolve(c.StateDir)
}

// ArtifactsPath returns the fs artifact store root.
func (c *Config) ArtifactsPath() string {
	if c.Artifacts.Dir != "" {
		return c.resolve(c.Artifacts.Dir)
	}
	return filepath.Join(c.StatePath(), "artifacts")
}

// SitePath returns the directory the pages site is published to.
func (c *Config) SitePath() string {
	if c.Pages.SiteDir != "" {
		return c.resolve(c.Pages.SiteDir)
	}
	return filepath.Join(c.StatePath(), "pages")
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workdir, p)
}
