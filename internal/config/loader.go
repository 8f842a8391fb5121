package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName        = "piperun"
	configFileName = "config.yaml"
	envPrefix      = "PIPERUN"
)

// envKeyReplacer maps nested keys to variable names:
// artifacts.s3.bucket becomes PIPERUN_ARTIFACTS_S3_BUCKET.
var envKeyReplacer = strings.NewReplacer(".", "_")

// envAliases are shorter or conventional variable names for settings often
// set from CI. The first variable that is set wins.
var envAliases = map[string][]string{
	"executor.kind":           {"PIPERUN_EXECUTOR"},
	"executor.docker_path":    {"PIPERUN_DOCKER_PATH"},
	"artifacts.s3.endpoint":   {"PIPERUN_S3_ENDPOINT", "MINIO_ENDPOINT"},
	"artifacts.s3.bucket":     {"PIPERUN_S3_BUCKET", "MINIO_BUCKET"},
	"artifacts.s3.access_key": {"PIPERUN_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID"},
	"artifacts.s3.secret_key": {"PIPERUN_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"},
	"artifacts.s3.region":     {"PIPERUN_S3_REGION", "AWS_REGION"},
}

// Loader handles Viper-based configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment bindings
// registered.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	for key, names := range envAliases {
		v.BindEnv(append([]string{key}, names...)...) //nolint:errcheck
	}

	return &Loader{v: v}
}

// Load reads configuration following the package priority order.
//
// A .env file in the working directory is loaded into the environment
// first; variables already set are not overwritten. Missing config files
// are not an error.
func (l *Loader) Load() (*Config, error) {
	_ = godotenv.Load()

	if path := os.Getenv("PIPERUN_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile reads configuration from path. The format is taken from the
// file extension; environment overrides still apply.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ConfigDir returns the platform-standard piperun configuration directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigPath returns the user-level config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// EnsureConfigDir creates the user configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func searchPaths() []string {
	var paths []string
	if p, err := DefaultConfigPath(); err == nil {
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(".piperun", configFileName))
	return paths
}

// setDefaults registers every key of cfg so AutomaticEnv can override keys
// that no config file mentions.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pipeline_file", cfg.PipelineFile)
	v.SetDefault("ref", cfg.Ref)
	v.SetDefault("workdir", cfg.Workdir)
	v.SetDefault("state_dir", cfg.StateDir)

	v.SetDefault("executor.kind", cfg.Executor.Kind)
	v.SetDefault("executor.docker_path", cfg.Executor.DockerPath)
	v.SetDefault("executor.shell", cfg.Executor.Shell)
	v.SetDefault("executor.timeout", cfg.Executor.Timeout)

	v.SetDefault("artifacts.backend", cfg.Artifacts.Backend)
	v.SetDefault("artifacts.dir", cfg.Artifacts.Dir)
	v.SetDefault("artifacts.cache_size", cfg.Artifacts.CacheSize)
	v.SetDefault("artifacts.s3.endpoint", cfg.Artifacts.S3.Endpoint)
	v.SetDefault("artifacts.s3.region", cfg.Artifacts.S3.Region)
	v.SetDefault("artifacts.s3.access_key", cfg.Artifacts.S3.AccessKey)
	v.SetDefault("artifacts.s3.secret_key", cfg.Artifacts.S3.SecretKey)
	v.SetDefault("artifacts.s3.bucket", cfg.Artifacts.S3.Bucket)
	v.SetDefault("artifacts.s3.prefix", cfg.Artifacts.S3.Prefix)
	v.SetDefault("artifacts.s3.use_ssl", cfg.Artifacts.S3.UseSSL)

	v.SetDefault("pages.enabled", cfg.Pages.Enabled)
	v.SetDefault("pages.stage", cfg.Pages.Stage)
	v.SetDefault("pages.dir", cfg.Pages.Dir)
	v.SetDefault("pages.site_dir", cfg.Pages.SiteDir)
	v.SetDefault("pages.addr", cfg.Pages.Addr)

	v.SetDefault("output.color", cfg.Output.Color)
	v.SetDefault("output.truncate_length", cfg.Output.TruncateLength)
}
