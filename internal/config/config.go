package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Issue tracker configuration
	Tracker TrackerConfig `yaml:"tracker" mapstructure:"tracker"`

	// Git query cache configuration
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Build settings
	Build BuildConfig `yaml:"build" mapstructure:"build"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Projects to mine
	Projects []ProjectConfig `yaml:"projects" mapstructure:"projects"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "sqlite", "postgres", "none"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type TrackerConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	PageSize  int     `yaml:"page_size" mapstructure:"page_size"`
}

type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Directory string `yaml:"directory" mapstructure:"directory"`
}

type BuildConfig struct {
	WorkDir     string `yaml:"work_dir" mapstructure:"work_dir"`     // Where repositories are cloned
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"` // Where <project>.csv files go
	Parallelism int    `yaml:"parallelism" mapstructure:"parallelism"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // "text", "json"
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// ProjectConfig describes one repository and its tracker project.
type ProjectConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
	// TagTemplate maps a version name to its git tag, e.g. "release-{version}".
	TagTemplate  string  `yaml:"tag_template" mapstructure:"tag_template"`
	MovingWindow float64 `yaml:"moving_window" mapstructure:"moving_window"`
	Extension    string  `yaml:"extension" mapstructure:"extension"`
	MainFraction float64 `yaml:"main_fraction" mapstructure:"main_fraction"`
	TrackerKey   string  `yaml:"tracker_key" mapstructure:"tracker_key"`
}

// VersionPlaceholder is replaced by the version name in TagTemplate.
const VersionPlaceholder = "{version}"

const (
	defaultMovingWindow = 0.01
	defaultExtension    = ".java"
	defaultMainFraction = 0.5
)

// Tag returns the git tag of version.
func (p ProjectConfig) Tag(version string) string {
	if p.TagTemplate == "" {
		return version
	}
	return strings.ReplaceAll(p.TagTemplate, VersionPlaceholder, version)
}

// Key returns the tracker project key.
func (p ProjectConfig) Key() string {
	if p.TrackerKey != "" {
		return p.TrackerKey
	}
	return strings.ToUpper(p.Name)
}

// DSN returns the connection string of the configured store, empty when
// storage is disabled.
func (s StorageConfig) DSN() string {
	switch s.Type {
	case "postgres":
		return s.PostgresDSN
	case "none":
		return ""
	default:
		return s.LocalPath
	}
}

// Project finds a project by name.
func (c *Config) Project(name string) (ProjectConfig, bool) {
	for _, p := range c.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectConfig{}, false
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".defectset")
	return &Config{
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(base, "defectset.db"),
		},
		Tracker: TrackerConfig{
			BaseURL:   "https://issues.apache.org/jira",
			RateLimit: 5, // 5 requests per second
			PageSize:  1000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Directory: filepath.Join(base, "cache"),
		},
		Build: BuildConfig{
			WorkDir:     filepath.Join(base, "repos"),
			OutputDir:   "output",
			Parallelism: 2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Projects: []ProjectConfig{
			{
				Name:         "syncope",
				URL:          "https://github.com/apache/syncope.git",
				TagTemplate:  "syncope-{version}",
				MovingWindow: defaultMovingWindow,
				Extension:    defaultExtension,
				MainFraction: defaultMainFraction,
			},
			{
				Name:         "bookkeeper",
				URL:          "https://github.com/apache/bookkeeper.git",
				TagTemplate:  "release-{version}",
				MovingWindow: defaultMovingWindow,
				Extension:    defaultExtension,
				MainFraction: defaultMainFraction,
			},
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	setDefaults(v, cfg)

	// Load from environment variables
	v.SetEnvPrefix("DEFECTSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".defectset")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".defectset"))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Configured projects replace the defaults instead of merging into them
	if v.IsSet("projects") {
		cfg.Projects = nil
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProjectDefaults(cfg)

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)

	v.SetDefault("tracker.base_url", cfg.Tracker.BaseURL)
	v.SetDefault("tracker.rate_limit", cfg.Tracker.RateLimit)
	v.SetDefault("tracker.page_size", cfg.Tracker.PageSize)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.directory", cfg.Cache.Directory)

	v.SetDefault("build.work_dir", cfg.Build.WorkDir)
	v.SetDefault("build.output_dir", cfg.Build.OutputDir)
	v.SetDefault("build.parallelism", cfg.Build.Parallelism)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
}

// applyProjectDefaults fills the optional fields of every project record
func applyProjectDefaults(cfg *Config) {
	for i := range cfg.Projects {
		p := &cfg.Projects[i]
		if p.TagTemplate == "" {
			p.TagTemplate = VersionPlaceholder
		}
		if p.MovingWindow == 0 {
			p.MovingWindow = defaultMovingWindow
		}
		if p.Extension == "" {
			p.Extension = defaultExtension
		}
		if p.MainFraction == 0 {
			p.MainFraction = defaultMainFraction
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("storage", c.Storage)
	v.Set("tracker", c.Tracker)
	v.Set("cache", c.Cache)
	v.Set("build", c.Build)
	v.Set("logging", c.Logging)
	v.Set("projects", c.Projects)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
