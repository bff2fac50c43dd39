// Package config loads framesync settings from a config file, FRAMESYNC_
// environment variables and built-in defaults, in increasing order of
// precedence: defaults < file < environment < flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

// EnvPrefix prefixes every environment override, e.g. FRAMESYNC_REPO_BRANCH
const EnvPrefix = "FRAMESYNC"

// FileName is the config file searched for when none is given
const FileName = "framesync"

// Config is the effective configuration
type Config struct {
	Repo   RepoConfig   `mapstructure:"repo" yaml:"repo"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Daemon DaemonConfig `mapstructure:"daemon" yaml:"daemon"`
	Serve  ServeConfig  `mapstructure:"serve" yaml:"serve"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, "" if none
	File string `mapstructure:"-" yaml:"-"`
}

// RepoConfig locates the working set
type RepoConfig struct {
	Path         string `mapstructure:"path" yaml:"path"`
	Remote       string `mapstructure:"remote" yaml:"remote"`
	Branch       string `mapstructure:"branch" yaml:"branch"`
	MainBranch   string `mapstructure:"main_branch" yaml:"main_branch"`
	ContentDir   string `mapstructure:"content_dir" yaml:"content_dir"`
	ThumbnailDir string `mapstructure:"thumbnail_dir" yaml:"thumbnail_dir"`
	MetadataFile string `mapstructure:"metadata_file" yaml:"metadata_file"`
}

// SyncConfig tunes the sync pipeline
type SyncConfig struct {
	StaleLockAfter   time.Duration `mapstructure:"stale_lock_after" yaml:"stale_lock_after"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	MergeMode        string        `mapstructure:"merge_mode" yaml:"merge_mode"`
	ConflictStrategy string        `mapstructure:"conflict_strategy" yaml:"conflict_strategy"`
	LogLimit         int           `mapstructure:"log_limit" yaml:"log_limit"`
	MinGitVersion    string        `mapstructure:"min_git_version" yaml:"min_git_version"`
}

// DaemonConfig tunes the background poller and watcher
type DaemonConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	AutoSync     bool          `mapstructure:"auto_sync" yaml:"auto_sync"`
}

// ServeConfig configures the dashboard server
type ServeConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LogConfig configures diagnostic logging
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Merge modes and strategies accepted by Validate
var (
	mergeModes = []string{"merge", "ff-only"}
	strategies = []string{"remote-wins"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("repo.path", ".")
	v.SetDefault("repo.remote", vcs.DefaultRemote)
	v.SetDefault("repo.branch", "")
	v.SetDefault("repo.main_branch", "main")
	v.SetDefault("repo.content_dir", library.DefaultContentDir)
	v.SetDefault("repo.thumbnail_dir", library.DefaultThumbnailDir)
	v.SetDefault("repo.metadata_file", library.DefaultMetadataFile)

	v.SetDefault("sync.stale_lock_after", 2*time.Minute)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_base_delay", 2*time.Second)
	v.SetDefault("sync.command_timeout", 2*time.Minute)
	v.SetDefault("sync.merge_mode", "merge")
	v.SetDefault("sync.conflict_strategy", "remote-wins")
	v.SetDefault("sync.log_limit", 200)
	v.SetDefault("sync.min_git_version", "2.30.0")

	v.SetDefault("daemon.poll_interval", 5*time.Minute)
	v.SetDefault("daemon.debounce", 30*time.Second)
	v.SetDefault("daemon.auto_sync", false)

	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads the configuration. An explicit file must exist; without one
// ./framesync.* and $XDG_CONFIG_HOME/framesync/framesync.* are tried and
// may be absent. Flags in flags that were set on the command line
// override everything else; see flagKeys for the names recognised.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "framesync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flags to config keys
var flagKeys = map[string]string{
	"repo":      "repo.path",
	"remote":    "repo.remote",
	"branch":    "repo.branch",
	"port":      "serve.port",
	"host":      "serve.host",
	"log-level": "log.level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return errors.New("repo.path is required")
	}
	if c.Repo.Remote == "" {
		return errors.New("repo.remote is required")
	}
	if c.Repo.ContentDir == "" || c.Repo.MetadataFile == "" {
		return errors.New("repo.content_dir and repo.metadata_file are required")
	}
	if c.Repo.ContentDir == c.Repo.ThumbnailDir {
		return fmt.Errorf("repo.thumbnail_dir must differ from repo.content_dir (%q)", c.Repo.ContentDir)
	}

	if err := oneOf("sync.merge_mode", c.Sync.MergeMode, mergeModes); err != nil {
		return err
	}
	if err := oneOf("sync.conflict_strategy", c.Sync.ConflictStrategy, strategies); err != nil {
		return err
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be at least 1, got %d", c.Sync.RetryAttempts)
	}
	if c.Sync.LogLimit < 1 {
		return fmt.Errorf("sync.log_limit must be at least 1, got %d", c.Sync.LogLimit)
	}
	for key, d := range map[string]time.Duration{
		"sync.stale_lock_after": c.Sync.StaleLockAfter,
		"sync.retry_base_delay": c.Sync.RetryBaseDelay,
		"sync.command_timeout":  c.Sync.CommandTimeout,
		"daemon.poll_interval":  c.Daemon.PollInterval,
		"daemon.debounce":       c.Daemon.Debounce,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port out of range: %d", c.Serve.Port)
	}

	if err := oneOf("log.level", c.Log.Level, logLevels); err != nil {
		return err
	}
	return oneOf("log.format", c.Log.Format, logFormats)
}

func oneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

// RepoRoot returns the absolute working set path
func (c *Config) RepoRoot() (string, error) {
	return filepath.Abs(c.Repo.Path)
}

// Layout returns the working set layout rooted at root
func (c *Config) Layout(root string) library.Layout {
	return library.Layout{
		Root:         root,
		ContentDir:   c.Repo.ContentDir,
		ThumbnailDir: c.Repo.ThumbnailDir,
		MetadataFile: c.Repo.MetadataFile,
	}
}

// VCSOptions returns the driver options implied by the sync settings
func (c *Config) VCSOptions() vcs.Options {
	return vcs.Options{
		Timeout: c.Sync.CommandTimeout,
		Retry: vcs.RetryPolicy{
			Attempts:  c.Sync.RetryAttempts,
			BaseDelay: c.Sync.RetryBaseDelay,
		},
	}
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
