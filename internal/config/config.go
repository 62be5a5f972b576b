// Package config loads fglscope settings from .fglscope.yaml, FGLSCOPE_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the project directory.
const FileName = ".fglscope"

// Config is the resolved configuration.
type Config struct {
	DB                  string        `mapstructure:"db"`
	SearchPaths         []string      `mapstructure:"search_paths"`
	ResolverScript      string        `mapstructure:"resolver_script"`
	Workers             int           `mapstructure:"workers"`
	WaitTimeout         time.Duration `mapstructure:"wait_timeout"`
	StuckPendingWarning time.Duration `mapstructure:"stuck_pending_warning"`
	LanguageVersion     string        `mapstructure:"language_version"`
	LogLevel            string        `mapstructure:"log_level"`
	SQL                 SQLConfig     `mapstructure:"sql"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// SQLConfig configures embedded SQL extraction.
type SQLConfig struct {
	Placeholder string `mapstructure:"placeholder"`
	CacheSize   int    `mapstructure:"cache_size"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DB:                  filepath.Join(".fglscope", "index.db"),
		Workers:             goruntime.NumCPU(),
		WaitTimeout:         5 * time.Second,
		StuckPendingWarning: 10 * time.Second,
		LanguageVersion:     "3.20",
		LogLevel:            "info",
		SQL: SQLConfig{
			Placeholder: "FGL_SQL_PARAM",
			CacheSize:   1024,
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":               "db",
	"search-path":      "search_paths",
	"resolver-script":  "resolver_script",
	"workers":          "workers",
	"language-version": "language_version",
	"log-level":        "log_level",
}

// InitFlags registers the persistent flags Load knows how to bind.
func InitFlags(cmd *cobra.Command) {
	d := Default()
	f := cmd.PersistentFlags()
	f.String("config", "", "path to a config file (default <dir>/.fglscope.yaml)")
	f.String("db", d.DB, "path to the SQLite index")
	f.StringSlice("search-path", nil, "additional import search directory (repeatable)")
	f.String("resolver-script", "", "Risor script consulted before the search-path resolver")
	f.Int("workers", d.Workers, "parallel analysis workers")
	f.String("language-version", d.LanguageVersion, "default 4GL language version")
	f.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
}

// Load resolves configuration for a project rooted at dir. cmd may be nil;
// when set, its changed flags override file and environment values.
// Relative paths in the result are made absolute against dir.
func Load(cmd *cobra.Command, dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FGLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := ""
	if cmd != nil {
		if f := lookupFlag(cmd, "config"); f != nil {
			explicit = f.Value.String()
		}
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if cmd != nil {
		for name, key := range flagKeys {
			if f := lookupFlag(cmd, name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.absolutize(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupFlag finds name among the command's local, own persistent and
// inherited flags.
func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	if f := cmd.PersistentFlags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("db", d.DB)
	v.SetDefault("search_paths", []string{})
	v.SetDefault("resolver_script", "")
	v.SetDefault("workers", d.Workers)
	v.SetDefault("wait_timeout", d.WaitTimeout)
	v.SetDefault("stuck_pending_warning", d.StuckPendingWarning)
	v.SetDefault("language_version", d.LanguageVersion)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("sql.placeholder", d.SQL.Placeholder)
	v.SetDefault("sql.cache_size", d.SQL.CacheSize)
}

func (c *Config) absolutize(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.DB = abs(c.DB)
	c.ResolverScript = abs(c.ResolverScript)
	for i, p := range c.SearchPaths {
		c.SearchPaths[i] = abs(p)
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.SQL.Placeholder == "" || strings.Contains(c.SQL.Placeholder, "?") {
		return fmt.Errorf("config: sql.placeholder must be non-empty and must not contain '?'")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
