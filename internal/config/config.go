// Package config loads modelship settings from defaults, an optional YAML
// file, MODELSHIP_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment variables, e.g. MODELSHIP_LOG_LEVEL.
const EnvPrefix = "MODELSHIP"

// Config is the resolved configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Static  StaticConfig  `mapstructure:"static"`
}

// LogConfig controls diagnostics on stderr.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RuntimeConfig selects the session backend. An empty LibraryPath uses the
// built-in parser.
type RuntimeConfig struct {
	LibraryPath string `mapstructure:"library_path"`
}

// StaticConfig holds defaults for the static command. Empty theme and
// variant select the generator defaults.
type StaticConfig struct {
	Theme        string `mapstructure:"theme"`
	Variant      string `mapstructure:"variant"`
	TemplatesDir string `mapstructure:"templates_dir"`
	VendorDir    string `mapstructure:"vendor_dir"`
	ThemeDir     string `mapstructure:"theme_dir"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "warn"},
	}
}

// Binding maps a configuration key to a command-line flag.
type Binding struct {
	Key  string
	Flag *pflag.Flag
}

// Load resolves the configuration. cfgFile names an explicit config file,
// which must exist; otherwise $HOME/.modelship/config.yaml and
// ./config.yaml are tried. Flags in bindings override every other source
// when they were set on the command line.
func Load(cfgFile string, bindings ...Binding) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".modelship"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("config: bind flag %s: %w", b.Flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that have a fixed set of choices.
func (c *Config) Validate() error {
	validLevels := []string{"trace", "debug", "info", "warn", "warning", "error", "fatal", "panic"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of: %s", strings.Join(validLevels, ", "))
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Runtime.LibraryPath = expandPath(c.Runtime.LibraryPath)
	c.Static.TemplatesDir = expandPath(c.Static.TemplatesDir)
	c.Static.VendorDir = expandPath(c.Static.VendorDir)
	c.Static.ThemeDir = expandPath(c.Static.ThemeDir)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)

	v.SetDefault("runtime.library_path", cfg.Runtime.LibraryPath)

	v.SetDefault("static.theme", cfg.Static.Theme)
	v.SetDefault("static.variant", cfg.Static.Variant)
	v.SetDefault("static.templates_dir", cfg.Static.TemplatesDir)
	v.SetDefault("static.vendor_dir", cfg.Static.VendorDir)
	v.SetDefault("static.theme_dir", cfg.Static.ThemeDir)
}
