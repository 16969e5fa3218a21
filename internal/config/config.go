// Package config handles run configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/flowtap/internal/core"
)

// Config is the run configuration.
// Maps to the `flowtap:` root key in YAML.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Parser  ParserConfig  `mapstructure:"parser"`
	Nflog   NflogConfig   `mapstructure:"nflog"`
	Log     LogConfig     `mapstructure:"log"`
	Report  ReportConfig  `mapstructure:"report"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ─── Input ───

// InputConfig selects the capture file and an optional frame filter.
type InputConfig struct {
	File    string `mapstructure:"file"`
	Filter  string `mapstructure:"filter"`  // tcpdump expression, empty = no filter
	Snaplen int    `mapstructure:"snaplen"` // used when compiling the filter
}

// ─── Parser ───

// ParserConfig selects the parser used for every new flow.
type ParserConfig struct {
	Name    string                    `mapstructure:"name"`
	Options map[string]map[string]any `mapstructure:"options"` // per parser name
}

// NflogConfig tunes NFLOG decapsulation.
type NflogConfig struct {
	// Strict makes a frame without payload attribute abort the run.
	Strict bool `mapstructure:"strict"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Verbose bool             `mapstructure:"verbose"` // forces debug
	Format  string           `mapstructure:"format"`  // text / json
	Pattern string           `mapstructure:"pattern"` // text format only
	Time    string           `mapstructure:"time"`    // time layout for %time
	File    FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output. Empty path disables it.
type FileOutputConfig struct {
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// EffectiveLevel returns the level after applying Verbose.
func (c LogConfig) EffectiveLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.Level
}

// ─── Outputs ───

// ReportConfig configures the session report written after the run.
type ReportConfig struct {
	Path string `mapstructure:"path"` // "-" = stdout, empty = disabled
}

// MetricsConfig configures the Prometheus textfile written after the run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // empty = disabled
}

// ─── Loading ───

const rootKey = "flowtap"

// configRoot is the top-level wrapper matching the YAML structure `flowtap: ...`.
type configRoot struct {
	Flowtap Config `mapstructure:"flowtap"`
}

// FlagKeys maps command line flags to configuration keys.
var FlagKeys = map[string]string{
	"verbose":      "flowtap.log.verbose",
	"parser":       "flowtap.parser.name",
	"file":         "flowtap.input.file",
	"filter":       "flowtap.input.filter",
	"report":       "flowtap.report.path",
	"metrics-file": "flowtap.metrics.textfile",
	"log-file":     "flowtap.log.file.path",
}

// Load builds the configuration from defaults, an optional config file,
// FLOWTAP_* environment variables and command line flags, in increasing
// order of precedence. path may be empty and flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "flowtap.parser.name" maps to env FLOWTAP_PARSER_NAME.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Flowtap

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values with the "flowtap." prefix of the YAML root.
func setDefaults(v *viper.Viper) {
	// Input defaults
	v.SetDefault(rootKey+".input.file", "")
	v.SetDefault(rootKey+".input.filter", "")
	v.SetDefault(rootKey+".input.snaplen", 262144)

	// Parser defaults
	v.SetDefault(rootKey+".parser.name", "tls")
	v.SetDefault(rootKey+".parser.options", map[string]any{})

	v.SetDefault(rootKey+".nflog.strict", true)

	// Log defaults
	v.SetDefault(rootKey+".log.level", "info")
	v.SetDefault(rootKey+".log.verbose", false)
	v.SetDefault(rootKey+".log.format", "text")
	v.SetDefault(rootKey+".log.pattern", "%time [%level] %msg %field%n")
	v.SetDefault(rootKey+".log.time", "2006-01-02 15:04:05.000")
	v.SetDefault(rootKey+".log.file.path", "")
	v.SetDefault(rootKey+".log.file.rotation.max_size_mb", 100)
	v.SetDefault(rootKey+".log.file.rotation.max_age_days", 30)
	v.SetDefault(rootKey+".log.file.rotation.max_backups", 5)
	v.SetDefault(rootKey+".log.file.rotation.compress", true)

	// Output defaults
	v.SetDefault(rootKey+".report.path", "")
	v.SetDefault(rootKey+".metrics.textfile", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %q (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Parser ──
	cfg.Parser.Name = strings.TrimSpace(cfg.Parser.Name)
	if cfg.Parser.Name == "" {
		return fmt.Errorf("%w: parser name is empty", core.ErrConfigInvalid)
	}
	if cfg.Parser.Options == nil {
		cfg.Parser.Options = make(map[string]map[string]any)
	}

	// ── Input ──
	if cfg.Input.Snaplen <= 0 {
		cfg.Input.Snaplen = 262144
	}

	return nil
}
