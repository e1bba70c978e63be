// Package config loads tdp settings from defaults, an optional YAML file
// and TDP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/oracle"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TDP_DATABASE_URL.
const EnvPrefix = "TDP"

// Oracle modes.
const (
	OraclePrompt  = "prompt"
	OracleReplay  = "replay"
	OracleScript  = "script"
	OracleCommand = "command"
)

// Config is the full tdp configuration.
type Config struct {
	TDP      TDPConfig      `mapstructure:"tdp" yaml:"tdp"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// TDPConfig bounds the diagnosis loop.
type TDPConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxDiagnoses         int           `mapstructure:"max_diagnoses" yaml:"max_diagnoses"`
	MaxCardinality       int           `mapstructure:"max_cardinality" yaml:"max_cardinality"`
	MaxCandidates        int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	ConvergenceThreshold float64       `mapstructure:"convergence_threshold" yaml:"convergence_threshold"`
	Workers              int           `mapstructure:"workers" yaml:"workers"`
	TestTimeout          time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
}

// DataConfig locates the coverage input.
type DataConfig struct {
	// Dir is a GZoltar sfl/txt directory or a JSON spectrum file.
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Catalog string `mapstructure:"catalog" yaml:"catalog"`
}

// OracleConfig selects and tunes the test oracle.
type OracleConfig struct {
	Mode    string  `mapstructure:"mode" yaml:"mode"`
	Script  string  `mapstructure:"script" yaml:"script"`
	Command string  `mapstructure:"command" yaml:"command"`
	WorkDir string  `mapstructure:"workdir" yaml:"workdir"`
	Rate    float64 `mapstructure:"rate" yaml:"rate"`
	Burst   int     `mapstructure:"burst" yaml:"burst"`
}

// LoggerConfig configures zap and the optional rotated log file.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the session store connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the dashboard.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig exposes Prometheus metrics. An empty Addr serves them on
// the dashboard only.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("tdp.max_iterations", tdp.DefaultMaxIterations)
	v.SetDefault("tdp.max_diagnoses", 20)
	v.SetDefault("tdp.max_cardinality", 0)
	v.SetDefault("tdp.max_candidates", 10000)
	v.SetDefault("tdp.convergence_threshold", 0.95)
	v.SetDefault("tdp.workers", 0)
	v.SetDefault("tdp.test_timeout", "0s")

	v.SetDefault("data.dir", ".gzoltar/sfl/txt")
	v.SetDefault("data.catalog", "")

	v.SetDefault("oracle.mode", OraclePrompt)
	v.SetDefault("oracle.script", "")
	v.SetDefault("oracle.command", oracle.DefaultCommand)
	v.SetDefault("oracle.workdir", "")
	v.SetDefault("oracle.rate", 0)
	v.SetDefault("oracle.burst", 1)

	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("database.url", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "")
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when it is non-empty and returns the validated result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates the settings held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", tdp.ErrConfig, err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	t := c.TDP
	if t.MaxIterations <= 0 {
		errs = append(errs, errors.New("tdp.max_iterations must be positive"))
	}
	if t.MaxDiagnoses <= 0 {
		errs = append(errs, errors.New("tdp.max_diagnoses must be positive"))
	}
	if t.MaxCardinality < 0 || t.MaxCandidates < 0 || t.Workers < 0 || t.TestTimeout < 0 {
		errs = append(errs, errors.New("tdp limits must not be negative"))
	}
	if t.ConvergenceThreshold <= 0 || t.ConvergenceThreshold > 1 {
		errs = append(errs, errors.New("tdp.convergence_threshold must be in (0, 1]"))
	}

	switch c.Oracle.Mode {
	case OraclePrompt, OracleReplay:
	case OracleScript:
		if c.Oracle.Script == "" {
			errs = append(errs, errors.New("oracle.script is required in script mode"))
		}
	case OracleCommand:
		if c.Oracle.Command == "" {
			errs = append(errs, errors.New("oracle.command is required in command mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown oracle.mode %q", c.Oracle.Mode))
	}
	if c.Oracle.Rate < 0 {
		errs = append(errs, errors.New("oracle.rate must not be negative"))
	}

	switch c.Logger.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logger.format %q", c.Logger.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be a valid TCP port"))
	}
	return errors.Join(errs...)
}

// RunnerConfig converts the tdp section for tdp.Runner.
func (c *Config) RunnerConfig() tdp.Config {
	return tdp.Config{
		MaxIterations:        c.TDP.MaxIterations,
		MaxDiagnoses:         c.TDP.MaxDiagnoses,
		MaxCardinality:       c.TDP.MaxCardinality,
		MaxCandidates:        c.TDP.MaxCandidates,
		ConvergenceThreshold: c.TDP.ConvergenceThreshold,
		Workers:              c.TDP.Workers,
		TestTimeout:          c.TDP.TestTimeout,
	}
}
