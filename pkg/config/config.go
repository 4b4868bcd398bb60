package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. PEAKFIT_WORKERS
// or PEAKFIT_SERVER_PORT.
const EnvPrefix = "PEAKFIT"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration settings for the peak fitter
type Config struct {
	File        string       `mapstructure:"file"`
	Models      []string     `mapstructure:"models"`
	Workers     int          `mapstructure:"workers"`
	Output      string       `mapstructure:"output"`
	Quiet       bool         `mapstructure:"quiet"`
	LogLevel    string       `mapstructure:"log_level"`
	Development bool         `mapstructure:"development"`
	Server      ServerConfig `mapstructure:"server"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	WorkerCount     int           `mapstructure:"worker_count"`
	WebhookURL      string        `mapstructure:"webhook_url"`
	EnableMetrics   bool          `mapstructure:"enable_metrics"`
	EnableProfiling bool          `mapstructure:"enable_profiling"`
	ProfilingPort   string        `mapstructure:"profiling_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Models:   []string{"gaussian", "asymmetric-gaussian", "double-gaussian"},
		Output:   "text",
		LogLevel: "info",
		Server:   *DefaultServerConfig(),
	}
}

// DefaultServerConfig returns server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WorkerCount:     5,
		WebhookURL:      "",
		EnableMetrics:   true,
		EnableProfiling: false,
		ProfilingPort:   "6060",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"file":           "file",
	"models":         "models",
	"workers":        "workers",
	"output":         "output",
	"quiet":          "quiet",
	"log-level":      "log_level",
	"dev":            "development",
	"port":           "server.port",
	"worker-count":   "server.worker_count",
	"webhook-url":    "server.webhook_url",
	"metrics":        "server.enable_metrics",
	"profile":        "server.enable_profiling",
	"profiling-port": "server.profiling_port",
}

// RegisterFitFlags adds the flags shared by every command.
func RegisterFitFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.StringP("file", "f", d.File, "Profile data file (x y [w] per line)")
	fs.StringSliceP("models", "m", d.Models, "Candidate peak models, in order of preference")
	fs.Int("workers", d.Workers, "Concurrent fits (0 = GOMAXPROCS)")
	fs.StringP("output", "o", d.Output, "Output format: text, json or yaml")
	fs.BoolP("quiet", "q", d.Quiet, "Quiet mode")
	fs.String("log-level", d.LogLevel, "Log level: error, warn, info, debug or trace")
	fs.Bool("dev", d.Development, "Human readable development logging")
}

// RegisterServerFlags adds the HTTP service flags.
func RegisterServerFlags(fs *pflag.FlagSet) {
	d := DefaultServerConfig()
	fs.String("port", d.Port, "HTTP listen port")
	fs.Int("worker-count", d.WorkerCount, "Batch worker pool size")
	fs.String("webhook-url", d.WebhookURL, "Batch results are posted here when set")
	fs.Bool("metrics", d.EnableMetrics, "Serve Prometheus metrics on /metrics")
	fs.Bool("profile", d.EnableProfiling, "Enable pprof profiling")
	fs.String("profiling-port", d.ProfilingPort, "pprof listen port")
}

// Load merges defaults, the optional YAML file at path, PEAKFIT_* environment
// variables and explicitly set flags, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables are seen by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("file", d.File)
	v.SetDefault("models", d.Models)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("output", d.Output)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("development", d.Development)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.worker_count", d.Server.WorkerCount)
	v.SetDefault("server.webhook_url", d.Server.WebhookURL)
	v.SetDefault("server.enable_metrics", d.Server.EnableMetrics)
	v.SetDefault("server.enable_profiling", d.Server.EnableProfiling)
	v.SetDefault("server.profiling_port", d.Server.ProfilingPort)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: no candidate models", ErrInvalidConfig)
	}
	if _, err := gopeakcore.ModelsByName(c.Models); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, c.Output)
	}
	if err := logging.CheckLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c.Server.Validate()
}

func (s *ServerConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("%w: empty server port", ErrInvalidConfig)
	}
	if s.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if s.EnableProfiling && s.ProfilingPort == s.Port {
		return fmt.Errorf("%w: profiling port collides with server port", ErrInvalidConfig)
	}
	return nil
}

// Candidates resolves the configured model names.
func (c *Config) Candidates() ([]gopeakcore.PeakModel, error) {
	return gopeakcore.ModelsByName(c.Models)
}
