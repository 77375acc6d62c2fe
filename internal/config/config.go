// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/batch-worker/internal/worker"
)

// EnvPrefix is prepended to every environment variable, e.g. BATCH_WORKER_SOCKET.
const EnvPrefix = "BATCH_WORKER"

var ErrInvalid = errors.New("config: invalid")

// Config holds all configuration for the worker
type Config struct {
	// Front-end connection
	Socket       string        `mapstructure:"socket"`
	Transport    string        `mapstructure:"transport"`
	UseMsgpack   bool          `mapstructure:"use_msgpack"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxFrameSize int           `mapstructure:"max_frame_bytes"`

	// Reconnect backoff
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffJitter     bool          `mapstructure:"backoff_jitter"`

	// Side servers
	MetricsPort int `mapstructure:"metrics_port"`
	GRPCPort    int `mapstructure:"grpc_port"`

	// Optional result cache; empty disables it
	Redis    string        `mapstructure:"redis"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Model is "spam" for the built-in demo or a path to the sentence ONNX model
	Model       string `mapstructure:"model"`
	ONNXLibrary string `mapstructure:"onnx_library"`
	ONNXInput   string `mapstructure:"onnx_input"`
	ONNXOutput  string `mapstructure:"onnx_output"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket", "batching.socket")
	v.SetDefault("transport", "unix")
	v.SetDefault("use_msgpack", false)
	v.SetDefault("dial_timeout", 5*time.Second)
	v.SetDefault("read_timeout", time.Duration(0))
	v.SetDefault("write_timeout", time.Duration(0))
	v.SetDefault("max_frame_bytes", 64<<20)
	v.SetDefault("backoff_initial", 250*time.Millisecond)
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("backoff_max", 5*time.Second)
	v.SetDefault("backoff_jitter", true)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("model", "spam")
	v.SetDefault("onnx_library", "")
	v.SetDefault("onnx_input", "input")
	v.SetDefault("onnx_output", "output")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Standard OTEL variable also turns tracing on
	_ = v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	return v
}

// New returns a viper instance with defaults and environment bindings but no
// config file. cmd/worker binds its flags onto it before calling Unmarshal.
func New() *viper.Viper {
	return newViper()
}

// Load loads configuration from environment variables and an optional config file.
// Priority (highest to lowest): env vars > config file > defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/batch-worker/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return Unmarshal(v)
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}
	return Unmarshal(v)
}

// Unmarshal decodes v into a Config.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Socket) == "" {
		return fmt.Errorf("%w: socket address is required", ErrInvalid)
	}
	if _, err := worker.ParseTransport(c.Transport); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max_frame_bytes must be positive, got %d", ErrInvalid, c.MaxFrameSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}
	if c.BackoffInitial <= 0 {
		return fmt.Errorf("%w: backoff_initial must be positive", ErrInvalid)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1, got %v", ErrInvalid, c.BackoffMultiplier)
	}
	if c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("%w: backoff_max must be >= backoff_initial", ErrInvalid)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("%w: invalid metrics port: %d", ErrInvalid, c.MetricsPort)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("%w: invalid grpc port: %d", ErrInvalid, c.GRPCPort)
	}
	if c.GRPCPort != 0 && c.GRPCPort == c.MetricsPort {
		return fmt.Errorf("%w: grpc_port and metrics_port must be different", ErrInvalid)
	}
	if c.Redis != "" && c.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl must not be negative", ErrInvalid)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalid)
	}
	return nil
}

// WorkerConfig maps the connection settings onto worker.Config. Logger and
// OnStateChange are left for the caller.
func (c *Config) WorkerConfig() worker.Config {
	wc := worker.DefaultConfig()
	wc.DialTimeout = c.DialTimeout
	wc.ReadTimeout = c.ReadTimeout
	wc.WriteTimeout = c.WriteTimeout
	wc.Limits.MaxFrameBytes = c.MaxFrameSize
	wc.Backoff = worker.BackoffConfig{
		InitialDelay: c.BackoffInitial,
		Multiplier:   c.BackoffMultiplier,
		MaxDelay:     c.BackoffMax,
		Jitter:       c.BackoffJitter,
	}
	return wc
}
