package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Manifest  ManifestConfig  `mapstructure:"manifest"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Chain backends.
const (
	BackendRPC    = "rpc"
	BackendMemory = "memory"
)

// ChainConfig holds the deployment target.
type ChainConfig struct {
	// Backend is "rpc" for a JSON-RPC node or "memory" for an in-process ledger.
	Backend string `mapstructure:"backend"`

	RPCURL string `mapstructure:"rpc_url"`

	// PrivateKey is the hex-encoded deployer key.
	// Set via CHAINHOST_CHAIN_PRIVATE_KEY rather than a config file.
	PrivateKey string `mapstructure:"private_key"`

	// Network names the target in stored runs and address lookups.
	Network string `mapstructure:"network"`

	// GasLimit is used for every transaction; 0 estimates per transaction.
	GasLimit uint64 `mapstructure:"gas_limit"`

	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
}

// NetworkName returns the network recorded for runs. In-memory runs are
// recorded as "memory".
func (c ChainConfig) NetworkName(dryRun bool) string {
	if dryRun || c.Backend == BackendMemory {
		return BackendMemory
	}
	return c.Network
}

// ArtifactsConfig holds compiled artifact configuration.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ManifestConfig holds deployment manifest configuration.
type ManifestConfig struct {
	// Path is the manifest file. Empty selects the built-in layout.
	Path string `mapstructure:"path"`
}

// MetricsConfig holds metrics export for one-shot commands.
type MetricsConfig struct {
	// PushgatewayURL receives run metrics after migrate. Empty disables pushing.
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/chainhost.db")
	v.SetDefault("chain.backend", BackendRPC)
	v.SetDefault("chain.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.network", "development")
	v.SetDefault("chain.gas_limit", 0)
	v.SetDefault("chain.receipt_timeout", "2m")
	v.SetDefault("artifacts.dir", "./build/contracts")
	v.SetDefault("manifest.path", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "chainhost_migrate")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("CHAINHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the chain settings needed to deploy. Dry runs need no
// endpoint or key.
func (c *Config) Validate(dryRun bool) error {
	switch c.Chain.Backend {
	case BackendMemory:
		return nil
	case BackendRPC:
	default:
		return fmt.Errorf("chain.backend must be %q or %q, got %q", BackendRPC, BackendMemory, c.Chain.Backend)
	}
	if dryRun {
		return nil
	}
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required for the rpc backend")
	}
	if c.Chain.PrivateKey == "" {
		return errors.New("chain.private_key is required for the rpc backend")
	}
	if c.Chain.Network == "" {
		return errors.New("chain.network is required for the rpc backend")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr; stdout carries command output.
func SetupLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
