// Package config loads the ordermesh configuration: a YAML file with
// ${VAR:-default} style environment expansion, plus .env support for
// local development.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration, constructed once at startup
// and passed into every component that needs it.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Model  ModelConfig  `yaml:"model"`
	Store  StoreConfig  `yaml:"store"`
	Ledger LedgerConfig `yaml:"ledger"`
	Peers  PeersConfig  `yaml:"peers"`
}

// ServerConfig configures the A2A listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ModelConfig configures the completion provider. Deployment and
// APIVersion switch Azure conventions on.
type ModelConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// Configured reports whether a model provider is set up at all; agents
// that can run on deterministic rules fall back when it is not.
func (m ModelConfig) Configured() bool {
	return m.BaseURL != "" && m.APIKey != ""
}

// StoreConfig selects task persistence.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
}

// LedgerConfig locates the approved-orders CSV.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// PeersConfig holds the pipeline peer URLs the run command resolves.
type PeersConfig struct {
	Intake     string `yaml:"intake"`
	Processing string `yaml:"processing"`
	Data       string `yaml:"data"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Driver: "memory", Path: "ordermesh.db"},
		Ledger: LedgerConfig{Path: "orders.csv"},
	}
}

// Load reads path, expands environment references, and decodes into
// Config on top of the defaults. An empty path returns the defaults with
// env expansion applied to nothing.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Decode to generic data first so env expansion can retype values.
	var data any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expanded, err := yaml.Marshal(ExpandEnvVarsInData(data))
	if err != nil {
		return nil, fmt.Errorf("re-encoding config: %w", err)
	}
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("config: sqlite store requires a path")
	}
	return nil
}
