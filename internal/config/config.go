// Package config loads the escrow layer configuration from a YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Chain    ChainConfig    `yaml:"chain"`
	Escrow   EscrowConfig   `yaml:"escrow"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig controls the optional PostgreSQL store. An empty DSN
// selects the in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ChainConfig controls the optional chain-backed transfer gateway. An
// empty RPC URL selects the no-op gateway.
type ChainConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	NetworkID uint32 `yaml:"network_id"`
}

// EscrowConfig carries platform identities and the API auth secret.
// InsecureDevAuth opts in to header-asserted caller identity for local
// runs; it is ignored when an auth secret is set.
type EscrowConfig struct {
	OwnerAddress    string `yaml:"owner_address"`
	VaultAddress    string `yaml:"vault_address"`
	AuthSecret      string `yaml:"auth_secret"`
	InsecureDevAuth bool   `yaml:"insecure_dev_auth"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
	}
}

// Load reads the configuration from path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults plus environment only.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ESCROW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ESCROW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ESCROW_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ESCROW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ESCROW_CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("ESCROW_OWNER_ADDRESS"); v != "" {
		cfg.Escrow.OwnerAddress = v
	}
	if v := os.Getenv("ESCROW_VAULT_ADDRESS"); v != "" {
		cfg.Escrow.VaultAddress = v
	}
	if v := os.Getenv("ESCROW_AUTH_SECRET"); v != "" {
		cfg.Escrow.AuthSecret = v
	}
	if v := os.Getenv("ESCROW_INSECURE_DEV_AUTH"); v != "" {
		cfg.Escrow.InsecureDevAuth = v == "true" || v == "1"
	}
}
