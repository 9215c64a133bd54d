// Package config loads the loan service configuration from an optional
// YAML file with environment variable overrides. Secrets (the relayer key,
// the admin JWT secret, the Supabase key) come from the environment only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chain     ChainConfig     `yaml:"chain"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Auth      AuthConfig      `yaml:"-"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// ChainConfig configures the RPC connection and the relayer.
type ChainConfig struct {
	RPCURL            string        `yaml:"rpc_url"`
	NetworkID         uint32        `yaml:"network_id"`
	ContractAddress   string        `yaml:"contract_address"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RelayerPrivateKey string        `yaml:"-"`
}

// SupabaseConfig configures the off-chain store. Empty URL means the
// in-memory store is used instead.
type SupabaseConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"-"`
}

// AuthConfig configures admin authentication.
type AuthConfig struct {
	AdminJWTSecret string
}

// RateLimitConfig configures per-client throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// TrustProxy makes throttling key on the first X-Forwarded-For hop.
	// Enable only when the service sits behind a proxy that sets it.
	TrustProxy bool `yaml:"trust_proxy"`
}

// QueueConfig configures the transaction queue.
type QueueConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads the YAML file at path (skipped when path is empty or missing)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   150 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Chain: ChainConfig{
			NetworkID:      894710606, // testnet magic
			RequestTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Queue: QueueConfig{
			Buffer: 64,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitComma(v)
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_NETWORK_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Chain.NetworkID = uint32(id)
		}
	}
	if v := os.Getenv("LOAN_CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	cfg.Chain.RelayerPrivateKey = os.Getenv("RELAYER_PRIVATE_KEY")

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	cfg.Supabase.APIKey = os.Getenv("SUPABASE_SERVICE_KEY")

	cfg.Auth.AdminJWTSecret = os.Getenv("ADMIN_JWT_SECRET")

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("RATE_LIMIT_TRUST_PROXY"); v != "" {
		if trust, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.TrustProxy = trust
		}
	}
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain rpc url is required (CHAIN_RPC_URL)")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("loan contract address is required (LOAN_CONTRACT_ADDRESS)")
	}
	if c.Chain.RelayerPrivateKey == "" {
		return fmt.Errorf("relayer private key is required (RELAYER_PRIVATE_KEY)")
	}
	if c.Auth.AdminJWTSecret == "" {
		return fmt.Errorf("admin jwt secret is required (ADMIN_JWT_SECRET)")
	}
	if c.Supabase.URL != "" && c.Supabase.APIKey == "" {
		return fmt.Errorf("supabase service key is required when a supabase url is set (SUPABASE_SERVICE_KEY)")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
