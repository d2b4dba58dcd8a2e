// Package config loads client settings from an optional YAML file, a .env
// file and the environment, and fills defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/castlens/x402client/pkg/logging"
	"github.com/castlens/x402client/polling"
)

// Environment variables read by Load.
const (
	EnvBaseURL      = "X402_BASE_URL"
	EnvAuthToken    = "AUTH_TOKEN"
	EnvAuthSecret   = "AUTH_SECRET"
	EnvPrivateKey   = "X402_PRIVATE_KEY"
	EnvChainID      = "X402_CHAIN_ID"
	EnvLogLevel     = "X402_LOG_LEVEL"
	EnvJobStorePath = "X402_JOBSTORE_PATH"
)

// Defaults.
const (
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultKeyringService = "x402call"
	DefaultKeyringUser    = "default"
	DefaultJobStorePath   = "x402-jobs.db"
)

// Config holds everything the CLI needs to build a client.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.example.com (required).
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Auth enables HMAC request authentication when both fields are set.
	Auth Auth `json:"auth" yaml:"auth"`
	// Wallet selects the signing key.
	Wallet Wallet `json:"wallet" yaml:"wallet"`
	// Polling bounds detached job polling. See polling.Config.WithDefaults.
	Polling polling.Config `json:"polling" yaml:"polling"`
	HTTP    HTTP           `json:"http" yaml:"http"`
	Log     logging.Config `json:"log" yaml:"log"`
	// JobStore is where pending jobs are remembered between runs.
	JobStore JobStore `json:"jobstore" yaml:"jobstore"`
}

// Auth is the token and hex secret used to sign requests.
type Auth struct {
	Token  string `json:"token" yaml:"token"`
	Secret string `json:"secret" yaml:"secret"`
}

// Enabled reports whether request signing is configured.
func (a Auth) Enabled() bool {
	return a.Token != "" && a.Secret != ""
}

// Wallet locates the payer key. PrivateKey wins over the keyring entry.
type Wallet struct {
	PrivateKey     string `json:"private_key" yaml:"private_key"`
	KeyringService string `json:"keyring_service" yaml:"keyring_service"`
	KeyringUser    string `json:"keyring_user" yaml:"keyring_user"`
	// ChainID pins the wallet to one chain when non-zero.
	ChainID uint64 `json:"chain_id" yaml:"chain_id"`
}

// HTTP configures the transport.
type HTTP struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// JobStore configures the pending job database.
type JobStore struct {
	Path string `json:"path" yaml:"path"`
}

// LoadOption adjusts Load
type LoadOption func(*loadSettings)

type loadSettings struct {
	optionalBaseURL bool
}

// WithOptionalBaseURL lets Load succeed without a base URL, for commands
// that never talk to the API.
func WithOptionalBaseURL() LoadOption {
	return func(s *loadSettings) {
		s.optionalBaseURL = true
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// applies environment overrides and validates the result.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var s loadSettings
	for _, opt := range opts {
		opt(&s)
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.validate(!s.optionalBaseURL || cfg.BaseURL != ""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment variables listed above.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvBaseURL, &c.BaseURL)
	set(EnvAuthToken, &c.Auth.Token)
	set(EnvAuthSecret, &c.Auth.Secret)
	set(EnvPrivateKey, &c.Wallet.PrivateKey)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvJobStorePath, &c.JobStore.Path)

	if v, ok := lookup(EnvChainID); ok && v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChainID, err)
		}
		c.Wallet.ChainID = id
	}
	return nil
}

// Validate fills defaults and checks required fields:
//
//	Polling:  2s initial, 15s cap, 200 attempts
//	HTTP:     30s timeout
//	Log:      info, json
//	Keyring:  x402call / default
//	JobStore: x402-jobs.db
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireBaseURL bool) error {
	if requireBaseURL {
		if c.BaseURL == "" {
			return ErrMissingBaseURL
		}
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidBaseURL
		}
	}

	if (c.Auth.Token == "") != (c.Auth.Secret == "") {
		return ErrIncompleteAuth
	}

	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Polling = c.Polling.WithDefaults()

	if c.HTTP.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}

	c.Log = c.Log.WithDefaults()
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.Wallet.KeyringService == "" {
		c.Wallet.KeyringService = DefaultKeyringService
	}
	if c.Wallet.KeyringUser == "" {
		c.Wallet.KeyringUser = DefaultKeyringUser
	}

	if c.JobStore.Path == "" {
		c.JobStore.Path = DefaultJobStorePath
	}
	return nil
}
