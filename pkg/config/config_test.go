package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlens/x402client/polling"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvBaseURL, EnvAuthToken, EnvAuthSecret, EnvChainID, EnvLogLevel, EnvJobStorePath} {
		t.Setenv(key, "")
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{BaseURL: "https://api.example.com"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, polling.DefaultConfig(), cfg.Polling)
	assert.Equal(t, 2*time.Second, cfg.Polling.InitialInterval)
	assert.Equal(t, 15*time.Second, cfg.Polling.MaxInterval)
	assert.Equal(t, 200, cfg.Polling.MaxAttempts)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTP.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultKeyringService, cfg.Wallet.KeyringService)
	assert.Equal(t, DefaultKeyringUser, cfg.Wallet.KeyringUser)
	assert.Equal(t, DefaultJobStorePath, cfg.JobStore.Path)
	assert.False(t, cfg.Auth.Enabled())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing base url", Config{}, ErrMissingBaseURL},
		{"relative base url", Config{BaseURL: "/api"}, ErrInvalidBaseURL},
		{"bad scheme", Config{BaseURL: "ftp://example.com"}, ErrInvalidBaseURL},
		{"token without secret", Config{BaseURL: "https://a.b", Auth: Auth{Token: "t"}}, ErrIncompleteAuth},
		{"negative timeout", Config{BaseURL: "https://a.b", HTTP: HTTP{Timeout: -time.Second}}, ErrInvalidTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("bad polling", func(t *testing.T) {
		cfg := Config{BaseURL: "https://a.b", Polling: polling.Config{InitialInterval: time.Minute, MaxInterval: time.Second}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := Config{BaseURL: "https://a.b"}
		cfg.Log.Level = "shouty"
		assert.Error(t, cfg.Validate())
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{BaseURL: "https://file.example.com"}
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvBaseURL:      "https://env.example.com",
		EnvAuthToken:    "tok",
		EnvAuthSecret:   "abcd",
		EnvPrivateKey:   "0x01",
		EnvChainID:      "84532",
		EnvLogLevel:     "debug",
		EnvJobStorePath: "/tmp/jobs.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "0x01", cfg.Wallet.PrivateKey)
	assert.Equal(t, uint64(84532), cfg.Wallet.ChainID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/jobs.db", cfg.JobStore.Path)

	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{EnvChainID: "base"})))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x402.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://api.example.com
polling:
  initial_interval: 1s
  max_interval: 8s
  max_attempts: 20
http:
  timeout: 5s
log:
  level: warn
  format: console
wallet:
  chain_id: 8453
`), 0o600))

	clearEnv(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, polling.Config{InitialInterval: time.Second, MaxInterval: 8 * time.Second, MaxAttempts: 20}, cfg.Polling)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, uint64(8453), cfg.Wallet.ChainID)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x402.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://file.example.com\n"), 0o600))

	clearEnv(t)
	t.Setenv(EnvBaseURL, "https://env.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadOptionalBaseURL(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	cfg, err := Load("", WithOptionalBaseURL())
	require.NoError(t, err)
	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, DefaultKeyringService, cfg.Wallet.KeyringService)
	assert.Equal(t, DefaultJobStorePath, cfg.JobStore.Path)

	t.Setenv(EnvBaseURL, "ftp://example.com")
	_, err = Load("", WithOptionalBaseURL())
	assert.ErrorIs(t, err, ErrInvalidBaseURL)
}
