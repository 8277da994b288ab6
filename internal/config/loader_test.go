package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/pkg/constants"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Server.Environment)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, constants.DefaultRSAKeyBits, cfg.Keys.RSAKeyBits)
	assert.Equal(t, constants.UserTokenTTL, cfg.JWT.UserTokenTTL)
	assert.Equal(t, constants.AuthorizationCodeTTL, cfg.OAuth.CodeTTL)
	assert.Equal(t, uint8(4), cfg.OAuth.Argon2.Threads)
	assert.Equal(t, constants.AdminTokenTTL, cfg.JWT.MaxTokenTTL())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
server:
  environment: staging
keys:
  rsa_key_bits: 2048
jwt:
  issuer: https://auth.example.com
  access_token_ttl: 30m
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))
	t.Setenv("AUTHCORE_JWT_ISSUER", "https://env.example.com")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Server.Environment)
	assert.Equal(t, 2048, cfg.Keys.RSAKeyBits)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "https://env.example.com", cfg.JWT.Issuer)
}

func TestLoadConfig_RejectsSmallKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keys:\n  rsa_key_bits: 1024\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rsa_key_bits")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := NewLoader("").Load()
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"unknown driver":              func(c *Config) { c.Database.Driver = "mysql" },
		"redis codes without redis":   func(c *Config) { c.OAuth.CodeStore = "redis" },
		"kafka without brokers":       func(c *Config) { c.Audit.Sink = "kafka" },
		"zero ttl":                    func(c *Config) { c.JWT.UserTokenTTL = 0 },
		"refresh shorter than access": func(c *Config) { c.JWT.RefreshTokenTTL = time.Minute },
		"admin over max":              func(c *Config) { c.JWT.AdminTokenTTL = c.JWT.AdminTokenMaxTTL + time.Hour },
		"vault without address":       func(c *Config) { c.Vault.Enabled = true },
		"fanout without kafka sink":   func(c *Config) { c.Kafka.RevocationFanout = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
