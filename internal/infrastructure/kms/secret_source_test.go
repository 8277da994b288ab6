package kms_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/infrastructure/kms"
	"github.com/turtacn/authcore/pkg/logger"
)

const testKey = "QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWY="

func newVaultServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		switch r.URL.Path {
		case "/v1/secret/data/authcore/master-key":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{
					"data":     map[string]interface{}{"master_encryption_key": testKey},
					"metadata": map[string]interface{}{"version": 1},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newSource(t *testing.T, addr, token, secretPath, field string) *kms.VaultSource {
	t.Helper()
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = addr
	vaultConfig.MaxRetries = 0
	client, err := api.NewClient(vaultConfig)
	require.NoError(t, err)
	client.SetToken(token)

	cfg := config.VaultConfig{MountPath: "secret", SecretPath: secretPath, SecretKey: field}
	return kms.NewVaultSourceWithClient(client, cfg, logger.NewNoopLogger())
}

func TestVaultSource_MasterKey(t *testing.T) {
	ts := newVaultServer(t)
	ctx := context.Background()

	value, ok, err := newSource(t, ts.URL, "test-token", "authcore/master-key", "master_encryption_key").MasterKey(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testKey, value)

	_, ok, err = newSource(t, ts.URL, "test-token", "authcore/other", "master_encryption_key").MasterKey(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "missing secret is not configured")

	_, ok, err = newSource(t, ts.URL, "test-token", "authcore/master-key", "wrong_field").MasterKey(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = newSource(t, ts.URL, "bad-token", "authcore/master-key", "master_encryption_key").MasterKey(ctx)
	assert.Error(t, err)
}

func TestNewSecretSource(t *testing.T) {
	cfg := &config.Config{Keys: config.KeysConfig{MasterKey: testKey}}
	src, err := kms.NewSecretSource(cfg, logger.NewNoopLogger())
	require.NoError(t, err)

	value, ok, err := src.MasterKey(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testKey, value)

	_, ok, _ = kms.ConfigSource{}.MasterKey(context.Background())
	assert.False(t, ok)
}
