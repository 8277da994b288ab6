// Package kms supplies the master encryption key from the environment or from
// HashiCorp Vault.
package kms

import (
	"context"
	"fmt"
	"path"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/pkg/logger"
)

// ConfigSource returns the key held in configuration, normally AUTHCORE_KEYS_MASTER_KEY.
type ConfigSource struct {
	Value string
}

func (s ConfigSource) MasterKey(context.Context) (string, bool, error) {
	return s.Value, s.Value != "", nil
}

// VaultSource reads the key from a KV version 2 secret.
type VaultSource struct {
	client    *vault.Client
	mountPath string
	path      string
	field     string
	logger    logger.Logger
}

// NewVaultSource creates a Vault client from cfg.
func NewVaultSource(cfg config.VaultConfig, log logger.Logger) (*VaultSource, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return NewVaultSourceWithClient(client, cfg, log), nil
}

// NewVaultSourceWithClient uses an existing client.
func NewVaultSourceWithClient(client *vault.Client, cfg config.VaultConfig, log logger.Logger) *VaultSource {
	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	return &VaultSource{
		client:    client,
		mountPath: mount,
		path:      cfg.SecretPath,
		field:     cfg.SecretKey,
		logger:    log.WithComponent("VaultSource"),
	}
}

// MasterKey reads <mount>/data/<path> and returns the configured field. A missing
// secret or field is reported as not configured rather than as an error.
func (s *VaultSource) MasterKey(ctx context.Context) (string, bool, error) {
	fullPath := path.Join(s.mountPath, "data", s.path)
	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		s.logger.Error(ctx, "failed to read master key from Vault", err, logger.String("path", fullPath))
		return "", false, fmt.Errorf("could not read %s from vault: %w", fullPath, err)
	}
	if secret == nil || secret.Data["data"] == nil {
		s.logger.Warn(ctx, "master key secret not found in Vault", logger.String("path", fullPath))
		return "", false, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, fmt.Errorf("invalid secret format at %s", fullPath)
	}
	value, ok := data[s.field].(string)
	if !ok || value == "" {
		s.logger.Warn(ctx, "master key field missing from Vault secret", logger.String("path", fullPath), logger.String("field", s.field))
		return "", false, nil
	}

	s.logger.Info(ctx, "master key read from Vault", logger.String("path", fullPath))
	return value, true, nil
}

// NewSecretSource picks Vault when it is enabled and configuration otherwise.
func NewSecretSource(cfg *config.Config, log logger.Logger) (crypto.SecretSource, error) {
	if cfg.Vault.Enabled {
		return NewVaultSource(cfg.Vault, log)
	}
	return ConfigSource{Value: cfg.Keys.MasterKey}, nil
}
