package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

func newCredentialService(t *testing.T, h *harness) *TenantCredentialService {
	t.Helper()
	key := make([]byte, constants.MasterKeyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	mek, err := crypto.NewMasterKeyManager(key, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, mek.InitDataKey(context.Background(), postgres.NewDataKeyRepository(h.db)))
	return NewTenantCredentialService(h.creds, mek, h.clock, logger.NewNoopLogger())
}

func TestTenantCredentialService_SetGetResolve(t *testing.T) {
	h := newHarness(t)
	svc := newCredentialService(t, h)
	ctx := context.Background()
	tcA := &models.TenantContext{TenantID: "tenant-a", UserID: "user-1", UserRole: models.RoleAdmin}
	tcB := &models.TenantContext{TenantID: "tenant-b", UserID: "user-9", UserRole: models.RoleOwner}

	resp, err := svc.Set(ctx, tcA, "Strava", &dto.SetProviderCredentialRequest{
		ClientID:     "strava-client",
		ClientSecret: "s3cr3t-value",
		RedirectURI:  "https://acme.example/callback",
		Scopes:       []string{"activity:read"},
	})
	require.NoError(t, err)
	assert.Equal(t, "strava", resp.Provider)
	assert.Equal(t, "user-1", resp.ConfiguredBy)

	stored, err := h.creds.Get(ctx, "tenant-a", "strava")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(stored.EncryptedSecret, []byte("s3cr3t-value")))

	got, err := svc.Get(ctx, tcA, "strava")
	require.NoError(t, err)
	assert.Equal(t, "strava-client", got.ClientID)

	resolved, err := svc.Resolve(ctx, tcA, "strava")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-value", resolved.ClientSecret)

	_, err = svc.Get(ctx, tcB, "strava")
	assert.True(t, errors.IsNotFound(err), "credentials are filtered by the caller's tenant")

	list, err := svc.List(ctx, tcA)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTenantCredentialService_CiphertextBoundToTenant(t *testing.T) {
	h := newHarness(t)
	svc := newCredentialService(t, h)
	ctx := context.Background()
	tcA := &models.TenantContext{TenantID: "tenant-a", UserID: "user-1"}

	_, err := svc.Set(ctx, tcA, "garmin", &dto.SetProviderCredentialRequest{ClientID: "c", ClientSecret: "secret"})
	require.NoError(t, err)

	// Copy tenant-a's ciphertext into tenant-b's row.
	stolen, err := h.creds.Get(ctx, "tenant-a", "garmin")
	require.NoError(t, err)
	stolen.TenantID = "tenant-b"
	require.NoError(t, h.creds.Upsert(ctx, stolen))

	_, err = svc.Resolve(ctx, &models.TenantContext{TenantID: "tenant-b", UserID: "user-9"}, "garmin")
	assert.True(t, errors.IsCode(err, constants.ErrCodeDecryptionFailed))
}

func TestTenantCredentialService_Validation(t *testing.T) {
	h := newHarness(t)
	svc := newCredentialService(t, h)
	ctx := context.Background()
	tc := &models.TenantContext{TenantID: "tenant-a", UserID: "user-1"}

	_, err := svc.Set(ctx, tc, "../etc", &dto.SetProviderCredentialRequest{ClientID: "c", ClientSecret: "s"})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	_, err = svc.Set(ctx, tc, "strava", &dto.SetProviderCredentialRequest{ClientID: "c"})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	_, err = svc.Set(ctx, tc, "strava", &dto.SetProviderCredentialRequest{ClientID: "c", ClientSecret: "s", RedirectURI: "not a url"})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
}
