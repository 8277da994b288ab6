package service

import (
	"context"
	"strings"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
	"github.com/turtacn/authcore/pkg/utils"
)

// providerSecretPurpose is bound into the ciphertext of every stored provider secret.
const providerSecretPurpose = "oauth_client_secret"

// FieldCipher encrypts values bound to an encryption context.
type FieldCipher interface {
	EncryptField(plaintext []byte, ec crypto.EncryptionContext) ([]byte, error)
	DecryptField(ciphertext []byte, ec crypto.EncryptionContext) ([]byte, error)
}

// ResolvedCredential is a provider credential with its decrypted secret, for server-side use only.
type ResolvedCredential struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// TenantCredentialService manages a tenant's upstream OAuth application credentials.
// The tenant always comes from a TenantContext, never from request input.
type TenantCredentialService struct {
	repo   repository.TenantCredentialRepository
	cipher FieldCipher
	clock  domainService.Clock
	logger logger.Logger
}

// NewTenantCredentialService creates a new TenantCredentialService.
func NewTenantCredentialService(repo repository.TenantCredentialRepository, cipher FieldCipher, clock domainService.Clock, log logger.Logger) *TenantCredentialService {
	if clock == nil {
		clock = domainService.SystemClock{}
	}
	return &TenantCredentialService{
		repo:   repo,
		cipher: cipher,
		clock:  clock,
		logger: log.WithComponent("TenantCredentialService"),
	}
}

// Set stores the credential for provider, encrypting the secret under the tenant's context.
func (s *TenantCredentialService) Set(ctx context.Context, tc *models.TenantContext, provider string, req *dto.SetProviderCredentialRequest) (*dto.ProviderCredentialResponse, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	ciphertext, err := s.cipher.EncryptField([]byte(req.ClientSecret), s.encryptionContext(tc.TenantID, provider))
	if err != nil {
		return nil, errors.ErrServerError("failed to encrypt provider secret").WithCause(err)
	}

	now := s.clock.Now().UTC()
	cred := &models.TenantOAuthCredential{
		TenantID:        tc.TenantID,
		Provider:        provider,
		ClientID:        req.ClientID,
		EncryptedSecret: ciphertext,
		RedirectURI:     req.RedirectURI,
		Scopes:          req.Scopes,
		ConfiguredBy:    tc.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Provider credential configured",
		logger.String("tenant_id", tc.TenantID),
		logger.String("provider", provider),
		logger.String("user_id", tc.UserID),
	)
	return toCredentialResponse(cred), nil
}

// Get returns the stored credential without its secret.
func (s *TenantCredentialService) Get(ctx context.Context, tc *models.TenantContext, provider string) (*dto.ProviderCredentialResponse, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	cred, err := s.repo.Get(ctx, tc.TenantID, provider)
	if err != nil {
		return nil, err
	}
	return toCredentialResponse(cred), nil
}

// List returns every credential of the caller's tenant without secrets.
func (s *TenantCredentialService) List(ctx context.Context, tc *models.TenantContext) ([]*dto.ProviderCredentialResponse, error) {
	creds, err := s.repo.List(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ProviderCredentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, toCredentialResponse(c))
	}
	return out, nil
}

// Resolve decrypts the credential for provider. A ciphertext stored for another tenant or
// provider fails to decrypt.
func (s *TenantCredentialService) Resolve(ctx context.Context, tc *models.TenantContext, provider string) (*ResolvedCredential, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	cred, err := s.repo.Get(ctx, tc.TenantID, provider)
	if err != nil {
		return nil, err
	}
	secret, err := s.cipher.DecryptField(cred.EncryptedSecret, s.encryptionContext(cred.TenantID, provider))
	if err != nil {
		s.logger.Error(ctx, "Failed to decrypt provider secret", err,
			logger.String("tenant_id", tc.TenantID),
			logger.String("provider", provider),
		)
		return nil, err
	}
	defer clear(secret)

	return &ResolvedCredential{
		ClientID:     cred.ClientID,
		ClientSecret: string(secret),
		RedirectURI:  cred.RedirectURI,
		Scopes:       cred.Scopes,
	}, nil
}

func (s *TenantCredentialService) encryptionContext(tenantID, provider string) crypto.EncryptionContext {
	return crypto.EncryptionContext{TenantID: tenantID, Subject: provider, Purpose: providerSecretPurpose}
}

func normalizeProvider(provider string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" || len(p) > 64 {
		return "", errors.ErrInvalidRequest("provider must be 1-64 characters")
	}
	for _, c := range p {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return "", errors.ErrInvalidRequest("provider may only contain letters, digits, '-' and '_'")
		}
	}
	return p, nil
}

func toCredentialResponse(c *models.TenantOAuthCredential) *dto.ProviderCredentialResponse {
	return &dto.ProviderCredentialResponse{
		TenantID:     c.TenantID,
		Provider:     c.Provider,
		ClientID:     c.ClientID,
		RedirectURI:  c.RedirectURI,
		Scopes:       c.Scopes,
		ConfiguredBy: c.ConfiguredBy,
		UpdatedAt:    c.UpdatedAt,
	}
}
