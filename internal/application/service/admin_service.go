package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
	"github.com/turtacn/authcore/pkg/utils"
)

const adminTokenPrefixLength = 12

// AdminAuthenticator authorizes admin API calls. The JWT proves possession; the stored
// record decides whether the token is still active and what it may do.
type AdminAuthenticator struct {
	tokens  *domainService.TokenService
	repo    repository.AdminTokenRepository
	records *cache.Cache
	clock   domainService.Clock
	logger  logger.Logger
}

// NewAdminAuthenticator creates an authenticator caching token records for cacheTTL.
func NewAdminAuthenticator(tokens *domainService.TokenService, repo repository.AdminTokenRepository, cacheTTL time.Duration, clock domainService.Clock, log logger.Logger) *AdminAuthenticator {
	if clock == nil {
		clock = domainService.SystemClock{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AdminAuthenticator{
		tokens:  tokens,
		repo:    repo,
		records: cache.New(cacheTTL, 2*cacheTTL),
		clock:   clock,
		logger:  log.WithComponent("AdminAuthenticator"),
	}
}

// Authenticate validates an admin JWT and checks that its record is active, unexpired,
// matches the presented token and grants perm. An empty perm requires super admin.
//
// Parameters:
//   - ctx: request context
//   - token: the admin bearer JWT
//   - perm: the permission the call needs
//   - ip: the caller address, recorded as last-used
//
// Returns:
//   - *models.AdminToken: the token record
//   - error: token_* errors for a bad JWT, access_denied otherwise
func (a *AdminAuthenticator) Authenticate(ctx context.Context, token string, perm models.AdminPermission, ip string) (*models.AdminToken, error) {
	claims, err := a.tokens.ValidateFor(ctx, token, constants.AudienceAdmin)
	if err != nil {
		return nil, err
	}
	if claims.TokenKind != constants.TokenKindAdmin {
		return nil, errors.ErrTokenInvalid("not an admin token")
	}

	record, err := a.record(ctx, claims.Subject)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrAccessDenied("admin token is not recognized")
		}
		return nil, err
	}

	now := a.clock.Now()
	if !record.IsActive {
		return nil, errors.ErrAccessDenied("admin token has been revoked")
	}
	if subtle.ConstantTimeCompare([]byte(hashOpaque(token)), []byte(record.TokenHash)) != 1 {
		return nil, errors.ErrAccessDenied("admin token does not match its record")
	}
	if record.IsExpired(now) {
		return nil, errors.ErrAccessDenied("admin token has expired")
	}
	if perm == "" {
		if !record.IsSuperAdmin {
			return nil, errors.ErrAccessDenied("super admin token required")
		}
	} else if !record.HasPermission(perm) {
		return nil, errors.ErrAccessDenied("admin token lacks permission " + string(perm))
	}

	if err := a.repo.RecordUsage(ctx, record.ID, ip, now.UTC()); err != nil {
		a.logger.Warn(ctx, "Failed to record admin token usage", logger.String("token_id", record.ID), logger.Err(err))
	}
	return record, nil
}

func (a *AdminAuthenticator) record(ctx context.Context, id string) (*models.AdminToken, error) {
	if v, ok := a.records.Get(id); ok {
		return v.(*models.AdminToken), nil
	}
	record, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.records.SetDefault(id, record)
	return record, nil
}

// Invalidate drops a cached record so the next call reads storage.
func (a *AdminAuthenticator) Invalidate(id string) {
	a.records.Delete(id)
}

// AdminTokenService creates, lists and revokes admin API tokens.
type AdminTokenService struct {
	tokens *domainService.TokenService
	repo   repository.AdminTokenRepository
	auth   *AdminAuthenticator
	clock  domainService.Clock
	audit  auditor
	logger logger.Logger
}

// NewAdminTokenService creates a new AdminTokenService. auth may be nil; when set, its
// cache is invalidated on revocation.
func NewAdminTokenService(tokens *domainService.TokenService, repo repository.AdminTokenRepository, auth *AdminAuthenticator, audit domainService.AuditService, clock domainService.Clock, log logger.Logger) *AdminTokenService {
	if clock == nil {
		clock = domainService.SystemClock{}
	}
	log = log.WithComponent("AdminTokenService")
	return &AdminTokenService{
		tokens: tokens,
		repo:   repo,
		auth:   auth,
		clock:  clock,
		audit:  auditor{svc: audit, logger: log},
		logger: log,
	}
}

// Create issues an admin JWT and stores its record. The JWT is returned only here.
func (s *AdminTokenService) Create(ctx context.Context, req *dto.CreateAdminTokenRequest, actorID string) (*dto.CreateAdminTokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	perms := models.DefaultAdminPermissions
	if len(req.Permissions) > 0 {
		perms = make([]models.AdminPermission, 0, len(req.Permissions))
		for _, name := range req.Permissions {
			p, ok := models.ParseAdminPermission(name)
			if !ok {
				return nil, errors.ErrInvalidRequest("unknown admin permission: " + name)
			}
			perms = append(perms, p)
		}
	}

	var expiry *time.Time
	if req.ExpiresInDays > 0 {
		exp := s.clock.Now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		expiry = &exp
	}

	id := uuid.NewString()
	issued, err := s.tokens.IssueAdminToken(ctx, id, perms, req.IsSuperAdmin, expiry)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, string(p))
	}
	expiresAt := issued.ExpiresAt
	record := &models.AdminToken{
		ID:           id,
		ServiceName:  req.ServiceName,
		TokenHash:    hashOpaque(issued.Token),
		TokenPrefix:  issued.Token[:min(adminTokenPrefixLength, len(issued.Token))],
		Permissions:  names,
		IsSuperAdmin: req.IsSuperAdmin,
		IsActive:     true,
		CreatedAt:    issued.IssuedAt,
		ExpiresAt:    &expiresAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error(ctx, "Failed to store admin token", err, logger.String("token_id", id))
		return nil, err
	}

	s.logger.Info(ctx, "Admin token created",
		logger.String("token_id", id),
		logger.String("service_name", req.ServiceName),
		logger.Bool("is_super_admin", req.IsSuperAdmin),
	)
	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventAdminTokenCreated, "success", "admin token created").
		WithActor(actorID).
		WithMetadata(map[string]interface{}{"token_id": id, "service_name": req.ServiceName, "permissions": names}))

	return &dto.CreateAdminTokenResponse{
		ID:           id,
		Token:        issued.Token,
		ServiceName:  req.ServiceName,
		Permissions:  names,
		IsSuperAdmin: req.IsSuperAdmin,
		ExpiresAt:    issued.ExpiresAt,
	}, nil
}

// List returns every admin token record.
func (s *AdminTokenService) List(ctx context.Context) ([]*models.AdminToken, error) {
	return s.repo.List(ctx)
}

// Revoke deactivates an admin token.
func (s *AdminTokenService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.auth != nil {
		s.auth.Invalidate(id)
	}
	s.logger.Info(ctx, "Admin token revoked", logger.String("token_id", id))
	return nil
}
