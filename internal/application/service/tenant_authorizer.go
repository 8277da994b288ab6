package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// TenantAction is an operation a tenant member may attempt.
type TenantAction string

const (
	ActionReadData           TenantAction = "read_data"
	ActionWriteData          TenantAction = "write_data"
	ActionViewBilling        TenantAction = "view_billing"
	ActionManageBilling      TenantAction = "manage_billing"
	ActionManageUsers        TenantAction = "manage_users"
	ActionManageOAuthClients TenantAction = "manage_oauth_clients"
	ActionViewAnalytics      TenantAction = "view_analytics"
	ActionManageSettings     TenantAction = "manage_settings"
	ActionDeleteTenant       TenantAction = "delete_tenant"
	ActionTransferOwnership  TenantAction = "transfer_ownership"
)

// TenantResource is a class of tenant-owned data.
type TenantResource string

const (
	ResourceOAuthCredentials TenantResource = "oauth_credentials"
	ResourceFitnessData      TenantResource = "fitness_data"
	ResourceTenantSettings   TenantResource = "tenant_settings"
	ResourceBilling          TenantResource = "billing"
)

var (
	memberActions  = []TenantAction{ActionReadData, ActionWriteData}
	billingActions = []TenantAction{ActionViewBilling, ActionManageBilling}
	adminActions   = concatActions(memberActions, billingActions,
		[]TenantAction{ActionManageUsers, ActionManageOAuthClients, ActionViewAnalytics})
	ownerActions = concatActions(adminActions,
		[]TenantAction{ActionManageSettings, ActionDeleteTenant, ActionTransferOwnership})

	// roleActions is ordered the way AllowedActions reports them.
	roleActions = map[models.TenantRole][]TenantAction{
		models.RoleMember:  memberActions,
		models.RoleBilling: billingActions,
		models.RoleAdmin:   adminActions,
		models.RoleOwner:   ownerActions,
	}

	resourceRoles = map[TenantResource][]models.TenantRole{
		ResourceOAuthCredentials: {models.RoleOwner, models.RoleAdmin, models.RoleMember},
		ResourceFitnessData:      {models.RoleOwner, models.RoleAdmin, models.RoleMember},
		ResourceTenantSettings:   {models.RoleOwner},
		ResourceBilling:          {models.RoleOwner, models.RoleAdmin, models.RoleBilling},
	}
)

func concatActions(lists ...[]TenantAction) []TenantAction {
	var out []TenantAction
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// TenantAuthorizer derives a TenantContext from a validated token and a trusted
// membership lookup, and answers role-based authorization questions. Anything not
// explicitly allowed is denied.
type TenantAuthorizer struct {
	tokens  *domainService.TokenService
	tenants repository.TenantRepository
	names   singleflight.Group
	logger  logger.Logger
}

// NewTenantAuthorizer creates a new TenantAuthorizer.
func NewTenantAuthorizer(tokens *domainService.TokenService, tenants repository.TenantRepository, log logger.Logger) *TenantAuthorizer {
	return &TenantAuthorizer{
		tokens:  tokens,
		tenants: tenants,
		logger:  log.WithComponent("TenantAuthorizer"),
	}
}

// ContextFromToken validates a user session or OAuth access token and resolves the
// caller's tenant, tenant name and role.
//
// Parameters:
//   - ctx: request context
//   - token: the bearer JWT
//
// Returns:
//   - *models.TenantContext: the derived context
//   - error: a token error, user_has_no_tenant, or a storage error
func (a *TenantAuthorizer) ContextFromToken(ctx context.Context, token string) (*models.TenantContext, error) {
	claims, err := a.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	switch claims.TokenKind {
	case constants.TokenKindUser, constants.TokenKindOAuthAccess:
	default:
		return nil, errors.ErrTokenInvalid("token does not identify a user")
	}
	return a.ContextForUser(ctx, claims.Subject, claims.TenantID)
}

// ContextFromSession is ContextFromToken restricted to end-user session tokens. Delegated
// OAuth access tokens are rejected: they must not stand in for the user at consent.
func (a *TenantAuthorizer) ContextFromSession(ctx context.Context, token string) (*models.TenantContext, error) {
	claims, err := a.tokens.ValidateFor(ctx, token, constants.AudienceUser)
	if err != nil {
		return nil, err
	}
	if claims.TokenKind != constants.TokenKindUser {
		return nil, errors.ErrTokenInvalid("a user session token is required")
	}
	return a.ContextForUser(ctx, claims.Subject, claims.TenantID)
}

// ContextForUser resolves the tenant context of an authenticated user. claimedTenant is
// honored only when the user is a verified member of it.
func (a *TenantAuthorizer) ContextForUser(ctx context.Context, userID, claimedTenant string) (*models.TenantContext, error) {
	if userID == "" {
		return nil, errors.ErrTokenInvalid("token has no subject")
	}

	tenantID, role, err := a.resolveTenant(ctx, userID, claimedTenant)
	if err != nil {
		return nil, err
	}

	return &models.TenantContext{
		TenantID:   tenantID,
		TenantName: a.tenantName(ctx, tenantID),
		UserID:     userID,
		UserRole:   role,
	}, nil
}

func (a *TenantAuthorizer) resolveTenant(ctx context.Context, userID, claimedTenant string) (string, models.TenantRole, error) {
	// 1. A tenant claim only counts with a verified membership
	if claimedTenant != "" {
		role, ok, err := a.tenants.GetMemberRole(ctx, claimedTenant, userID)
		if err != nil {
			return "", "", err
		}
		if ok {
			return claimedTenant, models.ParseTenantRole(role), nil
		}
		a.logger.Warn(ctx, "Ignoring tenant claim without membership",
			logger.String("user_id", userID),
			logger.String("tenant_id", claimedTenant),
		)
	}

	// 2. The user's default tenant
	user, err := a.tenants.GetUser(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", "", errors.ErrUserHasNoTenant(userID)
		}
		return "", "", err
	}
	if user.TenantID != "" {
		role, ok, err := a.tenants.GetMemberRole(ctx, user.TenantID, userID)
		if err != nil {
			return "", "", err
		}
		if !ok {
			role = string(models.RoleMember)
		}
		return user.TenantID, models.ParseTenantRole(role), nil
	}

	// 3. The oldest membership
	tenants, err := a.tenants.ListTenantsForUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if len(tenants) == 0 {
		return "", "", errors.ErrUserHasNoTenant(userID)
	}
	role, _, err := a.tenants.GetMemberRole(ctx, tenants[0].ID, userID)
	if err != nil {
		return "", "", err
	}
	return tenants[0].ID, models.ParseTenantRole(role), nil
}

// tenantName collapses concurrent lookups of the same tenant. A failed lookup yields
// UnknownTenantName rather than failing the request.
func (a *TenantAuthorizer) tenantName(ctx context.Context, tenantID string) string {
	v, err, _ := a.names.Do(tenantID, func() (interface{}, error) {
		tenant, err := a.tenants.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return tenant.Name, nil
	})
	if err != nil {
		if !errors.IsNotFound(err) {
			a.logger.Warn(ctx, "Failed to resolve tenant name", logger.String("tenant_id", tenantID), logger.Err(err))
		}
		return models.UnknownTenantName
	}
	name, _ := v.(string)
	if name == "" {
		return models.UnknownTenantName
	}
	return name
}

// Can reports whether the context's role allows action.
func (a *TenantAuthorizer) Can(tc *models.TenantContext, action TenantAction) bool {
	if tc == nil {
		return false
	}
	for _, allowed := range roleActions[tc.UserRole] {
		if allowed == action {
			return true
		}
	}
	return false
}

// CheckResourceAccess reports whether the context's role may access resource.
func (a *TenantAuthorizer) CheckResourceAccess(tc *models.TenantContext, resource TenantResource) bool {
	if tc == nil {
		return false
	}
	for _, role := range resourceRoles[resource] {
		if role == tc.UserRole {
			return true
		}
	}
	return false
}

// AllowedActions lists every action the context's role allows.
func (a *TenantAuthorizer) AllowedActions(tc *models.TenantContext) []string {
	if tc == nil {
		return []string{}
	}
	actions := roleActions[tc.UserRole]
	out := make([]string, 0, len(actions))
	for _, act := range actions {
		out = append(out, string(act))
	}
	return out
}
