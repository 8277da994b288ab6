package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/application/service"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/interfaces/http/middleware"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// TenantHandler serves the user-facing session and tenant endpoints.
type TenantHandler struct {
	tokens      *domainService.TokenService
	authz       *service.TenantAuthorizer
	credentials *service.TenantCredentialService
	log         logger.Logger
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(tokens *domainService.TokenService, authz *service.TenantAuthorizer, credentials *service.TenantCredentialService, log logger.Logger) *TenantHandler {
	return &TenantHandler{
		tokens:      tokens,
		authz:       authz,
		credentials: credentials,
		log:         log.WithComponent("tenant_handler"),
	}
}

// RefreshSession re-issues the caller's session token. The old token may be expired
// but its signature, issuer, subject and revocation status are still checked.
func (h *TenantHandler) RefreshSession(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("missing bearer token"))
		return
	}
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		middleware.AbortWithError(c, errors.ErrTokenMalformed("not a valid JWT"))
		return
	}
	subject, err := unverified.Claims.GetSubject()
	if err != nil || subject == "" {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("token has no subject"))
		return
	}

	issued, err := h.tokens.Refresh(c.Request.Context(), token, subject)
	if err != nil {
		if errors.ShouldLogError(err) {
			h.log.Error(c.Request.Context(), "session refresh failed", err)
		}
		middleware.AbortWithError(c, err)
		return
	}
	noStore(c)
	c.JSON(http.StatusOK, dto.SessionTokenResponse{
		Token:     issued.Token,
		TokenType: constants.TokenTypeBearer,
		ExpiresIn: issued.ExpiresIn(),
		ExpiresAt: issued.ExpiresAt,
	})
}

// Me returns the caller's tenant context and the actions their role allows.
func (h *TenantHandler) Me(c *gin.Context) {
	tc, ok := middleware.TenantContextFrom(c)
	if !ok {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("authentication required"))
		return
	}
	c.JSON(http.StatusOK, dto.TenantContextResponse{
		TenantID:       tc.TenantID,
		TenantName:     tc.TenantName,
		UserID:         tc.UserID,
		Role:           string(tc.UserRole),
		AllowedActions: h.authz.AllowedActions(tc),
	})
}

// SetCredential stores the tenant's OAuth application credentials for a provider.
func (h *TenantHandler) SetCredential(c *gin.Context) {
	tc, ok := middleware.TenantContextFrom(c)
	if !ok {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("authentication required"))
		return
	}
	var req dto.SetProviderCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed credential request").WithCause(err))
		return
	}
	resp, err := h.credentials.Set(c.Request.Context(), tc, c.Param("provider"), &req)
	if err != nil {
		h.fail(c, "failed to store provider credential", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetCredential returns one provider credential without its secret.
func (h *TenantHandler) GetCredential(c *gin.Context) {
	tc, ok := middleware.TenantContextFrom(c)
	if !ok {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("authentication required"))
		return
	}
	resp, err := h.credentials.Get(c.Request.Context(), tc, c.Param("provider"))
	if err != nil {
		h.fail(c, "failed to load provider credential", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListCredentials returns every provider credential of the caller's tenant.
func (h *TenantHandler) ListCredentials(c *gin.Context) {
	tc, ok := middleware.TenantContextFrom(c)
	if !ok {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("authentication required"))
		return
	}
	list, err := h.credentials.List(c.Request.Context(), tc)
	if err != nil {
		h.fail(c, "failed to list provider credentials", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": list})
}

func (h *TenantHandler) fail(c *gin.Context, msg string, err error) {
	if errors.ShouldLogError(err) {
		h.log.Error(c.Request.Context(), msg, err)
	}
	middleware.AbortWithError(c, err)
}
