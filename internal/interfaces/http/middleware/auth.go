package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// RequireTenant authenticates the bearer user or OAuth access token and stores the
// derived TenantContext for downstream handlers.
func RequireTenant(authz *service.TenantAuthorizer, log logger.Logger) gin.HandlerFunc {
	return requireContext(authz.ContextFromToken, log)
}

// RequireUserSession is RequireTenant accepting only end-user session tokens.
func RequireUserSession(authz *service.TenantAuthorizer, log logger.Logger) gin.HandlerFunc {
	return requireContext(authz.ContextFromSession, log)
}

func requireContext(resolve func(context.Context, string) (*models.TenantContext, error), log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortWithError(c, errors.ErrTokenInvalid("missing bearer token"))
			return
		}
		tc, err := resolve(c.Request.Context(), token)
		if err != nil {
			if errors.ShouldLogError(err) {
				log.Error(c.Request.Context(), "tenant context resolution failed", err)
			}
			AbortWithError(c, err)
			return
		}
		c.Set(string(constants.ContextKeyTenantContext), tc)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyTenantContext, tc))
		c.Next()
	}
}

// RequireAction rejects callers whose tenant role does not grant action.
func RequireAction(authz *service.TenantAuthorizer, action service.TenantAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, _ := TenantContextFrom(c)
		if !authz.Can(tc, action) {
			AbortWithError(c, errors.ErrAccessDenied("insufficient tenant role for "+string(action)))
			return
		}
		c.Next()
	}
}

// RequireResource rejects callers whose tenant role cannot access resource.
func RequireResource(authz *service.TenantAuthorizer, resource service.TenantResource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, _ := TenantContextFrom(c)
		if !authz.CheckResourceAccess(tc, resource) {
			AbortWithError(c, errors.ErrAccessDenied("insufficient tenant role for "+string(resource)))
			return
		}
		c.Next()
	}
}

// TenantContextFrom returns the context stored by RequireTenant.
func TenantContextFrom(c *gin.Context) (*models.TenantContext, bool) {
	v, ok := c.Get(string(constants.ContextKeyTenantContext))
	if !ok {
		return nil, false
	}
	tc, ok := v.(*models.TenantContext)
	return tc, ok
}

// RequireAdmin authenticates an admin API token holding perm. An empty perm requires
// a super admin token.
func RequireAdmin(auth *service.AdminAuthenticator, perm models.AdminPermission, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortWithError(c, errors.ErrTokenInvalid("missing bearer token"))
			return
		}
		record, err := auth.Authenticate(c.Request.Context(), token, perm, c.ClientIP())
		if err != nil {
			if errors.ShouldLogError(err) {
				log.Error(c.Request.Context(), "admin authentication failed", err)
			} else {
				log.Warn(c.Request.Context(), "admin request rejected",
					logger.String("client_ip", c.ClientIP()), logger.Err(err))
			}
			AbortWithError(c, err)
			return
		}
		c.Set(string(constants.ContextKeyAdminToken), record)
		c.Next()
	}
}

// AdminTokenFrom returns the record stored by RequireAdmin.
func AdminTokenFrom(c *gin.Context) (*models.AdminToken, bool) {
	v, ok := c.Get(string(constants.ContextKeyAdminToken))
	if !ok {
		return nil, false
	}
	record, ok := v.(*models.AdminToken)
	return record, ok
}
