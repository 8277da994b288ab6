package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authcore/internal/application"
	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/interfaces/http/middleware"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// AdminHandler serves the admin API. Every route sits behind middleware.RequireAdmin.
type AdminHandler struct {
	keys   *application.KeyManagementService
	tokens *service.AdminTokenService
	log    logger.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(keys *application.KeyManagementService, tokens *service.AdminTokenService, log logger.Logger) *AdminHandler {
	return &AdminHandler{keys: keys, tokens: tokens, log: log.WithComponent("admin_handler")}
}

// RotateKeys generates a new active signing key.
func (h *AdminHandler) RotateKeys(c *gin.Context) {
	resp, err := h.keys.Rotate(c.Request.Context(), actorID(c))
	if err != nil {
		h.log.Error(c.Request.Context(), "manual key rotation failed", err)
		middleware.AbortWithError(c, errors.ErrServerError("key rotation failed"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListKeys describes every verifiable signing key.
func (h *AdminHandler) ListKeys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": h.keys.List(c.Request.Context())})
}

// CreateToken issues a new admin API token.
func (h *AdminHandler) CreateToken(c *gin.Context) {
	var req dto.CreateAdminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed admin token request").WithCause(err))
		return
	}
	resp, err := h.tokens.Create(c.Request.Context(), &req, actorID(c))
	if err != nil {
		if errors.ShouldLogError(err) {
			h.log.Error(c.Request.Context(), "admin token creation failed", err)
		}
		middleware.AbortWithError(c, err)
		return
	}
	noStore(c)
	c.JSON(http.StatusCreated, resp)
}

// ListTokens lists admin token records. Token values are never included.
func (h *AdminHandler) ListTokens(c *gin.Context) {
	records, err := h.tokens.List(c.Request.Context())
	if err != nil {
		h.log.Error(c.Request.Context(), "failed to list admin tokens", err)
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": records})
}

// RevokeToken deactivates an admin token.
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		if errors.ShouldLogError(err) {
			h.log.Error(c.Request.Context(), "failed to revoke admin token", err)
		}
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func actorID(c *gin.Context) string {
	if record, ok := middleware.AdminTokenFrom(c); ok {
		return record.ID
	}
	return ""
}
