// Package handlers provides HTTP request handlers.
package handlers

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/internal/interfaces/http/middleware"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// jwksMaxAge is the Cache-Control max-age of the JWKS document in seconds.
const jwksMaxAge = "300"

// OAuthHandler serves the OAuth 2.0 authorization server endpoints.
type OAuthHandler struct {
	server *service.OAuth2Server
	jwks   *crypto.JWKSPublisher
	log    logger.Logger
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(server *service.OAuth2Server, jwks *crypto.JWKSPublisher, log logger.Logger) *OAuthHandler {
	return &OAuthHandler{
		server: server,
		jwks:   jwks,
		log:    log.WithComponent("oauth_handler"),
	}
}

// Discovery serves the RFC 8414 metadata document.
func (h *OAuthHandler) Discovery(c *gin.Context) {
	c.JSON(http.StatusOK, h.server.Discovery())
}

// JWKS serves every verifiable signing key.
func (h *OAuthHandler) JWKS(c *gin.Context) {
	body, err := h.jwks.JSON()
	if err != nil {
		h.log.Error(c.Request.Context(), "failed to render JWKS", err)
		middleware.AbortWithError(c, errors.ErrServerError("failed to render key set"))
		return
	}
	c.Header("Cache-Control", "public, max-age="+jwksMaxAge)
	c.Data(http.StatusOK, "application/json", body)
}

// Register handles RFC 7591 dynamic client registration.
func (h *OAuthHandler) Register(c *gin.Context) {
	var req dto.ClientRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed registration request").WithCause(err))
		return
	}
	resp, err := h.server.RegisterClient(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "client registration failed", err)
		return
	}
	noStore(c)
	c.JSON(http.StatusCreated, resp)
}

// Authorize handles the authorization endpoint for a user authenticated by
// middleware.RequireTenant. Success and post-validation failures are redirects.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	tc, ok := middleware.TenantContextFrom(c)
	if !ok {
		middleware.AbortWithError(c, errors.ErrTokenInvalid("authentication required"))
		return
	}
	var req dto.AuthorizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed authorization request").WithCause(err))
		return
	}

	result, err := h.server.Authorize(c.Request.Context(), &req, service.AuthenticatedUser{
		UserID:   tc.UserID,
		TenantID: tc.TenantID,
	})
	if err != nil {
		var redirect *service.RedirectError
		if stderrors.As(err, &redirect) {
			c.Redirect(http.StatusFound, redirect.Location())
			return
		}
		h.fail(c, "authorization failed", err)
		return
	}
	c.Redirect(http.StatusFound, service.AuthorizeLocation(result))
}

// Token handles every supported grant at the token endpoint.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed token request").WithCause(err))
		return
	}
	clientID, secret, err := mergeClientCredentials(c, req.ClientID, req.ClientSecret)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	req.ClientID, req.ClientSecret = clientID, secret

	resp, err := h.server.Token(c.Request.Context(), &req)
	noStore(c)
	if err != nil {
		h.fail(c, "token request failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke handles RFC 7009 token revocation. Unknown tokens still answer 200.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req dto.RevokeRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.AbortWithError(c, errors.ErrInvalidRequest("malformed revocation request").WithCause(err))
		return
	}
	clientID, secret, err := mergeClientCredentials(c, req.ClientID, req.ClientSecret)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	req.ClientID, req.ClientSecret = clientID, secret

	if err := h.server.Revoke(c.Request.Context(), &req); err != nil {
		h.fail(c, "token revocation failed", err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *OAuthHandler) fail(c *gin.Context, msg string, err error) {
	if errors.ShouldLogError(err) {
		h.log.Error(c.Request.Context(), msg, err)
	}
	middleware.AbortWithError(c, err)
}

// mergeClientCredentials combines HTTP Basic client authentication with the form
// parameters. Supplying both with different client ids is rejected.
func mergeClientCredentials(c *gin.Context, formID, formSecret string) (string, string, error) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok {
		return formID, formSecret, nil
	}
	// RFC 6749 section 2.3.1 form-encodes both values before Basic encoding.
	basicID, err := url.QueryUnescape(user)
	if err != nil {
		return "", "", errors.ErrInvalidRequest("malformed basic authentication")
	}
	basicSecret, err := url.QueryUnescape(pass)
	if err != nil {
		return "", "", errors.ErrInvalidRequest("malformed basic authentication")
	}
	if formID != "" && formID != basicID {
		return "", "", errors.ErrInvalidRequest("client_id does not match basic authentication")
	}
	if formSecret != "" {
		return "", "", errors.ErrInvalidRequest("multiple client authentication methods used")
	}
	return basicID, basicSecret, nil
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
