// Package middleware provides the gin middleware chain of the authcore HTTP server.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID propagates a well-formed inbound X-Request-ID or assigns a new one, and
// records the caller's address and user agent for audit events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if !requestIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Header(constants.HeaderRequestID, id)

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id)
		ctx = service.WithRequestMeta(ctx, service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyRequestID))
}

// AbortWithError renders err as an RFC 6749 error body. Token errors get a
// WWW-Authenticate challenge.
func AbortWithError(c *gin.Context, err error) {
	status, body := errors.ToErrorResponse(err)
	if status == http.StatusUnauthorized {
		if body.Error == string(constants.ErrCodeInvalidClient) {
			c.Header("WWW-Authenticate", `Basic realm="authcore"`)
		} else {
			c.Header("WWW-Authenticate", `Bearer error="`+body.Error+`"`)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// BearerToken reads the token from the Authorization header, falling back to the
// session cookie used by browser flows.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(constants.AuthCookieName); err == nil {
		return cookie
	}
	return ""
}
