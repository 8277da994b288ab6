package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta service.RequestMeta
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		meta = service.RequestMetaFrom(c.Request.Context())
		c.String(http.StatusOK, RequestIDFrom(c))
	})

	t.Run("propagates a well-formed id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(constants.HeaderRequestID, "req-123")
		req.Header.Set("User-Agent", "authcore-test/1.0")
		req.RemoteAddr = "198.51.100.4:1234"
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(constants.HeaderRequestID))
		assert.Equal(t, "req-123", w.Body.String())
		assert.Equal(t, "198.51.100.4", meta.IPAddress)
		assert.Equal(t, "authcore-test/1.0", meta.UserAgent)
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(constants.HeaderRequestID, "bad id\r\nX-Injected: 1")
		router.ServeHTTP(w, req)

		id := w.Header().Get(constants.HeaderRequestID)
		assert.Len(t, id, 36)
		assert.NotContains(t, id, "Injected")
	})
}

func TestAbortWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name      string
		err       error
		status    int
		body      string
		challenge string
	}{
		{"invalid client", errors.ErrInvalidClient(), http.StatusUnauthorized, `"error":"invalid_client"`, `Basic realm="authcore"`},
		{"expired token", errors.ErrTokenInvalid("revoked"), http.StatusUnauthorized, `"error":"invalid_token"`, `Bearer error="invalid_token"`},
		{"access denied", errors.ErrAccessDenied("no"), http.StatusForbidden, `"error":"access_denied"`, ""},
		{"untyped", assert.AnError, http.StatusInternalServerError, `"error":"server_error"`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			AbortWithError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
			assert.Equal(t, tc.challenge, w.Header().Get("WWW-Authenticate"))
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
		})
	}
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]struct {
		header string
		cookie string
		want   string
	}{
		"bearer":           {header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		"case insensitive": {header: "bearer abc", want: "abc"},
		"basic scheme":     {header: "Basic dXNlcjpwYXNz", want: ""},
		"cookie fallback":  {cookie: "from-cookie", want: "from-cookie"},
		"header wins":      {header: "Bearer h", cookie: "c", want: "h"},
		"nothing":          {want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: constants.AuthCookieName, Value: tc.cookie})
			}
			assert.Equal(t, tc.want, BearerToken(c))
		})
	}
}
