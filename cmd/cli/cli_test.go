package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fakeAdminAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer admin-jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token", "error_description": "admin token rejected"})
			return false
		}
		return true
	}
	mux.HandleFunc("/admin/keys/rotate", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			_ = json.NewEncoder(w).Encode(dto.KeyRotationResponse{NewKeyID: "kid-new", OldKeyID: "kid-old"})
		}
	})
	mux.HandleFunc("/admin/tokens", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		if r.Method == http.MethodPost {
			var req dto.CreateAdminTokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(dto.CreateAdminTokenResponse{
				ID: "tok-2", Token: "eyJ.new.token", ServiceName: req.ServiceName,
				Permissions: req.Permissions, ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"tokens": []models.AdminToken{
			{ID: "tok-1", ServiceName: "billing", TokenPrefix: "eyJhbGciOi", IsSuperAdmin: true, IsActive: true},
		}})
	})
	mux.HandleFunc("/admin/tokens/tok-1", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMEKGenerate(t *testing.T) {
	out, err := run(t, "mek", "generate")
	require.NoError(t, err)
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, constants.MasterKeyLength)
}

func TestKeysRotate(t *testing.T) {
	srv := fakeAdminAPI(t)
	out, err := run(t, "keys", "rotate", "--server", srv.URL, "--token", "admin-jwt")
	require.NoError(t, err)
	assert.Contains(t, out, "new kid kid-new")
	assert.Contains(t, out, "previous kid kid-old")
}

func TestTokensCommands(t *testing.T) {
	srv := fakeAdminAPI(t)
	base := []string{"--server", srv.URL, "--token", "admin-jwt"}

	out, err := run(t, append([]string{"tokens", "create", "--name", "ci", "--permission", "list_keys"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "eyJ.new.token")
	assert.Contains(t, out, "for ci")

	out, err = run(t, append([]string{"tokens", "list"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "tok-1")
	assert.Contains(t, out, "billing")

	out, err = run(t, append([]string{"tokens", "revoke", "tok-1"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked admin token tok-1")
}

func TestAPIErrorsAreReported(t *testing.T) {
	srv := fakeAdminAPI(t)
	_, err := run(t, "keys", "rotate", "--server", srv.URL, "--token", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token: admin token rejected")
}

func TestTokenIsRequired(t *testing.T) {
	t.Setenv("AUTHCORE_ADMIN_TOKEN", "")
	_, err := run(t, "keys", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin token is required")
}

func TestTokenFromEnvironment(t *testing.T) {
	srv := fakeAdminAPI(t)
	t.Setenv("AUTHCORE_ADMIN_TOKEN", "admin-jwt")
	t.Setenv("AUTHCORE_ADMIN_SERVER", srv.URL)
	out, err := run(t, "keys", "rotate")
	require.NoError(t, err)
	assert.Contains(t, out, "kid-new")
}
