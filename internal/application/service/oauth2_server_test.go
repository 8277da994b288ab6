package service

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

func TestOAuth2Server_FullAuthorizationCodeFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	client := h.register(t)
	code := h.authorize(t, client)

	resp, err := h.exchange(client, code, testVerifier)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Empty(t, resp.RefreshToken, "refresh tokens require the refresh_token grant")
	assert.Equal(t, "fitness:read profile", resp.Scope)

	claims, err := h.tokens.ValidateFor(ctx, resp.AccessToken, constants.AudienceOAuth)
	require.NoError(t, err)
	assert.True(t, claims.HasAudience(constants.AudienceOAuth))
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, client.ClientID, claims.ClientID)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	assert.Equal(t, []constants.AuditEventType{
		constants.AuditEventClientRegistered,
		constants.AuditEventCodeIssued,
		constants.AuditEventTokenIssued,
	}, h.audit.types())
}

func TestOAuth2Server_RegisterClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("defaults to least privilege", func(t *testing.T) {
		resp, err := h.server.RegisterClient(ctx, &dto.ClientRegistrationRequest{RedirectURIs: []string{"http://localhost:8080/cb"}})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp.ClientID, constants.ClientIDPrefix))
		assert.Equal(t, []string{"authorization_code"}, resp.GrantTypes)
		assert.Equal(t, []string{"code"}, resp.ResponseTypes)
		assert.Equal(t, "fitness:read", resp.Scope)
		assert.Equal(t, int64(365*24*3600), resp.ClientSecretExpiresAt-resp.ClientIDIssuedAt)
		assert.Len(t, resp.ClientSecret, 43)

		stored, err := h.clients.GetByID(ctx, resp.ClientID)
		require.NoError(t, err)
		assert.NotContains(t, stored.ClientSecretHash, resp.ClientSecret)
		assert.True(t, strings.HasPrefix(stored.ClientSecretHash, "$argon2id$v=19$"))
		assert.True(t, h.hasher.Verify(resp.ClientSecret, stored.ClientSecretHash))
	})

	cases := []struct {
		name string
		req  dto.ClientRegistrationRequest
		code constants.ErrorCode
	}{
		{"no redirect uris", dto.ClientRegistrationRequest{}, constants.ErrCodeInvalidRequest},
		{"plain http", dto.ClientRegistrationRequest{RedirectURIs: []string{"http://app.example/cb"}}, constants.ErrCodeInvalidRequest},
		{"fragment", dto.ClientRegistrationRequest{RedirectURIs: []string{"https://app/cb#x"}}, constants.ErrCodeInvalidRequest},
		{"wildcard", dto.ClientRegistrationRequest{RedirectURIs: []string{"https://*.app/cb"}}, constants.ErrCodeInvalidRequest},
		{"relative", dto.ClientRegistrationRequest{RedirectURIs: []string{"/cb"}}, constants.ErrCodeInvalidRequest},
		{"implicit grant", dto.ClientRegistrationRequest{RedirectURIs: []string{"https://app/cb"}, GrantTypes: []string{"implicit"}}, constants.ErrCodeInvalidRequest},
		{"token response type", dto.ClientRegistrationRequest{RedirectURIs: []string{"https://app/cb"}, ResponseTypes: []string{"token"}}, constants.ErrCodeInvalidRequest},
		{"unsupported scope", dto.ClientRegistrationRequest{RedirectURIs: []string{"https://app/cb"}, Scope: "admin"}, constants.ErrCodeInvalidScope},
		{"too many uris", dto.ClientRegistrationRequest{RedirectURIs: strings.Split(strings.Repeat("https://app/cb,", 11), ",")[:11]}, constants.ErrCodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.server.RegisterClient(ctx, &tc.req)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tc.code), "got %v", err)
		})
	}

	t.Run("out of band uri", func(t *testing.T) {
		_, err := h.server.RegisterClient(ctx, &dto.ClientRegistrationRequest{RedirectURIs: []string{constants.OutOfBandRedirectURI}})
		assert.NoError(t, err)
	})
}

func TestOAuth2Server_AuthorizeErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t)
	user := AuthenticatedUser{UserID: "user-1", TenantID: "tenant-a"}
	challenge := oauth2.S256ChallengeFromVerifier(testVerifier)

	valid := func() *dto.AuthorizeRequest {
		return &dto.AuthorizeRequest{
			ClientID:            client.ClientID,
			RedirectURI:         "https://app/cb",
			ResponseType:        "code",
			State:               "st4te",
			CodeChallenge:       challenge,
			CodeChallengeMethod: "S256",
		}
	}

	t.Run("unknown client is not redirected", func(t *testing.T) {
		req := valid()
		req.ClientID = "mcp_client_missing"
		_, err := h.server.Authorize(ctx, req, user)
		var redirect *RedirectError
		assert.False(t, stderrors.As(err, &redirect))
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidClient))
	})

	t.Run("unregistered redirect uri is not redirected", func(t *testing.T) {
		req := valid()
		req.RedirectURI = "https://evil/cb"
		_, err := h.server.Authorize(ctx, req, user)
		var redirect *RedirectError
		assert.False(t, stderrors.As(err, &redirect))
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
	})

	redirected := []struct {
		name   string
		mutate func(*dto.AuthorizeRequest)
		user   AuthenticatedUser
		code   constants.ErrorCode
	}{
		{"plain method", func(r *dto.AuthorizeRequest) { r.CodeChallengeMethod = "plain"; r.CodeChallenge = testVerifier }, user, constants.ErrCodeInvalidRequest},
		{"missing method", func(r *dto.AuthorizeRequest) { r.CodeChallengeMethod = "" }, user, constants.ErrCodeInvalidRequest},
		{"missing challenge", func(r *dto.AuthorizeRequest) { r.CodeChallenge = "" }, user, constants.ErrCodeInvalidRequest},
		{"short challenge", func(r *dto.AuthorizeRequest) { r.CodeChallenge = "abc" }, user, constants.ErrCodeInvalidRequest},
		{"token response type", func(r *dto.AuthorizeRequest) { r.ResponseType = "token" }, user, constants.ErrCodeUnsupportedResponseType},
		{"scope not granted", func(r *dto.AuthorizeRequest) { r.Scope = "fitness:write" }, user, constants.ErrCodeInvalidScope},
		{"no user", func(r *dto.AuthorizeRequest) {}, AuthenticatedUser{}, constants.ErrCodeAccessDenied},
	}
	for _, tc := range redirected {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(req)
			_, err := h.server.Authorize(ctx, req, tc.user)
			var redirect *RedirectError
			require.True(t, stderrors.As(err, &redirect), "expected redirect, got %v", err)
			assert.Equal(t, tc.code, redirect.Err.Code())

			loc, err := url.Parse(redirect.Location())
			require.NoError(t, err)
			assert.Equal(t, "app", loc.Host)
			assert.Equal(t, string(tc.code), loc.Query().Get("error"))
			assert.Equal(t, "st4te", loc.Query().Get("state"))
		})
	}

	assert.Contains(t, h.audit.types(), constants.AuditEventAuthorizationDenied)
}

func TestOAuth2Server_AuthorizeLocation(t *testing.T) {
	loc := AuthorizeLocation(&dto.AuthorizeResult{RedirectURI: "https://app/cb?x=1", Code: "abc", State: "s"})
	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("x"))
	assert.Equal(t, "abc", u.Query().Get("code"))
	assert.Equal(t, "s", u.Query().Get("state"))
}

func TestOAuth2Server_CodeIsSingleUse(t *testing.T) {
	h := newHarness(t)
	client := h.register(t)
	code := h.authorize(t, client)

	_, err := h.exchange(client, code, testVerifier)
	require.NoError(t, err)

	_, err = h.exchange(client, code, testVerifier)
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))
}

func TestOAuth2Server_ConcurrentExchange(t *testing.T) {
	h := newHarness(t)
	client := h.register(t)
	code := h.authorize(t, client)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		grants    int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.exchange(client, code, testVerifier)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.IsCode(err, constants.ErrCodeInvalidGrant) {
				grants++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, grants)
}

func TestOAuth2Server_PKCEMismatchDoesNotBurnCode(t *testing.T) {
	h := newHarness(t)
	client := h.register(t)
	code := h.authorize(t, client)

	_, err := h.exchange(client, code, strings.Repeat("a", 43))
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	_, err = h.exchange(client, code, "short")
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	_, err = h.exchange(client, code, "")
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	_, err = h.exchange(client, code, testVerifier)
	assert.NoError(t, err)
}

func TestOAuth2Server_ExchangeRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t)
	other := h.register(t)

	t.Run("expired code", func(t *testing.T) {
		code := h.authorize(t, client)
		h.clock.Advance(11 * time.Minute)
		_, err := h.exchange(client, code, testVerifier)
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))
	})

	t.Run("code of another client", func(t *testing.T) {
		code := h.authorize(t, client)
		_, err := h.exchange(other, code, testVerifier)
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		code := h.authorize(t, client)
		_, err := h.server.Token(ctx, &dto.TokenRequest{
			GrantType: "authorization_code", ClientID: client.ClientID, ClientSecret: client.ClientSecret,
			Code: code, RedirectURI: "https://app/other", CodeVerifier: testVerifier,
		})
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := h.exchange(client, "not-a-code", testVerifier)
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))
	})
}

func TestOAuth2Server_ClientAuthentication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t, "client_credentials")

	attempts := []dto.TokenRequest{
		{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: "wrong"},
		{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: strings.Repeat("x", len(client.ClientSecret))},
		{GrantType: "client_credentials", ClientID: "mcp_client_unknown", ClientSecret: client.ClientSecret},
		{GrantType: "client_credentials", ClientSecret: client.ClientSecret},
	}
	var descriptions []string
	for i := range attempts {
		_, err := h.server.Token(ctx, &attempts[i])
		require.Error(t, err)
		authErr, ok := errors.AsAuthError(err)
		require.True(t, ok)
		assert.Equal(t, constants.ErrCodeInvalidClient, authErr.Code())
		assert.Equal(t, 401, authErr.HTTPStatus())
		descriptions = append(descriptions, authErr.Description())
	}
	for _, d := range descriptions {
		assert.Equal(t, descriptions[0], d, "invalid_client must not reveal which check failed")
	}
	assert.Contains(t, h.audit.types(), constants.AuditEventClientAuthFailed)

	t.Run("expired client", func(t *testing.T) {
		h.clock.Advance(366 * 24 * time.Hour)
		_, err := h.server.Token(ctx, &dto.TokenRequest{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: client.ClientSecret})
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidClient))
	})
}

// Every authentication path runs exactly one argon2id derivation with the configured
// cost, so timing reveals neither the secret length nor whether the client exists.
func TestOAuth2Server_ClientAuthenticationCost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t, "client_credentials")

	type derivation struct {
		params argon2Params
		keyLen uint32
	}
	var calls []derivation
	h.hasher.derive = func(secret, salt []byte, p argon2Params, keyLen uint32) []byte {
		calls = append(calls, derivation{params: p, keyLen: keyLen})
		return argon2id(secret, salt, p, keyLen)
	}
	want := derivation{
		params: argon2Params{memory: testArgon2.MemoryKiB, time: testArgon2.Time, threads: testArgon2.Threads},
		keyLen: argon2KeyLength,
	}

	attempts := []struct {
		name string
		req  dto.TokenRequest
	}{
		{"correct secret", dto.TokenRequest{ClientID: client.ClientID, ClientSecret: client.ClientSecret}},
		{"wrong secret of the right length", dto.TokenRequest{ClientID: client.ClientID, ClientSecret: strings.Repeat("x", len(client.ClientSecret))}},
		{"wrong secret of another length", dto.TokenRequest{ClientID: client.ClientID, ClientSecret: "x"}},
		{"empty secret", dto.TokenRequest{ClientID: client.ClientID}},
		{"unknown client", dto.TokenRequest{ClientID: "mcp_client_unknown", ClientSecret: client.ClientSecret}},
		{"missing client id", dto.TokenRequest{ClientSecret: client.ClientSecret}},
	}
	for _, tc := range attempts {
		t.Run(tc.name, func(t *testing.T) {
			calls = nil
			req := tc.req
			req.GrantType = "client_credentials"
			_, _ = h.server.Token(ctx, &req)
			require.Len(t, calls, 1)
			assert.Equal(t, want, calls[0])
		})
	}
}

func TestOAuth2Server_ClientCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("grant not registered", func(t *testing.T) {
		client := h.register(t)
		_, err := h.server.Token(ctx, &dto.TokenRequest{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: client.ClientSecret})
		assert.True(t, errors.IsCode(err, constants.ErrCodeUnauthorizedClient))
	})

	t.Run("issues client token", func(t *testing.T) {
		client := h.register(t, "client_credentials")
		resp, err := h.server.Token(ctx, &dto.TokenRequest{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: client.ClientSecret, Scope: "profile"})
		require.NoError(t, err)
		assert.Equal(t, "profile", resp.Scope)
		assert.Empty(t, resp.RefreshToken)

		claims, err := h.tokens.ValidateFor(ctx, resp.AccessToken, constants.AudienceOAuth)
		require.NoError(t, err)
		assert.Equal(t, "client:"+client.ClientID, claims.Subject)
		assert.Equal(t, constants.TokenKindClientCredentials, claims.TokenKind)
	})

	t.Run("scope beyond registration", func(t *testing.T) {
		client := h.register(t, "client_credentials")
		_, err := h.server.Token(ctx, &dto.TokenRequest{GrantType: "client_credentials", ClientID: client.ClientID, ClientSecret: client.ClientSecret, Scope: "fitness:write"})
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidScope))
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		client := h.register(t)
		_, err := h.server.Token(ctx, &dto.TokenRequest{GrantType: "password", ClientID: client.ClientID, ClientSecret: client.ClientSecret})
		assert.True(t, errors.IsCode(err, constants.ErrCodeUnsupportedGrantType))
	})
}

func TestOAuth2Server_RefreshRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t, "authorization_code", "refresh_token")

	first, err := h.exchange(client, h.authorize(t, client), testVerifier)
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	refresh := func(token string) (*dto.TokenResponse, error) {
		return h.server.Token(ctx, &dto.TokenRequest{
			GrantType: "refresh_token", ClientID: client.ClientID, ClientSecret: client.ClientSecret,
			RefreshToken: token, Scope: "fitness:write",
		})
	}

	second, err := refresh(first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.Scope, second.Scope, "refresh keeps the original scope")

	_, err = refresh(first.RefreshToken)
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant), "a rotated refresh token cannot be reused")

	other := h.register(t, "authorization_code", "refresh_token")
	_, err = h.server.Token(ctx, &dto.TokenRequest{
		GrantType: "refresh_token", ClientID: other.ClientID, ClientSecret: other.ClientSecret, RefreshToken: second.RefreshToken,
	})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	assert.Contains(t, h.audit.types(), constants.AuditEventTokenRefreshed)
}

func TestOAuth2Server_Revoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.register(t, "authorization_code", "refresh_token")
	other := h.register(t)

	resp, err := h.exchange(client, h.authorize(t, client), testVerifier)
	require.NoError(t, err)

	// Another client's revocation is ignored.
	require.NoError(t, h.server.Revoke(ctx, &dto.RevokeRequest{Token: resp.AccessToken, ClientID: other.ClientID, ClientSecret: other.ClientSecret}))
	_, err = h.tokens.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.server.Revoke(ctx, &dto.RevokeRequest{Token: resp.AccessToken, ClientID: client.ClientID, ClientSecret: client.ClientSecret}))
	_, err = h.tokens.Validate(ctx, resp.AccessToken)
	assert.True(t, errors.IsCode(err, constants.ErrCodeTokenInvalid))

	require.NoError(t, h.server.Revoke(ctx, &dto.RevokeRequest{Token: resp.RefreshToken, TokenTypeHint: "refresh_token", ClientID: client.ClientID, ClientSecret: client.ClientSecret}))
	_, err = h.server.Token(ctx, &dto.TokenRequest{
		GrantType: "refresh_token", ClientID: client.ClientID, ClientSecret: client.ClientSecret, RefreshToken: resp.RefreshToken,
	})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	assert.NoError(t, h.server.Revoke(ctx, &dto.RevokeRequest{Token: "garbage", ClientID: client.ClientID, ClientSecret: client.ClientSecret}))

	err = h.server.Revoke(ctx, &dto.RevokeRequest{Token: resp.RefreshToken, ClientID: client.ClientID, ClientSecret: "wrong"})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidClient))
}

func TestOAuth2Server_Discovery(t *testing.T) {
	h := newHarness(t)
	doc := h.server.Discovery()

	assert.Equal(t, "https://auth.test", doc.Issuer)
	assert.Equal(t, "https://auth.test/oauth2/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.test/oauth2/token", doc.TokenEndpoint)
	assert.Equal(t, "https://auth.test/oauth2/register", doc.RegistrationEndpoint)
	assert.Equal(t, "https://auth.test/.well-known/jwks.json", doc.JWKSURI)
	assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
	assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
	assert.ElementsMatch(t, []string{"authorization_code", "client_credentials", "refresh_token"}, doc.GrantTypesSupported)
}
