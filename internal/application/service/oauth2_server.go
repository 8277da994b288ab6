// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
	"github.com/turtacn/authcore/pkg/utils"
)

// Endpoint paths advertised by discovery and mounted by the HTTP router.
const (
	PathDiscovery = "/.well-known/oauth-authorization-server"
	PathJWKS      = "/.well-known/jwks.json"
	PathAuthorize = "/oauth2/authorize"
	PathToken     = "/oauth2/token"
	PathRegister  = "/oauth2/register"
	PathRevoke    = "/oauth2/revoke"
)

const tracerName = "github.com/turtacn/authcore/internal/application/service"

// OAuth2Config holds the authorization server settings.
type OAuth2Config struct {
	Issuer          string
	BaseURL         string
	CodeTTL         time.Duration
	ClientSecretTTL time.Duration
	RefreshTokenTTL time.Duration
	DefaultScope    string
	SupportedScopes []string
}

// OAuth2ConfigFrom maps the jwt and oauth configuration sections.
func OAuth2ConfigFrom(cfg *config.Config) OAuth2Config {
	return OAuth2Config{
		Issuer:          cfg.JWT.Issuer,
		BaseURL:         strings.TrimRight(cfg.OAuth.BaseURL, "/"),
		CodeTTL:         cfg.OAuth.CodeTTL,
		ClientSecretTTL: cfg.OAuth.ClientSecretTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		DefaultScope:    cfg.OAuth.DefaultScope,
		SupportedScopes: cfg.OAuth.SupportedScopes,
	}
}

// AuthenticatedUser is the already-authenticated resource owner approving an authorization request.
type AuthenticatedUser struct {
	UserID   string
	TenantID string
}

// RedirectError is an authorization failure that is reported to the client by redirecting
// back to its registered redirect_uri.
type RedirectError struct {
	RedirectURI string
	State       string
	Err         errors.AuthError
}

func (e *RedirectError) Error() string { return e.Err.Error() }

func (e *RedirectError) Unwrap() error { return e.Err }

// Location is the redirect target carrying error, error_description and state.
func (e *RedirectError) Location() string {
	params := url.Values{}
	params.Set("error", string(e.Err.Code()))
	if d := e.Err.Description(); d != "" {
		params.Set("error_description", d)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	return appendQuery(e.RedirectURI, params)
}

// OAuth2Server implements dynamic client registration, the PKCE-gated authorization
// endpoint, the multi-grant token endpoint, token revocation and discovery.
type OAuth2Server struct {
	cfg     OAuth2Config
	clients repository.OAuthClientRepository
	codes   repository.AuthorizationCodeStore
	refresh repository.RefreshTokenStore
	tokens  *domainService.TokenService
	hasher  *SecretHasher
	clock   domainService.Clock
	rand    io.Reader
	metrics domainService.Metrics
	tracer  trace.Tracer
	audit   auditor
	logger  logger.Logger
}

// OAuth2ServerOption customizes an OAuth2Server.
type OAuth2ServerOption func(*OAuth2Server)

// WithOAuthAudit emits audit events for registrations, grants and failures.
func WithOAuthAudit(a domainService.AuditService) OAuth2ServerOption {
	return func(s *OAuth2Server) { s.audit.svc = a }
}

// WithOAuthMetrics records token endpoint outcomes.
func WithOAuthMetrics(m domainService.Metrics) OAuth2ServerOption {
	return func(s *OAuth2Server) { s.metrics = m }
}

// WithOAuthEntropy replaces crypto/rand for client secrets, codes and refresh tokens.
func WithOAuthEntropy(r io.Reader) OAuth2ServerOption {
	return func(s *OAuth2Server) { s.rand = r }
}

// WithOAuthTracer sets the tracer used for authorize and token spans.
func WithOAuthTracer(t trace.Tracer) OAuth2ServerOption {
	return func(s *OAuth2Server) { s.tracer = t }
}

// NewOAuth2Server creates a new OAuth2Server.
func NewOAuth2Server(
	cfg OAuth2Config,
	clients repository.OAuthClientRepository,
	codes repository.AuthorizationCodeStore,
	refresh repository.RefreshTokenStore,
	tokens *domainService.TokenService,
	hasher *SecretHasher,
	clock domainService.Clock,
	log logger.Logger,
	opts ...OAuth2ServerOption,
) *OAuth2Server {
	if clock == nil {
		clock = domainService.SystemClock{}
	}
	log = log.WithComponent("OAuth2Server")
	s := &OAuth2Server{
		cfg:     cfg,
		clients: clients,
		codes:   codes,
		refresh: refresh,
		tokens:  tokens,
		hasher:  hasher,
		clock:   clock,
		rand:    rand.Reader,
		metrics: domainService.NoopMetrics{},
		tracer:  otel.Tracer(tracerName),
		audit:   auditor{logger: log},
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterClient implements RFC 7591 dynamic client registration.
func (s *OAuth2Server) RegisterClient(ctx context.Context, req *dto.ClientRegistrationRequest) (*dto.ClientRegistrationResponse, error) {
	// 1. Validate request shape and every redirect URI
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if len(req.RedirectURIs) > constants.MaxRedirectURIs {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("at most %d redirect_uris may be registered", constants.MaxRedirectURIs))
	}
	for _, uri := range req.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	// 2. Least privilege defaults: clients must opt in to client_credentials
	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{string(constants.GrantTypeAuthorizationCode)}
	}
	for _, gt := range grantTypes {
		switch constants.GrantType(gt) {
		case constants.GrantTypeAuthorizationCode, constants.GrantTypeClientCredentials, constants.GrantTypeRefreshToken:
		default:
			return nil, errors.ErrInvalidRequest(fmt.Sprintf("grant_type %q is not supported", gt))
		}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{constants.ResponseTypeCode}
	}
	for _, rt := range responseTypes {
		if rt != constants.ResponseTypeCode {
			return nil, errors.ErrInvalidRequest(fmt.Sprintf("response_type %q is not supported", rt))
		}
	}

	scope := strings.Join(strings.Fields(req.Scope), " ")
	if scope == "" {
		scope = s.cfg.DefaultScope
	}
	if err := s.checkSupportedScopes(strings.Fields(scope)); err != nil {
		return nil, err
	}

	// 3. Generate credentials; only the argon2id hash of the secret is stored
	id, err := uuid.NewRandomFromReader(s.rand)
	if err != nil {
		return nil, errors.ErrServerError("failed to generate client id").WithCause(err)
	}
	clientID := constants.ClientIDPrefix + strings.ReplaceAll(id.String(), "-", "")
	secret, err := randomToken(s.rand)
	if err != nil {
		return nil, errors.ErrServerError("failed to generate client secret").WithCause(err)
	}
	secretHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, errors.ErrServerError("failed to hash client secret").WithCause(err)
	}

	now := s.clock.Now().UTC()
	client := &models.OAuthClient{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		ClientName:       req.ClientName,
		RedirectURIs:     req.RedirectURIs,
		GrantTypes:       grantTypes,
		ResponseTypes:    responseTypes,
		Scope:            scope,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.ClientSecretTTL),
	}
	if err := s.clients.Create(ctx, client); err != nil {
		s.logger.Error(ctx, "Failed to store OAuth client", err, logger.String("client_id", clientID))
		return nil, err
	}

	s.logger.Info(ctx, "OAuth client registered",
		logger.String("client_id", clientID),
		logger.Strings("grant_types", grantTypes),
	)
	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventClientRegistered, "success", "client registered").
		WithClient(clientID).
		WithActor(clientID))

	return &dto.ClientRegistrationResponse{
		ClientID:              clientID,
		ClientSecret:          secret,
		ClientIDIssuedAt:      now.Unix(),
		ClientSecretExpiresAt: client.ExpiresAt.Unix(),
		ClientName:            client.ClientName,
		RedirectURIs:          client.RedirectURIs,
		GrantTypes:            client.GrantTypes,
		ResponseTypes:         client.ResponseTypes,
		Scope:                 client.Scope,
	}, nil
}

// Authorize validates an authorization request for an authenticated user and issues a
// single-use code bound to the PKCE challenge. Failures before the redirect URI is
// trusted are plain errors; later failures are *RedirectError.
func (s *OAuth2Server) Authorize(ctx context.Context, req *dto.AuthorizeRequest, user AuthenticatedUser) (*dto.AuthorizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "oauth2.authorize", trace.WithAttributes(
		attribute.String("oauth.client_id", req.ClientID),
	))
	defer span.End()

	result, err := s.authorize(ctx, req, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization rejected")
		s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventAuthorizationDenied, "failure", "authorization request rejected").
			WithClient(req.ClientID).
			WithActor(user.UserID).
			WithTenant(user.TenantID).
			WithResultCode(codeOf(err)))
	}
	return result, err
}

func (s *OAuth2Server) authorize(ctx context.Context, req *dto.AuthorizeRequest, user AuthenticatedUser) (*dto.AuthorizeResult, error) {
	// 1. Client and redirect URI must be trusted before anything is sent back to it
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrInvalidClient()
		}
		return nil, err
	}
	if !client.IsUsable(now) {
		return nil, errors.ErrInvalidClient()
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, errors.ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	fail := func(err errors.AuthError) (*dto.AuthorizeResult, error) {
		return nil, &RedirectError{RedirectURI: req.RedirectURI, State: req.State, Err: err}
	}

	// 2. Protocol checks, reported through the redirect
	if req.ResponseType != constants.ResponseTypeCode {
		return fail(errors.ErrUnsupportedResponseType(req.ResponseType))
	}
	if err := ValidateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		authErr, _ := errors.AsAuthError(err)
		return fail(authErr)
	}
	if !client.AllowsGrant(constants.GrantTypeAuthorizationCode) {
		return fail(errors.ErrUnauthorizedClient("client is not registered for the authorization_code grant"))
	}
	scopes, scopeErr := s.resolveScopes(req.Scope, client.Scopes())
	if scopeErr != nil {
		return fail(scopeErr)
	}
	if user.UserID == "" {
		return fail(errors.ErrAccessDenied("user is not authenticated"))
	}

	// 3. Issue the code; only its hash is stored
	code, err := randomToken(s.rand)
	if err != nil {
		return nil, errors.ErrServerError("failed to generate authorization code").WithCause(err)
	}
	record := &models.AuthorizationCode{
		CodeHash:            hashOpaque(code),
		ClientID:            client.ClientID,
		UserID:              user.UserID,
		TenantID:            user.TenantID,
		RedirectURI:         req.RedirectURI,
		Scope:               strings.Join(scopes, " "),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		State:               req.State,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.cfg.CodeTTL),
	}
	if err := s.codes.Save(ctx, record); err != nil {
		s.logger.Error(ctx, "Failed to store authorization code", err, logger.String("client_id", client.ClientID))
		return nil, err
	}

	s.logger.Info(ctx, "Authorization code issued",
		logger.String("client_id", client.ClientID),
		logger.String("user_id", user.UserID),
		logger.String("tenant_id", user.TenantID),
	)
	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventCodeIssued, "success", "authorization code issued").
		WithClient(client.ClientID).
		WithActor(user.UserID).
		WithTenant(user.TenantID))

	return &dto.AuthorizeResult{RedirectURI: req.RedirectURI, Code: code, State: req.State}, nil
}

// Token authenticates the client and dispatches on grant_type.
func (s *OAuth2Server) Token(ctx context.Context, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "oauth2.token", trace.WithAttributes(
		attribute.String("oauth.grant_type", req.GrantType),
		attribute.String("oauth.client_id", req.ClientID),
	))
	defer span.End()

	resp, err := s.token(ctx, req)

	errorCode := ""
	if err != nil {
		errorCode = string(codeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, errorCode)
	}
	s.metrics.RecordTokenIssue(req.GrantType, err == nil, time.Since(start), errorCode)
	return resp, err
}

func (s *OAuth2Server) token(ctx context.Context, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	grantType := constants.GrantType(req.GrantType)
	switch grantType {
	case constants.GrantTypeAuthorizationCode, constants.GrantTypeClientCredentials, constants.GrantTypeRefreshToken:
	default:
		return nil, errors.ErrUnsupportedGrantType(req.GrantType)
	}
	if !client.AllowsGrant(grantType) {
		return nil, errors.ErrUnauthorizedClient(fmt.Sprintf("client is not registered for the %s grant", grantType))
	}

	switch grantType {
	case constants.GrantTypeAuthorizationCode:
		return s.exchangeCode(ctx, client, req)
	case constants.GrantTypeClientCredentials:
		return s.clientCredentials(ctx, client, req)
	default:
		return s.refreshGrant(ctx, client, req)
	}
}

// authenticateClient verifies client_id/client_secret. Every failure is the same
// generic invalid_client, and unknown clients are verified against a dummy hash so
// the response time does not reveal which check failed.
func (s *OAuth2Server) authenticateClient(ctx context.Context, clientID, secret string) (*models.OAuthClient, error) {
	reject := func(reason string) (*models.OAuthClient, error) {
		s.logger.Warn(ctx, "Client authentication failed",
			logger.String("client_id", clientID),
			logger.String("reason", reason),
		)
		s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventClientAuthFailed, "failure", reason).
			WithClient(clientID).
			WithResultCode(constants.ErrCodeInvalidClient))
		return nil, errors.ErrInvalidClient()
	}

	if clientID == "" {
		s.hasher.VerifyDummy(secret)
		return reject("missing client_id")
	}
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		s.hasher.VerifyDummy(secret)
		if errors.IsNotFound(err) {
			return reject("unknown client")
		}
		return nil, err
	}
	if !s.hasher.Verify(secret, client.ClientSecretHash) {
		return reject("secret mismatch")
	}
	if !client.IsUsable(s.clock.Now()) {
		return reject("client expired or revoked")
	}
	return client, nil
}

func (s *OAuth2Server) exchangeCode(ctx context.Context, client *models.OAuthClient, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	if req.Code == "" {
		return nil, errors.ErrInvalidRequest("code is required")
	}
	if err := ValidateCodeVerifier(req.CodeVerifier); err != nil {
		s.metrics.RecordCodeExchange("invalid_verifier")
		return nil, err
	}

	now := s.clock.Now().UTC()
	codeHash := hashOpaque(req.Code)
	record, err := s.codes.Get(ctx, codeHash)
	if err != nil {
		if errors.IsNotFound(err) {
			s.metrics.RecordCodeExchange("unknown")
			return nil, errors.ErrInvalidGrant("authorization code is invalid, expired or already used")
		}
		return nil, err
	}
	if record.ClientID != client.ClientID {
		s.metrics.RecordCodeExchange("client_mismatch")
		return nil, errors.ErrInvalidGrant("authorization code was issued to another client")
	}
	if !record.IsRedeemable(now) {
		s.metrics.RecordCodeExchange("expired_or_used")
		return nil, errors.ErrInvalidGrant("authorization code is invalid, expired or already used")
	}
	if req.RedirectURI != "" && req.RedirectURI != record.RedirectURI {
		s.metrics.RecordCodeExchange("redirect_mismatch")
		return nil, errors.ErrInvalidGrant("redirect_uri does not match the authorization request")
	}
	if !VerifyPKCE(req.CodeVerifier, record.CodeChallenge) {
		s.metrics.RecordCodeExchange("pkce_mismatch")
		return nil, errors.ErrInvalidGrant("code_verifier does not match code_challenge")
	}

	// Single use: exactly one concurrent caller gets past this point.
	if err := s.codes.Consume(ctx, codeHash, now); err != nil {
		s.metrics.RecordCodeExchange("replayed")
		s.logger.Warn(ctx, "Authorization code redemption lost the consume race or was replayed",
			logger.String("client_id", client.ClientID),
		)
		return nil, err
	}
	s.metrics.RecordCodeExchange("success")

	scopes := strings.Fields(record.Scope)
	access, err := s.tokens.IssueOAuthAccessToken(ctx, record.UserID, scopes, record.TenantID, client.ClientID)
	if err != nil {
		return nil, err
	}
	resp := &dto.TokenResponse{
		AccessToken: access.Token,
		TokenType:   constants.TokenTypeBearer,
		ExpiresIn:   access.ExpiresIn(),
		Scope:       record.Scope,
	}
	if client.AllowsGrant(constants.GrantTypeRefreshToken) {
		refresh, err := s.issueRefreshToken(ctx, client.ClientID, record.UserID, record.TenantID, record.Scope, now)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refresh
	}

	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventTokenIssued, "success", "authorization_code grant").
		WithClient(client.ClientID).
		WithActor(record.UserID).
		WithTenant(record.TenantID).
		WithMetadata(map[string]string{"jti": access.JTI, "kid": access.KID}))
	return resp, nil
}

func (s *OAuth2Server) clientCredentials(ctx context.Context, client *models.OAuthClient, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	scopes, scopeErr := s.resolveScopes(req.Scope, client.Scopes())
	if scopeErr != nil {
		return nil, scopeErr
	}
	access, err := s.tokens.IssueClientCredentialsToken(ctx, client.ClientID, scopes)
	if err != nil {
		return nil, err
	}

	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventTokenIssued, "success", "client_credentials grant").
		WithClient(client.ClientID).
		WithActor(constants.ClientCredentialsSubjectPrefix+client.ClientID).
		WithMetadata(map[string]string{"jti": access.JTI, "kid": access.KID}))

	return &dto.TokenResponse{
		AccessToken: access.Token,
		TokenType:   constants.TokenTypeBearer,
		ExpiresIn:   access.ExpiresIn(),
		Scope:       strings.Join(scopes, " "),
	}, nil
}

// refreshGrant rotates the refresh token: the presented token is consumed atomically and a
// new one is returned with the access token. The original scope is kept.
func (s *OAuth2Server) refreshGrant(ctx context.Context, client *models.OAuthClient, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, errors.ErrInvalidRequest("refresh_token is required")
	}
	now := s.clock.Now().UTC()
	record, err := s.refresh.Consume(ctx, hashOpaque(req.RefreshToken), client.ClientID, now)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueOAuthAccessToken(ctx, record.UserID, strings.Fields(record.Scope), record.TenantID, client.ClientID)
	if err != nil {
		return nil, err
	}
	next, err := s.issueRefreshToken(ctx, client.ClientID, record.UserID, record.TenantID, record.Scope, now)
	if err != nil {
		return nil, err
	}

	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventTokenRefreshed, "success", "refresh_token grant").
		WithClient(client.ClientID).
		WithActor(record.UserID).
		WithTenant(record.TenantID))

	return &dto.TokenResponse{
		AccessToken:  access.Token,
		TokenType:    constants.TokenTypeBearer,
		ExpiresIn:    access.ExpiresIn(),
		RefreshToken: next,
		Scope:        record.Scope,
	}, nil
}

func (s *OAuth2Server) issueRefreshToken(ctx context.Context, clientID, userID, tenantID, scope string, now time.Time) (string, error) {
	token, err := randomToken(s.rand)
	if err != nil {
		return "", errors.ErrServerError("failed to generate refresh token").WithCause(err)
	}
	record := &models.RefreshToken{
		TokenHash: hashOpaque(token),
		ClientID:  clientID,
		UserID:    userID,
		TenantID:  tenantID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.refresh.Save(ctx, record); err != nil {
		return "", err
	}
	return token, nil
}

// Revoke implements RFC 7009. Tokens that are unknown, invalid or belong to another
// client are ignored without error.
func (s *OAuth2Server) Revoke(ctx context.Context, req *dto.RevokeRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}

	if req.TokenTypeHint == "access_token" || (req.TokenTypeHint == "" && looksLikeJWT(req.Token)) {
		claims, err := s.tokens.ValidateFor(ctx, req.Token, constants.AudienceOAuth)
		if err != nil {
			if errors.IsCode(err, constants.ErrCodeServerError) {
				return err
			}
			return nil
		}
		if claims.ClientID != client.ClientID {
			return nil
		}
		revoked, err := s.tokens.Revoke(ctx, req.Token)
		if err != nil {
			return err
		}
		event := models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "access token revoked").
			WithTenant(revoked.TenantID).
			WithClient(client.ClientID).
			WithActor(client.ClientID)
		if revoked.ExpiresAt != nil {
			event.WithMetadata(models.RevocationMetadata{JTI: revoked.ID, RevokedUntil: s.tokens.RevokedUntil(revoked.ExpiresAt.Time).UTC()})
		}
		s.audit.emit(ctx, event)
		return nil
	}

	if err := s.refresh.Revoke(ctx, hashOpaque(req.Token), client.ClientID, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.audit.emit(ctx, models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "refresh token revoked").
		WithClient(client.ClientID).
		WithActor(client.ClientID))
	return nil
}

// Discovery returns the RFC 8414 metadata document.
func (s *OAuth2Server) Discovery() *dto.AuthorizationServerMetadata {
	scopes := s.cfg.SupportedScopes
	if scopes == nil {
		scopes = []string{}
	}
	return &dto.AuthorizationServerMetadata{
		Issuer:                s.cfg.Issuer,
		AuthorizationEndpoint: s.cfg.BaseURL + PathAuthorize,
		TokenEndpoint:         s.cfg.BaseURL + PathToken,
		RegistrationEndpoint:  s.cfg.BaseURL + PathRegister,
		RevocationEndpoint:    s.cfg.BaseURL + PathRevoke,
		JWKSURI:               s.cfg.BaseURL + PathJWKS,
		GrantTypesSupported: []string{
			string(constants.GrantTypeAuthorizationCode),
			string(constants.GrantTypeClientCredentials),
			string(constants.GrantTypeRefreshToken),
		},
		ResponseTypesSupported:            []string{constants.ResponseTypeCode},
		CodeChallengeMethodsSupported:     []string{constants.CodeChallengeMethodS256},
		ScopesSupported:                   scopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic"},
	}
}

// resolveScopes returns requested (or allowed when nothing was requested) after
// checking requested ⊆ allowed.
func (s *OAuth2Server) resolveScopes(requested string, allowed []string) ([]string, errors.AuthError) {
	req := strings.Fields(requested)
	if len(req) == 0 {
		return allowed, nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	for _, r := range req {
		if _, ok := set[r]; !ok {
			return nil, errors.ErrInvalidScope(fmt.Sprintf("scope %q is not granted to this client", r))
		}
	}
	return req, nil
}

func (s *OAuth2Server) checkSupportedScopes(scopes []string) error {
	if len(s.cfg.SupportedScopes) == 0 {
		return nil
	}
	if _, err := s.resolveScopes(strings.Join(scopes, " "), s.cfg.SupportedScopes); err != nil {
		return errors.ErrInvalidScope(err.Description())
	}
	return nil
}

// randomToken returns SecretByteLength random bytes, base64url encoded without padding.
func randomToken(r io.Reader) (string, error) {
	buf := make([]byte, constants.SecretByteLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashOpaque is the storage key of codes and refresh tokens.
func hashOpaque(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func codeOf(err error) constants.ErrorCode {
	if authErr, ok := errors.AsAuthError(err); ok {
		return authErr.Code()
	}
	return constants.ErrCodeServerError
}

func appendQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthorizeLocation is the redirect target for a successful authorization.
func AuthorizeLocation(result *dto.AuthorizeResult) string {
	params := url.Values{}
	params.Set("code", result.Code)
	if result.State != "" {
		params.Set("state", result.State)
	}
	return appendQuery(result.RedirectURI, params)
}
