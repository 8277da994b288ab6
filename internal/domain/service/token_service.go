package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// TokenConfig holds issuer and lifetime settings for issued JWTs.
type TokenConfig struct {
	Issuer               string
	UserTokenTTL         time.Duration
	AdminTokenTTL        time.Duration
	AdminTokenMaxTTL     time.Duration
	AccessTokenTTL       time.Duration
	ClientCredentialsTTL time.Duration
	// RefreshWindow is how long after expiry a user session may still be renewed.
	RefreshWindow time.Duration
}

// IssuedToken is a signed JWT together with the metadata callers need to build responses.
type IssuedToken struct {
	Token     string
	JTI       string
	KID       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the lifetime in whole seconds, as returned by the token endpoint.
func (t *IssuedToken) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// TokenService issues and validates RS256 JWTs for the user, admin and OAuth audiences.
type TokenService struct {
	keys        KeyRing
	cfg         TokenConfig
	clock       Clock
	rand        io.Reader
	revocations RevocationStore
	metrics     Metrics
	logger      logger.Logger
}

// TokenServiceOption customizes a TokenService.
type TokenServiceOption func(*TokenService)

// WithRevocationStore makes Validate reject revoked jti values.
func WithRevocationStore(store RevocationStore) TokenServiceOption {
	return func(s *TokenService) { s.revocations = store }
}

// WithTokenMetrics records validation outcomes.
func WithTokenMetrics(m Metrics) TokenServiceOption {
	return func(s *TokenService) { s.metrics = m }
}

// WithEntropy replaces crypto/rand as the source for jti values.
func WithEntropy(r io.Reader) TokenServiceOption {
	return func(s *TokenService) { s.rand = r }
}

// NewTokenService creates a TokenService signing with the active key of keys.
func NewTokenService(keys KeyRing, cfg TokenConfig, clock Clock, log logger.Logger, opts ...TokenServiceOption) *TokenService {
	if clock == nil {
		clock = SystemClock{}
	}
	s := &TokenService{
		keys:    keys,
		cfg:     cfg,
		clock:   clock,
		rand:    rand.Reader,
		metrics: NoopMetrics{},
		logger:  log.WithComponent("token_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueUserToken issues an end-user session token. tenantID may be empty for legacy callers.
func (s *TokenService) IssueUserToken(ctx context.Context, user *models.User, tenantID string) (*IssuedToken, error) {
	if user == nil || user.ID == "" {
		return nil, errors.ErrInvalidRequest("user id is required")
	}
	claims := &models.Claims{
		TokenKind: constants.TokenKindUser,
		Email:     user.Email,
		TenantID:  tenantID,
	}
	return s.issue(ctx, claims, user.ID, constants.AudienceUser, s.cfg.UserTokenTTL)
}

// IssueAdminToken issues an admin API token for the admin token record tokenID.
// A nil expiry uses the default admin lifetime; expiries beyond the configured maximum are capped.
func (s *TokenService) IssueAdminToken(ctx context.Context, tokenID string, permissions []models.AdminPermission, isSuperAdmin bool, expiry *time.Time) (*IssuedToken, error) {
	if tokenID == "" {
		return nil, errors.ErrInvalidRequest("admin token id is required")
	}
	now := s.now()
	ttl := s.cfg.AdminTokenTTL
	if expiry != nil {
		ttl = expiry.Sub(now).Truncate(time.Second)
		if ttl <= 0 {
			return nil, errors.ErrInvalidRequest("admin token expiry must be in the future")
		}
	}
	if s.cfg.AdminTokenMaxTTL > 0 && ttl > s.cfg.AdminTokenMaxTTL {
		ttl = s.cfg.AdminTokenMaxTTL
	}

	perms := make([]string, 0, len(permissions))
	for _, p := range permissions {
		perms = append(perms, string(p))
	}
	claims := &models.Claims{
		TokenKind:    constants.TokenKindAdmin,
		Permissions:  perms,
		IsSuperAdmin: isSuperAdmin,
	}
	return s.issue(ctx, claims, tokenID, constants.AudienceAdmin, ttl)
}

// IssueOAuthAccessToken issues an OAuth access token for subject on behalf of clientID.
func (s *TokenService) IssueOAuthAccessToken(ctx context.Context, subject string, scopes []string, tenantID, clientID string) (*IssuedToken, error) {
	if subject == "" {
		return nil, errors.ErrInvalidRequest("subject is required")
	}
	claims := &models.Claims{
		TokenKind: constants.TokenKindOAuthAccess,
		TenantID:  tenantID,
		Scope:     strings.Join(scopes, " "),
		ClientID:  clientID,
	}
	return s.issue(ctx, claims, subject, constants.AudienceOAuth, s.cfg.AccessTokenTTL)
}

// IssueClientCredentialsToken issues a token with no user context; the subject is client:<client_id>.
func (s *TokenService) IssueClientCredentialsToken(ctx context.Context, clientID string, scopes []string) (*IssuedToken, error) {
	if clientID == "" {
		return nil, errors.ErrInvalidRequest("client id is required")
	}
	claims := &models.Claims{
		TokenKind: constants.TokenKindClientCredentials,
		Scope:     strings.Join(scopes, " "),
		ClientID:  clientID,
	}
	return s.issue(ctx, claims, constants.ClientCredentialsSubjectPrefix+clientID, constants.AudienceOAuth, s.cfg.ClientCredentialsTTL)
}

func (s *TokenService) issue(ctx context.Context, claims *models.Claims, subject string, aud constants.Audience, ttl time.Duration) (*IssuedToken, error) {
	key, err := s.keys.ActiveKey()
	if err != nil {
		return nil, err
	}
	jti, err := uuid.NewRandomFromReader(s.rand)
	if err != nil {
		return nil, errors.ErrServerError("failed to generate token id").WithCause(err)
	}

	now := s.now()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{string(aud)},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.KID
	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return nil, errors.ErrServerError("failed to sign token").WithCause(err)
	}

	s.logger.Debug(ctx, "token issued",
		logger.String("token_kind", string(claims.TokenKind)),
		logger.String("kid", key.KID),
		logger.String("jti", claims.ID),
		logger.Time("expires_at", exp),
	)

	return &IssuedToken{
		Token:     signed,
		JTI:       claims.ID,
		KID:       key.KID,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Validate verifies signature, expiry, issuer and audience of a token of any kind.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*models.Claims, error) {
	return s.validate(ctx, tokenString, constants.AudienceUser, constants.AudienceAdmin, constants.AudienceOAuth)
}

// ValidateFor is Validate restricted to a single audience.
func (s *TokenService) ValidateFor(ctx context.Context, tokenString string, aud constants.Audience) (*models.Claims, error) {
	return s.validate(ctx, tokenString, aud)
}

func (s *TokenService) validate(ctx context.Context, tokenString string, audiences ...constants.Audience) (*models.Claims, error) {
	claims, err := s.parse(tokenString, true)
	if err == nil {
		err = s.checkAudience(claims, audiences)
	}
	if err == nil {
		err = s.checkRevoked(ctx, claims)
	}
	if err != nil {
		s.recordValidation(err)
		return nil, err
	}
	s.metrics.RecordTokenValidation("ok")
	return claims, nil
}

// Refresh re-issues a user session token for subject. The old token's signature, issuer and
// audience are verified. It may be expired for at most RefreshWindow. OAuth access tokens are
// renewed only through the refresh_token grant.
func (s *TokenService) Refresh(ctx context.Context, oldToken, subject string) (*IssuedToken, error) {
	claims, err := s.parse(oldToken, false)
	if err != nil {
		s.recordValidation(err)
		return nil, err
	}
	if claims.Issuer != s.cfg.Issuer {
		return nil, errors.ErrTokenInvalid("issuer mismatch")
	}
	if claims.Subject != subject {
		return nil, errors.ErrTokenInvalid("subject mismatch")
	}
	if claims.TokenKind != constants.TokenKindUser {
		return nil, errors.ErrTokenInvalid("token kind cannot be refreshed")
	}
	if !claims.HasAudience(constants.AudienceUser) {
		return nil, errors.ErrTokenInvalid("audience mismatch")
	}
	if claims.ExpiresAt == nil {
		return nil, errors.ErrTokenInvalid("token has no expiry")
	}
	now := s.now()
	if now.After(s.RevokedUntil(claims.ExpiresAt.Time)) {
		return nil, errors.ErrTokenExpired(claims.ExpiresAt.Time, now)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return s.IssueUserToken(ctx, &models.User{ID: claims.Subject, Email: claims.Email}, claims.TenantID)
}

// RevokedUntil is how long a revocation of a token expiring at exp must be remembered:
// Refresh accepts the token until then.
func (s *TokenService) RevokedUntil(exp time.Time) time.Time {
	return exp.Add(s.cfg.RefreshWindow)
}

// Revoke verifies tokenString and records its jti as revoked until RevokedUntil.
// Nothing is recorded once that moment has passed.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) (*models.Claims, error) {
	if s.revocations == nil {
		return nil, errors.ErrServerError("token revocation is not configured")
	}
	claims, err := s.parse(tokenString, false)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return claims, nil
	}
	until := s.RevokedUntil(claims.ExpiresAt.Time)
	if !until.After(s.now()) {
		return claims, nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, until); err != nil {
		return nil, errors.ErrServerError("failed to revoke token").WithCause(err)
	}
	return claims, nil
}

// parse reads the kid from the unverified header, resolves the key and verifies the token.
// Claims validation is skipped when validateClaims is false; the signature is always checked.
func (s *TokenService) parse(tokenString string, validateClaims bool) (*models.Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &models.Claims{})
	if err != nil {
		return nil, errors.ErrTokenMalformed("not a valid JWT").WithCause(err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, errors.ErrTokenMalformed("missing kid header")
	}
	key, ok := s.keys.Key(kid)
	if !ok {
		return nil, errors.ErrTokenInvalid("unknown signing key").WithMetadata("kid", kid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{constants.SigningAlgorithm}),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if validateClaims {
		opts = append(opts,
			jwt.WithIssuer(s.cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		)
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &models.Claims{}
	_, err = jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, s.classify(err, claims)
	}
	return claims, nil
}

// classify maps jwt errors onto the token error kinds. The signature is verified before
// claims, so an expiry error always belongs to an authentic token.
func (s *TokenService) classify(err error, claims *models.Claims) error {
	switch {
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return errors.ErrTokenMalformed("not a valid JWT").WithCause(err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid), stderrors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.ErrTokenInvalid("signature verification failed")
	case stderrors.Is(err, jwt.ErrTokenExpired):
		var expiredAt time.Time
		if claims.ExpiresAt != nil {
			expiredAt = claims.ExpiresAt.Time
		}
		return errors.ErrTokenExpired(expiredAt, s.clock.Now())
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.ErrTokenInvalid("issuer mismatch")
	case stderrors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return errors.ErrTokenInvalid("required claim missing")
	case stderrors.Is(err, jwt.ErrTokenUsedBeforeIssued), stderrors.Is(err, jwt.ErrTokenNotValidYet):
		return errors.ErrTokenInvalid("token used before issued")
	default:
		return errors.ErrTokenInvalid("claims rejected").WithCause(err)
	}
}

func (s *TokenService) checkAudience(claims *models.Claims, audiences []constants.Audience) error {
	for _, aud := range audiences {
		if claims.HasAudience(aud) {
			return nil
		}
	}
	return errors.ErrTokenInvalid("audience mismatch")
}

func (s *TokenService) checkRevoked(ctx context.Context, claims *models.Claims) error {
	if s.revocations == nil || claims.ID == "" {
		return nil
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "revocation lookup failed", err, logger.String("jti", claims.ID))
		return errors.ErrServerError("token revocation status unavailable").WithCause(err)
	}
	if revoked {
		return errors.ErrTokenInvalid("token has been revoked")
	}
	return nil
}

func (s *TokenService) recordValidation(err error) {
	if authErr, ok := errors.AsAuthError(err); ok {
		s.metrics.RecordTokenValidation(string(authErr.Code()))
		return
	}
	s.metrics.RecordTokenValidation("error")
}

// now is truncated to whole seconds so that iat/exp round-trip exactly through NumericDate.
func (s *TokenService) now() time.Time {
	return s.clock.Now().Truncate(time.Second)
}
