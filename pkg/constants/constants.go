// Package constants defines system-wide constants for the authcore service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Audience Constants
// ================================================================================

// Audience is the fixed "aud" claim for a family of tokens.
type Audience string

const (
	// AudienceUser is carried by end-user session tokens
	AudienceUser Audience = "mcp"

	// AudienceAdmin is carried by admin API tokens
	AudienceAdmin Audience = "admin-api"

	// AudienceOAuth is carried by OAuth access and client-credentials tokens
	AudienceOAuth Audience = "mcp-oauth"
)

// TokenKind discriminates the claim layout carried in a JWT.
type TokenKind string

const (
	TokenKindUser              TokenKind = "user"
	TokenKindAdmin             TokenKind = "admin"
	TokenKindOAuthAccess       TokenKind = "oauth_access"
	TokenKindClientCredentials TokenKind = "client_credentials"
)

// TokenTypeBearer is the token_type returned by the token endpoint.
const TokenTypeBearer = "Bearer"

// ================================================================================
// JWT / Key Constants
// ================================================================================

const (
	// SigningAlgorithm is the only JWS algorithm issued or accepted
	SigningAlgorithm = "RS256"

	// JWKKeyType is the "kty" of published keys
	JWKKeyType = "RSA"

	// JWKUseSignature is the "use" of published keys
	JWKUseSignature = "sig"

	// DefaultRSAKeyBits is the recommended production key size
	DefaultRSAKeyBits = 4096

	// MinRSAKeyBits is the smallest key size accepted by configuration
	MinRSAKeyBits = 2048

	// KeyRotationInterval is how long a key stays active before scheduled rotation
	KeyRotationInterval = 90 * 24 * time.Hour

	// MasterKeyLength is the decoded length of the MEK and of every DEK
	MasterKeyLength = 32

	// GCMNonceLength is the nonce prepended to every ciphertext
	GCMNonceLength = 12
)

// ================================================================================
// Token Lifetime Constants
// ================================================================================

const (
	UserTokenTTL              = 24 * time.Hour
	OAuthAccessTokenTTL       = time.Hour
	ClientCredentialsTokenTTL = time.Hour
	AdminTokenTTL             = 365 * 24 * time.Hour
	RefreshTokenTTL           = 30 * 24 * time.Hour
	SessionRefreshWindow      = 7 * 24 * time.Hour
	AuthorizationCodeTTL      = 10 * time.Minute
	ClientSecretTTL           = 365 * 24 * time.Hour
	AdminTokenCacheTTL        = 5 * time.Minute
)

// ================================================================================
// OAuth 2.0 Constants
// ================================================================================

// GrantType is an OAuth 2.0 grant_type value.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// ResponseTypeCode is the only supported response_type.
const ResponseTypeCode = "code"

// CodeChallengeMethodS256 is the only accepted PKCE method.
const CodeChallengeMethodS256 = "S256"

// CodeChallengeMethodPlain is rejected outright.
const CodeChallengeMethodPlain = "plain"

const (
	// PKCEMinLength and PKCEMaxLength bound code_challenge and code_verifier (RFC 7636)
	PKCEMinLength = 43
	PKCEMaxLength = 128

	// MaxRedirectURIs caps registered redirect URIs per client
	MaxRedirectURIs = 10

	// OutOfBandRedirectURI is allowed for native applications (RFC 8252)
	OutOfBandRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

	// ClientIDPrefix prefixes every generated client_id
	ClientIDPrefix = "mcp_client_"

	// ClientCredentialsSubjectPrefix prefixes the subject of client-credentials tokens
	ClientCredentialsSubjectPrefix = "client:"

	// SecretByteLength is the entropy of client secrets, codes and refresh tokens
	SecretByteLength = 32
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode is a closed set of error kinds. OAuth codes are rendered verbatim on the wire.
type ErrorCode string

const (
	ErrCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrCodeInvalidClient           ErrorCode = "invalid_client"
	ErrCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrCodeAccessDenied            ErrorCode = "access_denied"
	ErrCodeServerError             ErrorCode = "server_error"

	ErrCodeConfiguration     ErrorCode = "configuration_error"
	ErrCodeDecryptionFailed  ErrorCode = "decryption_failed"
	ErrCodeTokenExpired      ErrorCode = "token_expired"
	ErrCodeTokenInvalid      ErrorCode = "token_invalid"
	ErrCodeTokenMalformed    ErrorCode = "token_malformed"
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrCodeUserHasNoTenant   ErrorCode = "user_has_no_tenant"
	ErrCodeNotFound          ErrorCode = "not_found"
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventClientRegistered    AuditEventType = "client_registered"
	AuditEventCodeIssued          AuditEventType = "authorization_code_issued"
	AuditEventTokenIssued         AuditEventType = "token_issued"
	AuditEventTokenRefreshed      AuditEventType = "token_refreshed"
	AuditEventTokenRevoked        AuditEventType = "token_revoked"
	AuditEventClientAuthFailed    AuditEventType = "client_authentication_failed"
	AuditEventKeyRotated          AuditEventType = "key_rotated"
	AuditEventAuthorizationDenied AuditEventType = "authorization_denied"
	AuditEventAdminTokenCreated   AuditEventType = "admin_token_created"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is used for storing values in context.Context
type ContextKey string

const (
	ContextKeyRequestID     ContextKey = "request_id"
	ContextKeyTenantContext ContextKey = "tenant_context"
	ContextKeyAdminToken    ContextKey = "admin_token"
)

// ================================================================================
// Rate Limiting Constants
// ================================================================================

// RateLimitScope names the dimension a limit applies to.
type RateLimitScope string

const (
	RateLimitScopeIP RateLimitScope = "ip"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
	HeaderRequestID          = "X-Request-ID"
)

// AuthCookieName carries a user session token for browser flows.
const AuthCookieName = "auth_token"
