package models

import (
	"strings"
	"time"

	"github.com/turtacn/authcore/pkg/constants"
)

// OAuthClient is a dynamically registered OAuth 2.0 client (RFC 7591).
// The client secret is never stored; only its argon2id hash is.
type OAuthClient struct {
	ClientID         string    `gorm:"primaryKey;size:64" json:"client_id"`
	ClientSecretHash string    `gorm:"not null" json:"-"`
	ClientName       string    `json:"client_name,omitempty"`
	RedirectURIs     []string  `gorm:"serializer:json" json:"redirect_uris"`
	GrantTypes       []string  `gorm:"serializer:json" json:"grant_types"`
	ResponseTypes    []string  `gorm:"serializer:json" json:"response_types"`
	Scope            string    `json:"scope"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `gorm:"index" json:"expires_at"`
	Revoked          bool      `json:"revoked"`
}

func (OAuthClient) TableName() string { return "oauth_clients" }

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsGrant reports whether the client registered the grant type.
func (c *OAuthClient) AllowsGrant(grantType constants.GrantType) bool {
	for _, gt := range c.GrantTypes {
		if gt == string(grantType) {
			return true
		}
	}
	return false
}

// IsUsable reports whether the client can still authenticate at now.
func (c *OAuthClient) IsUsable(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// Scopes splits the registered scope.
func (c *OAuthClient) Scopes() []string {
	return strings.Fields(c.Scope)
}

// AuthorizationCode is a single-use code bound to a PKCE challenge.
// Only the SHA-256 hash of the code is stored.
type AuthorizationCode struct {
	CodeHash            string `gorm:"primaryKey;size:64"`
	ClientID            string `gorm:"index;not null"`
	UserID              string `gorm:"not null"`
	TenantID            string
	RedirectURI         string `gorm:"not null"`
	Scope               string
	CodeChallenge       string `gorm:"not null"`
	CodeChallengeMethod string `gorm:"not null"`
	State               string
	CreatedAt           time.Time
	ExpiresAt           time.Time `gorm:"index"`
	Consumed            bool      `gorm:"not null;default:false"`
	ConsumedAt          *time.Time
}

func (AuthorizationCode) TableName() string { return "oauth_authorization_codes" }

// IsRedeemable reports whether the code is unconsumed and unexpired at now.
func (c *AuthorizationCode) IsRedeemable(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}

// RefreshToken is an opaque, rotating refresh token. Only the SHA-256 hash is stored.
type RefreshToken struct {
	TokenHash string `gorm:"primaryKey;size:64"`
	ClientID  string `gorm:"index;not null"`
	UserID    string
	TenantID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
	Revoked   bool      `gorm:"not null;default:false"`
	RevokedAt *time.Time
}

func (RefreshToken) TableName() string { return "oauth_refresh_tokens" }
