package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/authcore/pkg/constants"
)

// Claims represents the JWT claims issued by the authcore service.
// It embeds the standard jwt.RegisteredClaims and adds the audience-specific fields.
// Fields that do not apply to a token kind are omitted from its payload.
type Claims struct {
	jwt.RegisteredClaims

	// TokenKind discriminates user, admin, OAuth access and client-credentials tokens.
	TokenKind constants.TokenKind `json:"token_kind"`

	// Email is set on user tokens.
	Email string `json:"email,omitempty"`

	// TenantID is the tenant the token was issued for. Legacy tokens may omit it.
	TenantID string `json:"tenant_id,omitempty"`

	// Scope is the space-delimited OAuth scope of access and client-credentials tokens.
	Scope string `json:"scope,omitempty"`

	// ClientID identifies the OAuth client an access token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// Permissions and IsSuperAdmin are set on admin tokens.
	Permissions  []string `json:"permissions,omitempty"`
	IsSuperAdmin bool     `json:"is_super_admin,omitempty"`
}

// Scopes splits Scope into its individual values.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasAudience reports whether aud is one of the token's audiences.
func (c *Claims) HasAudience(aud constants.Audience) bool {
	for _, a := range c.Audience {
		if a == string(aud) {
			return true
		}
	}
	return false
}
