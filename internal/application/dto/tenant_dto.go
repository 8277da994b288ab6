package dto

import "time"

// TenantContextResponse is returned by GET /api/tenant/me.
type TenantContextResponse struct {
	TenantID       string   `json:"tenant_id"`
	TenantName     string   `json:"tenant_name"`
	UserID         string   `json:"user_id"`
	Role           string   `json:"role"`
	AllowedActions []string `json:"allowed_actions"`
}

// SessionTokenResponse is returned by POST /api/auth/refresh.
type SessionTokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SetProviderCredentialRequest configures a tenant's upstream OAuth application.
type SetProviderCredentialRequest struct {
	ClientID     string   `json:"client_id" validate:"required,max=256"`
	ClientSecret string   `json:"client_secret" validate:"required,max=1024"`
	RedirectURI  string   `json:"redirect_uri" validate:"omitempty,url,max=2048"`
	Scopes       []string `json:"scopes,omitempty" validate:"omitempty,max=32,dive,required"`
}

// ProviderCredentialResponse never contains the secret.
type ProviderCredentialResponse struct {
	TenantID     string    `json:"tenant_id"`
	Provider     string    `json:"provider"`
	ClientID     string    `json:"client_id"`
	RedirectURI  string    `json:"redirect_uri,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ConfiguredBy string    `json:"configured_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}
