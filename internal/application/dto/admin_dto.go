package dto

import "time"

// CreateAdminTokenRequest creates an admin API token.
type CreateAdminTokenRequest struct {
	ServiceName  string   `json:"service_name" validate:"required,max=128"`
	Permissions  []string `json:"permissions,omitempty"`
	IsSuperAdmin bool     `json:"is_super_admin"`
	// ExpiresInDays of zero uses the default admin token lifetime.
	ExpiresInDays int `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// CreateAdminTokenResponse is the only place the admin JWT is ever returned.
type CreateAdminTokenResponse struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	ServiceName  string    `json:"service_name"`
	Permissions  []string  `json:"permissions"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SigningKeyInfo describes one verifiable signing key. No key material is included.
type SigningKeyInfo struct {
	KID       string     `json:"kid"`
	Algorithm string     `json:"alg"`
	KeyBits   int        `json:"key_bits"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
}

// KeyRotationResponse represents the response for a key rotation request.
type KeyRotationResponse struct {
	NewKeyID string `json:"new_key_id"`
	OldKeyID string `json:"old_key_id,omitempty"`
}
