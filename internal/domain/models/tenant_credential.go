package models

import "time"

// TenantOAuthCredential is a tenant's own application registration with an upstream
// OAuth provider. The client secret is stored field-encrypted under the data key.
type TenantOAuthCredential struct {
	TenantID        string    `gorm:"primaryKey;size:64" json:"tenant_id"`
	Provider        string    `gorm:"primaryKey;size:64" json:"provider"`
	ClientID        string    `gorm:"not null" json:"client_id"`
	EncryptedSecret []byte    `gorm:"not null" json:"-"`
	RedirectURI     string    `json:"redirect_uri,omitempty"`
	Scopes          []string  `gorm:"serializer:json" json:"scopes,omitempty"`
	ConfiguredBy    string    `json:"configured_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (TenantOAuthCredential) TableName() string { return "tenant_oauth_credentials" }
