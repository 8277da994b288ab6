package models

import (
	"time"
)

// AdminPermission is a capability granted to an admin API token.
type AdminPermission string

const (
	PermissionProvisionKeys     AdminPermission = "provision_keys"
	PermissionListKeys          AdminPermission = "list_keys"
	PermissionRevokeKeys        AdminPermission = "revoke_keys"
	PermissionUpdateKeyLimits   AdminPermission = "update_key_limits"
	PermissionManageAdminTokens AdminPermission = "manage_admin_tokens"
	PermissionViewAuditLogs     AdminPermission = "view_audit_logs"
	PermissionManageUsers       AdminPermission = "manage_users"
)

// AllAdminPermissions lists every known permission.
var AllAdminPermissions = []AdminPermission{
	PermissionProvisionKeys,
	PermissionListKeys,
	PermissionRevokeKeys,
	PermissionUpdateKeyLimits,
	PermissionManageAdminTokens,
	PermissionViewAuditLogs,
	PermissionManageUsers,
}

// DefaultAdminPermissions are granted when a token is created without an explicit set.
var DefaultAdminPermissions = []AdminPermission{
	PermissionProvisionKeys,
	PermissionListKeys,
	PermissionRevokeKeys,
	PermissionUpdateKeyLimits,
}

// ParseAdminPermission returns false for unknown permission names.
func ParseAdminPermission(s string) (AdminPermission, bool) {
	for _, p := range AllAdminPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// AdminToken is the server-side record backing an admin API JWT.
type AdminToken struct {
	// ID is the token identifier carried as the JWT subject.
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	ServiceName string `gorm:"not null" json:"service_name"`
	// TokenHash is the SHA-256 of the issued JWT.
	TokenHash string `gorm:"not null;size:64" json:"-"`
	// TokenPrefix is the first characters of the JWT, for identification in listings.
	TokenPrefix  string     `gorm:"size:16" json:"token_prefix"`
	Permissions  []string   `gorm:"serializer:json" json:"permissions"`
	IsSuperAdmin bool       `json:"is_super_admin"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	LastUsedIP   string     `json:"last_used_ip,omitempty"`
	UsageCount   int64      `json:"usage_count"`
}

func (AdminToken) TableName() string { return "admin_tokens" }

// HasPermission reports whether the token grants p. Super admin tokens grant everything.
func (t *AdminToken) HasPermission(p AdminPermission) bool {
	if t.IsSuperAdmin {
		return true
	}
	for _, granted := range t.Permissions {
		if granted == string(p) {
			return true
		}
	}
	return false
}

// IsExpired reports whether the token has an expiry at or before now.
func (t *AdminToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
