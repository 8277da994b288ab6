// Package models defines the domain models for the authcore service.
package models

import (
	"strings"
	"time"
)

// UnknownTenantName is reported when a tenant's display name cannot be resolved.
const UnknownTenantName = "Unknown Tenant"

// Tenant is an isolated organizational boundary.
type Tenant struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:128" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// User is an authenticated end user. TenantID is the user's default tenant and may be empty.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Email       string    `gorm:"uniqueIndex;size:255" json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	TenantID    string    `gorm:"index;size:64" json:"tenant_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// TenantMember records a user's role inside a tenant.
type TenantMember struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	Role      string `gorm:"not null;size:32"`
	CreatedAt time.Time
}

func (TenantMember) TableName() string { return "tenant_members" }

// TenantRole is a user's capability level within a tenant.
// Owner ⊇ Admin ⊇ {Billing, Member}.
type TenantRole string

const (
	RoleOwner   TenantRole = "owner"
	RoleAdmin   TenantRole = "admin"
	RoleBilling TenantRole = "billing"
	RoleMember  TenantRole = "member"
)

// ParseTenantRole maps a stored role string to a TenantRole. Unrecognized values
// become RoleMember, the least privileged role.
func ParseTenantRole(s string) TenantRole {
	switch TenantRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	case RoleBilling:
		return RoleBilling
	case RoleMember:
		return RoleMember
	default:
		return RoleMember
	}
}

// TenantContext is the request-scoped tenant identity derived from a validated token
// and a trusted membership lookup. It is never read from client-supplied input.
type TenantContext struct {
	TenantID   string     `json:"tenant_id"`
	TenantName string     `json:"tenant_name"`
	UserID     string     `json:"user_id"`
	UserRole   TenantRole `json:"user_role"`
}
