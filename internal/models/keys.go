package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Only the sha256 hash of a key is ever persisted; the plain key is shown
// once, at creation.

// APIKey is a global key (mf_ prefix). It belongs to no tenant and has no
// role. Admin keys may call the control plane admin API.
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	CreatedBy  string     `json:"created_by"`
	IsAdmin    bool       `gorm:"default:false" json:"is_admin"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TenantAPIKey is a tenant scoped key (mft_ prefix) carrying a role.
type TenantAPIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	TenantID   string     `gorm:"not null;index;size:63" json:"tenant_id"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	Role       string     `gorm:"not null;default:'viewer'" json:"role"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	Tenant Tenant `gorm:"foreignKey:TenantID" json:"-"`
}

func (APIKey) TableName() string       { return "api_keys" }
func (TenantAPIKey) TableName() string { return "tenant_api_keys" }

func (a *APIKey) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

func (k *TenantAPIKey) BeforeCreate(*gorm.DB) error {
	assignID(&k.ID)
	return nil
}

// Expired reports whether the key has an expiry at or before now.
func (k *TenantAPIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
