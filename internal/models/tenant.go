package models

import (
	"time"
)

type Tenant struct {
	ID        string    `gorm:"primaryKey;size:63" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Tier      string    `gorm:"not null;default:'standard'" json:"tier"`
	Status    string    `gorm:"not null;default:'active';index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}
