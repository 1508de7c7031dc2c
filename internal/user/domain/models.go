// Package domain contains persistence models for platform users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role separates HQ staff from tenant operators.
type Role string

const (
	RoleHQAdmin     Role = "hq_admin"
	RoleTenantAdmin Role = "tenant_admin"
)

// User is a platform account that can receive billing notifications.
type User struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID  *snowflake.ID `gorm:"index" json:"tenant_id,omitempty"`
	Email     string        `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Role      Role          `gorm:"type:text;not null;default:'tenant_admin'" json:"role"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
