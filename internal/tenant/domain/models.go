// Package domain contains persistence models for licensed operators.
package domain

import (
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is a licensed operator whose camp revenue is subject to royalty.
type Tenant struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	Slug          string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	BillingEmail  string        `gorm:"type:text" json:"billing_email"`
	BillingUserID *snowflake.ID `gorm:"index" json:"billing_user_id,omitempty"`
	// RoyaltyRate is an optional override stored as a decimal fraction
	// (0.08 = 8%). Nil means the platform default applies.
	RoyaltyRate *float64  `gorm:"type:numeric" json:"royalty_rate,omitempty"`
	// No column default: gorm skips zero values on insert, and a default of
	// true would silently overwrite Active=false.
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// RoyaltyRateBps resolves the tenant's royalty rate in basis points, falling
// back to defaultBps when no override is configured.
func (t Tenant) RoyaltyRateBps(defaultBps int64) int64 {
	if t.RoyaltyRate == nil {
		return defaultBps
	}
	return int64(math.Round(*t.RoyaltyRate * 10000))
}

var (
	ErrNotFound      = errors.New("tenant_not_found")
	ErrInvalidTenant = errors.New("invalid_tenant")
)
