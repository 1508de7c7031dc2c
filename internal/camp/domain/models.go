// Package domain contains persistence models for camp sessions and
// registrations. The royalty engine only reads these tables; their CRUD
// lives upstream.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CampStatus represents camp session lifecycle states.
type CampStatus string

const (
	CampStatusDraft     CampStatus = "draft"
	CampStatusPublished CampStatus = "published"
	CampStatusActive    CampStatus = "active"
	CampStatusCompleted CampStatus = "completed"
	CampStatusCancelled CampStatus = "cancelled"
)

// Camp is a single camp session run by a tenant.
type Camp struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Status    CampStatus   `gorm:"type:text;not null;default:'draft';index" json:"status"`
	StartDate time.Time    `gorm:"not null" json:"start_date"`
	EndDate   time.Time    `gorm:"not null" json:"end_date"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Camp) TableName() string { return "camps" }

// RegistrationStatus represents camper registration states.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusConfirmed RegistrationStatus = "confirmed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
	RegistrationStatusRefunded  RegistrationStatus = "refunded"
)

// Registration is one camper's paid enrollment in a camp, priced in integer
// cents. TotalPriceCents includes AddonsTotalCents.
type Registration struct {
	ID               snowflake.ID       `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID       `gorm:"not null;index" json:"tenant_id"`
	CampID           snowflake.ID       `gorm:"not null;index" json:"camp_id"`
	CamperName       string             `gorm:"type:text" json:"camper_name"`
	Status           RegistrationStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	TotalPriceCents  int64              `gorm:"not null;default:0" json:"total_price_cents"`
	AddonsTotalCents int64              `gorm:"not null;default:0" json:"addons_total_cents"`
	CreatedAt        time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Registration) TableName() string { return "registrations" }

// RegistrationAddon is a purchased add-on line under a registration.
type RegistrationAddon struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	RegistrationID snowflake.ID `gorm:"not null;index" json:"registration_id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Quantity       int64        `gorm:"not null;default:1" json:"quantity"`
	PriceCents     int64        `gorm:"not null;default:0" json:"price_cents"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RegistrationAddon) TableName() string { return "registration_addons" }

var ErrNotFound = errors.New("camp_not_found")
