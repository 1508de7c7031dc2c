// Package domain contains the rolled-up revenue snapshot model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RevenueSnapshot is a per-tenant revenue rollup for one reporting period.
// One row per (tenant, period); the roller upserts in place.
type RevenueSnapshot struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;uniqueIndex:ux_snapshot_tenant_period" json:"tenant_id"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:ux_snapshot_tenant_period" json:"period_start"`
	PeriodEnd   time.Time    `gorm:"not null;uniqueIndex:ux_snapshot_tenant_period" json:"period_end"`

	GrossRevenueCents int64 `gorm:"not null;default:0" json:"gross_revenue_cents"`
	NetRevenueCents   int64 `gorm:"not null;default:0" json:"net_revenue_cents"`
	RefundsTotalCents int64 `gorm:"not null;default:0" json:"refunds_total_cents"`
	RoyaltyDueCents   int64 `gorm:"not null;default:0" json:"royalty_due_cents"`
	CamperCount       int64 `gorm:"not null;default:0" json:"camper_count"`
	SessionsHeld      int64 `gorm:"not null;default:0" json:"sessions_held"`
	// ArpcCents is average revenue per camper, zero when no campers enrolled.
	ArpcCents int64 `gorm:"not null;default:0" json:"arpc_cents"`

	ComputedAt time.Time `gorm:"not null" json:"computed_at"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RevenueSnapshot) TableName() string { return "revenue_snapshots" }

// Service rolls revenue snapshots.
type Service interface {
	CreateSnapshot(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) (*RevenueSnapshot, error)
	RollCurrentPeriod(ctx context.Context) (int64, error)
}

var ErrInvalidPeriod = errors.New("invalid_snapshot_period")
