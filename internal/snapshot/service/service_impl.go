package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/revenue"
	royaltydomain "github.com/campforge/campforge/internal/royalty/domain"
	"github.com/campforge/campforge/internal/snapshot/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Cfg        config.Config
	Aggregator *revenue.Aggregator
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	aggregator *revenue.Aggregator

	defaultRateBps int64
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("snapshot.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		aggregator: p.Aggregator,

		defaultRateBps: p.Cfg.DefaultRoyaltyRateBps,
	}
}

// CreateSnapshot aggregates the tenant's revenue for [periodStart, periodEnd)
// and upserts the rollup row keyed by (tenant, period). Re-running the same
// period overwrites the figures in place.
func (s *Service) CreateSnapshot(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) (*domain.RevenueSnapshot, error) {
	if !periodStart.Before(periodEnd) {
		return nil, domain.ErrInvalidPeriod
	}

	var tenant tenantdomain.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}

	breakdown, err := s.aggregator.AggregateRange(ctx, tenantID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	sessions, err := s.aggregator.SessionsHeld(ctx, tenantID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	net := breakdown.Net()
	var arpc int64
	if breakdown.CamperCount > 0 {
		arpc = net / breakdown.CamperCount
	}

	now := s.clock.Now().UTC()
	row := domain.RevenueSnapshot{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		PeriodStart: periodStart.UTC(),
		PeriodEnd:   periodEnd.UTC(),

		GrossRevenueCents: breakdown.Gross(),
		NetRevenueCents:   net,
		RefundsTotalCents: breakdown.RefundsTotalCents,
		RoyaltyDueCents:   royaltydomain.RoyaltyDue(net, tenant.RoyaltyRateBps(s.defaultRateBps)),
		CamperCount:       breakdown.CamperCount,
		SessionsHeld:      sessions,
		ArpcCents:         arpc,

		ComputedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period_start"}, {Name: "period_end"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gross_revenue_cents",
			"net_revenue_cents",
			"refunds_total_cents",
			"royalty_due_cents",
			"camper_count",
			"sessions_held",
			"arpc_cents",
			"computed_at",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	var saved domain.RevenueSnapshot
	if err := s.db.WithContext(ctx).
		First(&saved, "tenant_id = ? AND period_start = ? AND period_end = ?", tenantID, row.PeriodStart, row.PeriodEnd).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

// RollCurrentPeriod upserts the current calendar month's snapshot for every
// active tenant. Per-tenant failures are collected, never fatal to the batch.
// Returns the number of snapshots rolled.
func (s *Service) RollCurrentPeriod(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	var tenants []tenantdomain.Tenant
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&tenants).Error; err != nil {
		return 0, err
	}

	var rolled int64
	var jobErr error
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return rolled, ctx.Err()
		}
		if _, err := s.CreateSnapshot(ctx, tenant.ID, periodStart, periodEnd); err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("tenant %s: %w", tenant.ID, err))
			s.log.Warn("snapshot roll failed for tenant",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
			continue
		}
		rolled++
	}

	if rolled > 0 {
		s.log.Info("revenue snapshots rolled",
			zap.Int64("count", rolled),
			zap.Time("period_start", periodStart),
		)
	}
	return rolled, jobErr
}
