// Package revenue reduces registrations, add-ons and shop orders to
// integer-cent revenue figures. All arithmetic stays in int64 cents; no
// floating point touches money at any stage.
package revenue

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	shopdomain "github.com/campforge/campforge/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Breakdown is the revenue decomposition for one camp or period.
type Breakdown struct {
	RegistrationRevenueCents int64 `json:"registration_revenue_cents"`
	AddonRevenueCents        int64 `json:"addon_revenue_cents"`
	MerchandiseRevenueCents  int64 `json:"merchandise_revenue_cents"`
	RefundsTotalCents        int64 `json:"refunds_total_cents"`
	CamperCount              int64 `json:"camper_count"`
}

// Gross returns registration + add-on + merchandise revenue before refunds.
func (b Breakdown) Gross() int64 {
	return b.RegistrationRevenueCents + b.AddonRevenueCents + b.MerchandiseRevenueCents
}

// Net returns gross revenue minus refunds; the royalty base.
func (b Breakdown) Net() int64 {
	return b.Gross() - b.RefundsTotalCents
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Aggregator reads registration and order data. It never writes.
type Aggregator struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAggregator(p Params) *Aggregator {
	return &Aggregator{
		db:  p.DB,
		log: p.Log.Named("revenue.aggregator"),
	}
}

type registrationSums struct {
	RegistrationRevenueCents int64 `gorm:"column:registration_revenue_cents"`
	AddonRevenueCents        int64 `gorm:"column:addon_revenue_cents"`
	RefundsTotalCents        int64 `gorm:"column:refunds_total_cents"`
	CamperCount              int64 `gorm:"column:camper_count"`
}

// Aggregate computes the breakdown for a single camp session. Merchandise
// revenue counts completed shop orders whose created_at falls inside the
// camp's date window.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID, campID snowflake.ID) (Breakdown, error) {
	var camp campdomain.Camp
	err := a.db.WithContext(ctx).First(&camp, "id = ? AND tenant_id = ?", campID, tenantID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Breakdown{}, campdomain.ErrNotFound
		}
		return Breakdown{}, err
	}

	var sums registrationSums
	if err := a.db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN total_price_cents - addons_total_cents ELSE 0 END), 0) AS registration_revenue_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN addons_total_cents ELSE 0 END), 0) AS addon_revenue_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN total_price_cents ELSE 0 END), 0) AS refunds_total_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS camper_count
		 FROM registrations
		 WHERE tenant_id = ? AND camp_id = ?`,
		campdomain.RegistrationStatusConfirmed,
		campdomain.RegistrationStatusConfirmed,
		campdomain.RegistrationStatusRefunded,
		campdomain.RegistrationStatusConfirmed,
		tenantID,
		campID,
	).Scan(&sums).Error; err != nil {
		return Breakdown{}, err
	}

	merchandise, err := a.merchandiseRevenue(ctx, tenantID, camp.StartDate, camp.EndDate)
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		RegistrationRevenueCents: sums.RegistrationRevenueCents,
		AddonRevenueCents:        sums.AddonRevenueCents,
		MerchandiseRevenueCents:  merchandise,
		RefundsTotalCents:        sums.RefundsTotalCents,
		CamperCount:              sums.CamperCount,
	}, nil
}

// AggregateRange computes the breakdown across every camp of the tenant whose
// session starts inside [from, to). Used by the snapshot roller.
func (a *Aggregator) AggregateRange(ctx context.Context, tenantID snowflake.ID, from, to time.Time) (Breakdown, error) {
	var sums registrationSums
	if err := a.db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN r.status = ? THEN r.total_price_cents - r.addons_total_cents ELSE 0 END), 0) AS registration_revenue_cents,
			COALESCE(SUM(CASE WHEN r.status = ? THEN r.addons_total_cents ELSE 0 END), 0) AS addon_revenue_cents,
			COALESCE(SUM(CASE WHEN r.status = ? THEN r.total_price_cents ELSE 0 END), 0) AS refunds_total_cents,
			COALESCE(SUM(CASE WHEN r.status = ? THEN 1 ELSE 0 END), 0) AS camper_count
		 FROM registrations r
		 JOIN camps c ON c.id = r.camp_id
		 WHERE r.tenant_id = ? AND c.start_date >= ? AND c.start_date < ?`,
		campdomain.RegistrationStatusConfirmed,
		campdomain.RegistrationStatusConfirmed,
		campdomain.RegistrationStatusRefunded,
		campdomain.RegistrationStatusConfirmed,
		tenantID,
		from,
		to,
	).Scan(&sums).Error; err != nil {
		return Breakdown{}, err
	}

	merchandise, err := a.merchandiseRevenue(ctx, tenantID, from, to)
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		RegistrationRevenueCents: sums.RegistrationRevenueCents,
		AddonRevenueCents:        sums.AddonRevenueCents,
		MerchandiseRevenueCents:  merchandise,
		RefundsTotalCents:        sums.RefundsTotalCents,
		CamperCount:              sums.CamperCount,
	}, nil
}

// SessionsHeld counts the tenant's completed camps starting inside [from, to).
func (a *Aggregator) SessionsHeld(ctx context.Context, tenantID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&campdomain.Camp{}).
		Where("tenant_id = ? AND status = ? AND start_date >= ? AND start_date < ?",
			tenantID, campdomain.CampStatusCompleted, from, to).
		Count(&count).Error
	return count, err
}

func (a *Aggregator) merchandiseRevenue(ctx context.Context, tenantID snowflake.ID, from, to time.Time) (int64, error) {
	var total int64
	err := a.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_cents), 0)
		 FROM shop_orders
		 WHERE tenant_id = ? AND status IN ? AND created_at >= ? AND created_at < ?`,
		tenantID,
		shopdomain.CompletedStatuses,
		from,
		to,
	).Scan(&total).Error
	return total, err
}

var Module = fx.Module("revenue.aggregator",
	fx.Provide(NewAggregator),
)
