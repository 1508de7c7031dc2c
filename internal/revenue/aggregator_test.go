package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	"github.com/campforge/campforge/internal/migration"
	shopdomain "github.com/campforge/campforge/internal/shop/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	"github.com/campforge/campforge/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	agg    *Aggregator
	node   *snowflake.Node
	tenant tenantdomain.Tenant
	camp   campdomain.Camp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := migration.RunMigrations(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	f := &fixture{
		conn: conn,
		agg:  NewAggregator(Params{DB: conn, Log: zap.NewNop()}),
		node: node,
	}

	f.tenant = tenantdomain.Tenant{
		ID:     node.Generate(),
		Name:   "Trailhead Camps",
		Slug:   "trailhead",
		Active: true,
	}
	if err := conn.Create(&f.tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	f.camp = campdomain.Camp{
		ID:        node.Generate(),
		TenantID:  f.tenant.ID,
		Name:      "Week 1",
		Status:    campdomain.CampStatusCompleted,
		StartDate: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
	}
	if err := conn.Create(&f.camp).Error; err != nil {
		t.Fatalf("seed camp: %v", err)
	}

	return f
}

func (f *fixture) addRegistration(t *testing.T, status campdomain.RegistrationStatus, totalCents, addonsCents int64) {
	t.Helper()
	reg := campdomain.Registration{
		ID:               f.node.Generate(),
		TenantID:         f.tenant.ID,
		CampID:           f.camp.ID,
		Status:           status,
		TotalPriceCents:  totalCents,
		AddonsTotalCents: addonsCents,
	}
	if err := f.conn.Create(&reg).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}
}

func (f *fixture) addOrder(t *testing.T, status shopdomain.OrderStatus, totalCents int64, createdAt time.Time) {
	t.Helper()
	order := shopdomain.ShopOrder{
		ID:         f.node.Generate(),
		TenantID:   f.tenant.ID,
		Status:     status,
		TotalCents: totalCents,
		CreatedAt:  createdAt,
	}
	if err := f.conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestAggregateBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRegistration(t, campdomain.RegistrationStatusConfirmed, 45000, 0)
	f.addRegistration(t, campdomain.RegistrationStatusConfirmed, 52500, 7500)
	f.addRegistration(t, campdomain.RegistrationStatusPending, 45000, 0)
	f.addRegistration(t, campdomain.RegistrationStatusRefunded, 30000, 0)

	inWindow := f.camp.StartDate.AddDate(0, 0, 2)
	f.addOrder(t, shopdomain.OrderStatusFulfilled, 5600, inWindow)
	f.addOrder(t, shopdomain.OrderStatusPaid, 1400, inWindow)
	f.addOrder(t, shopdomain.OrderStatusCancelled, 9900, inWindow)
	f.addOrder(t, shopdomain.OrderStatusPaid, 2000, f.camp.EndDate.AddDate(0, 0, 5))

	got, err := f.agg.Aggregate(ctx, f.tenant.ID, f.camp.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if got.RegistrationRevenueCents != 90000 {
		t.Fatalf("registration revenue = %d, want 90000", got.RegistrationRevenueCents)
	}
	if got.AddonRevenueCents != 7500 {
		t.Fatalf("addon revenue = %d, want 7500", got.AddonRevenueCents)
	}
	if got.MerchandiseRevenueCents != 7000 {
		t.Fatalf("merchandise revenue = %d, want 7000", got.MerchandiseRevenueCents)
	}
	if got.RefundsTotalCents != 30000 {
		t.Fatalf("refunds = %d, want 30000", got.RefundsTotalCents)
	}
	if got.CamperCount != 2 {
		t.Fatalf("camper count = %d, want 2", got.CamperCount)
	}
	if got.Gross() != 104500 {
		t.Fatalf("gross = %d, want 104500", got.Gross())
	}
	if got.Net() != 74500 {
		t.Fatalf("net = %d, want 74500", got.Net())
	}
}

func TestAggregateUnknownCamp(t *testing.T) {
	f := newFixture(t)

	_, err := f.agg.Aggregate(context.Background(), f.tenant.ID, f.node.Generate())
	if err != campdomain.ErrNotFound {
		t.Fatalf("expected camp not found, got %v", err)
	}
}

func TestAggregateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRegistration(t, campdomain.RegistrationStatusConfirmed, 45000, 0)

	// Second camp outside the window; its revenue must not leak in.
	outside := campdomain.Camp{
		ID:        f.node.Generate(),
		TenantID:  f.tenant.ID,
		Name:      "Autumn Week",
		Status:    campdomain.CampStatusCompleted,
		StartDate: time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC),
	}
	if err := f.conn.Create(&outside).Error; err != nil {
		t.Fatalf("seed camp: %v", err)
	}
	reg := campdomain.Registration{
		ID:              f.node.Generate(),
		TenantID:        f.tenant.ID,
		CampID:          outside.ID,
		Status:          campdomain.RegistrationStatusConfirmed,
		TotalPriceCents: 99999,
	}
	if err := f.conn.Create(&reg).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	f.addOrder(t, shopdomain.OrderStatusPaid, 3000, from.AddDate(0, 0, 10))

	got, err := f.agg.AggregateRange(ctx, f.tenant.ID, from, to)
	if err != nil {
		t.Fatalf("aggregate range: %v", err)
	}
	if got.RegistrationRevenueCents != 45000 {
		t.Fatalf("registration revenue = %d, want 45000", got.RegistrationRevenueCents)
	}
	if got.MerchandiseRevenueCents != 3000 {
		t.Fatalf("merchandise revenue = %d, want 3000", got.MerchandiseRevenueCents)
	}
	if got.CamperCount != 1 {
		t.Fatalf("camper count = %d, want 1", got.CamperCount)
	}

	sessions, err := f.agg.SessionsHeld(ctx, f.tenant.ID, from, to)
	if err != nil {
		t.Fatalf("sessions held: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("sessions held = %d, want 1", sessions)
	}
}
