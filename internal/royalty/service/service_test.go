package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/migration"
	"github.com/campforge/campforge/internal/revenue"
	"github.com/campforge/campforge/internal/royalty/domain"
	shopdomain "github.com/campforge/campforge/internal/shop/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	"github.com/campforge/campforge/pkg/db"
	"github.com/campforge/campforge/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	conn   *gorm.DB
	svc    domain.Service
	node   *snowflake.Node
	clock  *clock.FakeClock
	tenant tenantdomain.Tenant
	camp   campdomain.Camp
}

func newEnv(t *testing.T) *env {
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

	fc := clock.NewFakeClock(time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{
		DefaultRoyaltyRateBps: 1000,
		InvoiceDueInDays:      30,
	}

	e := &env{
		conn:  conn,
		node:  node,
		clock: fc,
	}
	e.svc = NewService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Clock:      fc,
		GenID:      node,
		Cfg:        cfg,
		Aggregator: revenue.NewAggregator(revenue.Params{DB: conn, Log: zap.NewNop()}),
	})

	e.tenant = tenantdomain.Tenant{
		ID:     node.Generate(),
		Name:   "Trailhead Camps",
		Slug:   "trailhead",
		Active: true,
	}
	if err := conn.Create(&e.tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	e.camp = campdomain.Camp{
		ID:        node.Generate(),
		TenantID:  e.tenant.ID,
		Name:      "Week 1",
		Status:    campdomain.CampStatusCompleted,
		StartDate: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
	}
	if err := conn.Create(&e.camp).Error; err != nil {
		t.Fatalf("seed camp: %v", err)
	}

	return e
}

func (e *env) addRegistration(t *testing.T, name string, status campdomain.RegistrationStatus, totalCents, addonsCents int64) {
	t.Helper()
	reg := campdomain.Registration{
		ID:               e.node.Generate(),
		TenantID:         e.tenant.ID,
		CampID:           e.camp.ID,
		CamperName:       name,
		Status:           status,
		TotalPriceCents:  totalCents,
		AddonsTotalCents: addonsCents,
	}
	if err := e.conn.Create(&reg).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}
}

func (e *env) generate(t *testing.T) *domain.RoyaltyInvoice {
	t.Helper()
	invoice, err := e.svc.Generate(context.Background(), domain.GenerateRequest{
		TenantID: e.tenant.ID,
		CampID:   e.camp.ID,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return invoice
}

func cents(v int64) *int64 { return &v }

func TestGenerateInvoice(t *testing.T) {
	e := newEnv(t)

	e.addRegistration(t, "Avery Miles", campdomain.RegistrationStatusConfirmed, 45000, 0)
	e.addRegistration(t, "Jordan Lake", campdomain.RegistrationStatusConfirmed, 52500, 7500)
	e.addRegistration(t, "Riley Frost", campdomain.RegistrationStatusRefunded, 30000, 0)

	order := shopdomain.ShopOrder{
		ID:         e.node.Generate(),
		TenantID:   e.tenant.ID,
		Status:     shopdomain.OrderStatusPaid,
		TotalCents: 5000,
		CreatedAt:  e.camp.StartDate.AddDate(0, 0, 1),
	}
	if err := e.conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	invoice := e.generate(t)

	if invoice.Status != domain.InvoiceStatusInvoiced {
		t.Fatalf("status = %s, want invoiced", invoice.Status)
	}
	if !strings.HasPrefix(invoice.InvoiceNumber, "ROY-") {
		t.Fatalf("invoice number %q missing ROY prefix", invoice.InvoiceNumber)
	}
	if invoice.RegistrationRevenueCents != 90000 {
		t.Fatalf("registration revenue = %d, want 90000", invoice.RegistrationRevenueCents)
	}
	if invoice.AddonRevenueCents != 7500 {
		t.Fatalf("addon revenue = %d, want 7500", invoice.AddonRevenueCents)
	}
	if invoice.MerchandiseRevenueCents != 5000 {
		t.Fatalf("merchandise revenue = %d, want 5000", invoice.MerchandiseRevenueCents)
	}
	if invoice.GrossRevenueCents != 102500 {
		t.Fatalf("gross = %d, want 102500", invoice.GrossRevenueCents)
	}
	if invoice.RefundsTotalCents != 30000 {
		t.Fatalf("refunds = %d, want 30000", invoice.RefundsTotalCents)
	}
	if invoice.NetRevenueCents != 72500 {
		t.Fatalf("net = %d, want 72500", invoice.NetRevenueCents)
	}
	if invoice.RoyaltyRateBps != 1000 {
		t.Fatalf("rate = %d, want default 1000", invoice.RoyaltyRateBps)
	}
	if invoice.RoyaltyDueCents != 7250 {
		t.Fatalf("royalty due = %d, want 7250", invoice.RoyaltyDueCents)
	}
	if invoice.TotalDueCents != invoice.RoyaltyDueCents {
		t.Fatalf("total due = %d, want %d", invoice.TotalDueCents, invoice.RoyaltyDueCents)
	}
	wantDue := e.clock.Now().AddDate(0, 0, 30)
	if !invoice.DueDate.Equal(wantDue) {
		t.Fatalf("due date = %v, want %v", invoice.DueDate, wantDue)
	}

	// Two registration lines, one addon aggregate, one merchandise line.
	if len(invoice.LineItems) != 4 {
		t.Fatalf("line items = %d, want 4", len(invoice.LineItems))
	}
	var sum int64
	for _, item := range invoice.LineItems {
		sum += item.TotalAmountCents
	}
	if sum != invoice.GrossRevenueCents {
		t.Fatalf("line item sum = %d, want gross %d", sum, invoice.GrossRevenueCents)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 45000, 0)

	first := e.generate(t)

	_, err := e.svc.Generate(context.Background(), domain.GenerateRequest{
		TenantID: e.tenant.ID,
		CampID:   e.camp.ID,
	})
	if !errors.Is(err, domain.ErrInvoiceOutstanding) {
		t.Fatalf("expected ErrInvoiceOutstanding, got %v", err)
	}

	var count int64
	if err := e.conn.Model(&domain.RoyaltyInvoice{}).Where("camp_id = ?", e.camp.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("invoice count = %d, want 1", count)
	}

	got, err := e.svc.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InvoiceNumber != first.InvoiceNumber {
		t.Fatalf("surviving invoice changed: %s vs %s", got.InvoiceNumber, first.InvoiceNumber)
	}
}

func TestGenerateRequiresCompletedCamp(t *testing.T) {
	e := newEnv(t)

	if err := e.conn.Model(&campdomain.Camp{}).Where("id = ?", e.camp.ID).
		Update("status", campdomain.CampStatusActive).Error; err != nil {
		t.Fatalf("update camp: %v", err)
	}

	_, err := e.svc.Generate(context.Background(), domain.GenerateRequest{
		TenantID: e.tenant.ID,
		CampID:   e.camp.ID,
	})
	if !errors.Is(err, domain.ErrCampNotEligible) {
		t.Fatalf("expected ErrCampNotEligible, got %v", err)
	}
}

func TestGenerateUsesTenantRateOverride(t *testing.T) {
	e := newEnv(t)
	rate := 0.08
	if err := e.conn.Model(&tenantdomain.Tenant{}).Where("id = ?", e.tenant.ID).
		Update("royalty_rate", rate).Error; err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 45000, 0)

	invoice := e.generate(t)
	if invoice.RoyaltyRateBps != 800 {
		t.Fatalf("rate = %d, want 800", invoice.RoyaltyRateBps)
	}
	if invoice.RoyaltyDueCents != 3600 {
		t.Fatalf("royalty due = %d, want 3600", invoice.RoyaltyDueCents)
	}
}

func TestGenerateZeroRevenueCamp(t *testing.T) {
	e := newEnv(t)

	invoice := e.generate(t)
	if invoice.NetRevenueCents != 0 || invoice.RoyaltyDueCents != 0 {
		t.Fatalf("expected zero invoice, got net=%d due=%d", invoice.NetRevenueCents, invoice.RoyaltyDueCents)
	}
	if invoice.Status != domain.InvoiceStatusInvoiced {
		t.Fatalf("status = %s, want invoiced", invoice.Status)
	}
	if len(invoice.LineItems) != 0 {
		t.Fatalf("line items = %d, want 0", len(invoice.LineItems))
	}
}

func TestAddAdjustmentAccumulates(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 100000, 0)
	invoice := e.generate(t)

	ctx := context.Background()
	updated, err := e.svc.AddAdjustment(ctx, domain.AddAdjustmentRequest{
		InvoiceID:   invoice.ID,
		AmountCents: -1500,
		Note:        "damaged equipment credit",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if updated.AdjustmentCents != -1500 {
		t.Fatalf("adjustment = %d, want -1500", updated.AdjustmentCents)
	}
	if updated.TotalDueCents != invoice.RoyaltyDueCents-1500 {
		t.Fatalf("total due = %d, want %d", updated.TotalDueCents, invoice.RoyaltyDueCents-1500)
	}
	if !strings.Contains(updated.AdjustmentNotes, "damaged equipment credit") {
		t.Fatalf("notes missing entry: %q", updated.AdjustmentNotes)
	}

	updated, err = e.svc.AddAdjustment(ctx, domain.AddAdjustmentRequest{
		InvoiceID:   invoice.ID,
		AmountCents: 500,
		Note:        "late fee",
	})
	if err != nil {
		t.Fatalf("second adjust: %v", err)
	}
	if updated.AdjustmentCents != -1000 {
		t.Fatalf("adjustment = %d, want -1000", updated.AdjustmentCents)
	}
	if !strings.Contains(updated.AdjustmentNotes, "damaged equipment credit") || !strings.Contains(updated.AdjustmentNotes, "late fee") {
		t.Fatalf("notes not append-only: %q", updated.AdjustmentNotes)
	}
}

func TestAddAdjustmentRejectedOnSettledInvoice(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 100000, 0)
	invoice := e.generate(t)

	ctx := context.Background()
	if _, err := e.svc.MarkPaid(ctx, domain.MarkPaidRequest{
		InvoiceID:   invoice.ID,
		AmountCents: cents(invoice.TotalDueCents),
	}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	_, err := e.svc.AddAdjustment(ctx, domain.AddAdjustmentRequest{
		InvoiceID:   invoice.ID,
		AmountCents: 100,
	})
	if !errors.Is(err, domain.ErrInvoiceSettled) {
		t.Fatalf("expected ErrInvoiceSettled, got %v", err)
	}
}

func TestAddAdjustmentZeroAmount(t *testing.T) {
	e := newEnv(t)
	invoice := e.generate(t)

	_, err := e.svc.AddAdjustment(context.Background(), domain.AddAdjustmentRequest{
		InvoiceID: invoice.ID,
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMarkPaidPartialPaymentSettles(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 100000, 0)
	invoice := e.generate(t)

	paid, err := e.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{
		InvoiceID:        invoice.ID,
		AmountCents:      cents(invoice.TotalDueCents / 2),
		PaymentMethod:    "bank_transfer",
		PaymentReference: "TX-123",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}
	if paid.PaidAmountCents == nil || *paid.PaidAmountCents != invoice.TotalDueCents/2 {
		t.Fatalf("paid amount not recorded: %v", paid.PaidAmountCents)
	}
	if paid.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
	if paid.PaymentMethod == nil || *paid.PaymentMethod != "bank_transfer" {
		t.Fatalf("payment method not recorded: %v", paid.PaymentMethod)
	}
}

func TestMarkPaidTwiceConflicts(t *testing.T) {
	e := newEnv(t)
	invoice := e.generate(t)

	ctx := context.Background()
	if _, err := e.svc.MarkPaid(ctx, domain.MarkPaidRequest{InvoiceID: invoice.ID, AmountCents: cents(1)}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	_, err := e.svc.MarkPaid(ctx, domain.MarkPaidRequest{InvoiceID: invoice.ID, AmountCents: cents(1)})
	if !errors.Is(err, domain.ErrInvoiceSettled) {
		t.Fatalf("expected ErrInvoiceSettled, got %v", err)
	}
}

func TestMarkPaidDefaultsToTotalDue(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 100000, 0)
	invoice := e.generate(t)

	// No amount given: the invoice settles at its full total due.
	paid, err := e.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{InvoiceID: invoice.ID})
	if err != nil {
		t.Fatalf("pay with omitted amount: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}
	if paid.PaidAmountCents == nil || *paid.PaidAmountCents != invoice.TotalDueCents {
		t.Fatalf("paid amount = %v, want %d", paid.PaidAmountCents, invoice.TotalDueCents)
	}
}

func TestMarkPaidRejectsNonPositiveAmount(t *testing.T) {
	e := newEnv(t)
	invoice := e.generate(t)

	for _, amount := range []int64{0, -500} {
		_, err := e.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{
			InvoiceID:   invoice.ID,
			AmountCents: cents(amount),
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestMarkOverdueIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.addRegistration(t, "Avery", campdomain.RegistrationStatusConfirmed, 100000, 0)
	invoice := e.generate(t)

	ctx := context.Background()

	// Not yet due.
	count, err := e.svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 before due date", count)
	}

	e.clock.Advance(31 * 24 * time.Hour)

	count, err = e.svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	count, err = e.svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("mark overdue again: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 on repeat run", count)
	}

	got, err := e.svc.Get(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.InvoiceStatusOverdue {
		t.Fatalf("status = %s, want overdue", got.Status)
	}

	// An overdue invoice can still be paid.
	if _, err := e.svc.MarkPaid(ctx, domain.MarkPaidRequest{InvoiceID: invoice.ID, AmountCents: cents(got.TotalDueCents)}); err != nil {
		t.Fatalf("pay overdue invoice: %v", err)
	}
}

func TestUpdateStatusTransitionTable(t *testing.T) {
	e := newEnv(t)
	invoice := e.generate(t)

	ctx := context.Background()
	disputed, err := e.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		InvoiceID: invoice.ID,
		Status:    domain.InvoiceStatusDisputed,
		Note:      "tenant contests merchandise figure",
	})
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != domain.InvoiceStatusDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}

	_, err = e.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		InvoiceID: invoice.ID,
		Status:    domain.InvoiceStatusOverdue,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	waived, err := e.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		InvoiceID: invoice.ID,
		Status:    domain.InvoiceStatusWaived,
	})
	if err != nil {
		t.Fatalf("waive: %v", err)
	}
	if waived.Status != domain.InvoiceStatusWaived {
		t.Fatalf("status = %s, want waived", waived.Status)
	}

	_, err = e.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		InvoiceID: invoice.ID,
		Status:    domain.InvoiceStatusInvoiced,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected terminal waived to reject transitions, got %v", err)
	}
}

func TestWaivedCampCanBeReinvoiced(t *testing.T) {
	e := newEnv(t)
	invoice := e.generate(t)

	ctx := context.Background()
	if _, err := e.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		InvoiceID: invoice.ID,
		Status:    domain.InvoiceStatusWaived,
	}); err != nil {
		t.Fatalf("waive: %v", err)
	}

	// Manual regeneration after a waive is allowed; only open invoices block.
	// The clock has not moved, so the revision suffix must keep the invoice
	// number unique.
	second, err := e.svc.Generate(ctx, domain.GenerateRequest{
		TenantID: e.tenant.ID,
		CampID:   e.camp.ID,
	})
	if err != nil {
		t.Fatalf("regenerate after waive: %v", err)
	}
	if second.ID == invoice.ID {
		t.Fatal("expected a fresh invoice")
	}
	if second.InvoiceNumber == invoice.InvoiceNumber {
		t.Fatalf("invoice number %q reused", second.InvoiceNumber)
	}
	if !strings.HasSuffix(second.InvoiceNumber, "-R1") {
		t.Fatalf("invoice number %q missing revision suffix", second.InvoiceNumber)
	}
}

func TestGetUnknownInvoice(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Get(context.Background(), e.node.Generate())
	if !errors.Is(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Three invoices across three camps, generated at distinct times.
	invoice := e.generate(t)
	for i := 0; i < 2; i++ {
		e.clock.Advance(time.Minute)
		camp := campdomain.Camp{
			ID:        e.node.Generate(),
			TenantID:  e.tenant.ID,
			Name:      "Extra Week",
			Status:    campdomain.CampStatusCompleted,
			StartDate: e.camp.StartDate,
			EndDate:   e.camp.EndDate,
		}
		if err := e.conn.Create(&camp).Error; err != nil {
			t.Fatalf("seed camp: %v", err)
		}
		if _, err := e.svc.Generate(ctx, domain.GenerateRequest{TenantID: e.tenant.ID, CampID: camp.ID}); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	status := domain.InvoiceStatusInvoiced
	resp, err := e.svc.List(ctx, domain.ListInvoiceRequest{
		TenantID: &e.tenant.ID,
		Status:   &status,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Invoices) != 3 {
		t.Fatalf("invoices = %d, want 3", len(resp.Invoices))
	}

	// Page size 2 leaves one more page.
	page, err := e.svc.List(ctx, domain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page.Invoices) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Invoices))
	}
	if !page.HasMore || page.NextPageToken == "" {
		t.Fatal("expected another page")
	}

	rest, err := e.svc.List(ctx, domain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageToken: page.NextPageToken, PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Invoices) != 1 {
		t.Fatalf("rest = %d, want 1", len(rest.Invoices))
	}
	if rest.HasMore {
		t.Fatal("expected final page")
	}

	// Search by invoice number.
	found, err := e.svc.List(ctx, domain.ListInvoiceRequest{Search: invoice.InvoiceNumber})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found.Invoices) != 1 || found.Invoices[0].ID != invoice.ID {
		t.Fatalf("search returned %d invoices", len(found.Invoices))
	}
}
