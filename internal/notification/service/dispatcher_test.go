package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/migration"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	"github.com/campforge/campforge/internal/providers/email"
	userdomain "github.com/campforge/campforge/internal/user/domain"
	"github.com/campforge/campforge/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingProvider struct{}

func (p *failingProvider) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	return errors.New("smtp unreachable")
}

type env struct {
	conn  *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   notificationdomain.Service
}

func newEnv(t *testing.T, provider email.Provider) (*env, *Dispatcher) {
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
	log := zap.NewNop()

	e := &env{
		conn:  conn,
		node:  node,
		clock: fc,
		svc:   NewService(Params{DB: conn, Log: log, Clock: fc, GenID: node}),
	}
	dispatcher := NewDispatcher(DispatcherParams{DB: conn, Log: log, Clock: fc, Provider: provider})
	return e, dispatcher
}

func (e *env) seedUser(t *testing.T) userdomain.User {
	t.Helper()
	user := userdomain.User{
		ID:    e.node.Generate(),
		Email: "billing@example.com",
		Name:  "Billing",
		Role:  userdomain.RoleTenantAdmin,
	}
	if err := e.conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *env) loadRow(t *testing.T) notificationdomain.Notification {
	t.Helper()
	var row notificationdomain.Notification
	if err := e.conn.First(&row).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	return row
}

func TestProcessPendingDelivers(t *testing.T) {
	e, dispatcher := newEnv(t, &email.NoOpProvider{})
	ctx := context.Background()
	user := e.seedUser(t)

	e.svc.Notify(ctx, notificationdomain.Request{
		UserID: user.ID,
		Type:   notificationdomain.TypeInvoiceIssued,
		Title:  "Invoice issued",
		Body:   "A new royalty invoice is ready.",
	})

	// Outbox rows carry the injected clock's time, not wall time.
	row := e.loadRow(t)
	if !row.CreatedAt.Equal(e.clock.Now()) {
		t.Fatalf("created_at = %s, want %s", row.CreatedAt, e.clock.Now())
	}

	sent, err := dispatcher.ProcessPending(ctx, 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	row = e.loadRow(t)
	if row.Status != notificationdomain.StatusSent {
		t.Fatalf("status = %s, want sent", row.Status)
	}
	if row.SentAt == nil || !row.SentAt.Equal(e.clock.Now()) {
		t.Fatalf("sent_at = %v, want %s", row.SentAt, e.clock.Now())
	}
}

func TestProcessPendingSettlesMissingRecipient(t *testing.T) {
	e, dispatcher := newEnv(t, &email.NoOpProvider{})
	ctx := context.Background()

	// Recipient never existed; the row must settle as failed and not count
	// toward the delivered total.
	e.svc.Notify(ctx, notificationdomain.Request{
		UserID: e.node.Generate(),
		Type:   notificationdomain.TypePaymentReminder,
		Title:  "Reminder",
		Body:   "Invoice due soon.",
	})

	sent, err := dispatcher.ProcessPending(ctx, 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0 for undeliverable row", sent)
	}

	row := e.loadRow(t)
	if row.Status != notificationdomain.StatusFailed {
		t.Fatalf("status = %s, want failed", row.Status)
	}

	// Settled rows are not retried.
	sent, err = dispatcher.ProcessPending(ctx, 10)
	if err != nil {
		t.Fatalf("repeat process pending: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d on repeat run, want 0", sent)
	}
}

func TestProcessPendingRetriesProviderFailure(t *testing.T) {
	e, dispatcher := newEnv(t, &failingProvider{})
	ctx := context.Background()
	user := e.seedUser(t)

	e.svc.Notify(ctx, notificationdomain.Request{
		UserID: user.ID,
		Type:   notificationdomain.TypeInvoiceIssued,
		Title:  "Invoice issued",
		Body:   "A new royalty invoice is ready.",
	})

	sent, err := dispatcher.ProcessPending(ctx, 10)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}

	row := e.loadRow(t)
	if row.Status != notificationdomain.StatusPending {
		t.Fatalf("status = %s, want pending for retry", row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", row.Attempts)
	}
}
