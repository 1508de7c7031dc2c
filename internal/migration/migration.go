// Package migration creates the schema on startup so the engine is usable
// out of the box for local and self-hosted deployments.
package migration

import (
	"errors"

	auditdomain "github.com/campforge/campforge/internal/audit/domain"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	royaltydomain "github.com/campforge/campforge/internal/royalty/domain"
	shopdomain "github.com/campforge/campforge/internal/shop/domain"
	snapshotdomain "github.com/campforge/campforge/internal/snapshot/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	userdomain "github.com/campforge/campforge/internal/user/domain"
	"gorm.io/gorm"
)

// RunMigrations migrates every table the engine owns and installs the
// one-open-invoice-per-camp guard index.
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	if err := db.AutoMigrate(
		&userdomain.User{},
		&tenantdomain.Tenant{},
		&campdomain.Camp{},
		&campdomain.Registration{},
		&campdomain.RegistrationAddon{},
		&shopdomain.ShopOrder{},
		&royaltydomain.RoyaltyInvoice{},
		&royaltydomain.RoyaltyLineItem{},
		&snapshotdomain.RevenueSnapshot{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	); err != nil {
		return err
	}

	return ensureOpenInvoiceIndex(db)
}

// ensureOpenInvoiceIndex creates the partial unique index enforcing at most
// one open invoice per camp. MySQL has no partial indexes; there the
// transactional check in the royalty service is the only guard.
func ensureOpenInvoiceIndex(db *gorm.DB) error {
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_royalty_invoices_open_camp
		 ON royalty_invoices (tenant_id, camp_id)
		 WHERE status NOT IN ('paid', 'waived')`,
	).Error
}
