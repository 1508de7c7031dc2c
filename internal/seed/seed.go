// Package seed bootstraps development fixtures: an HQ admin, one tenant with
// a billing contact, a completed camp with confirmed registrations, and a few
// shop orders, so a fresh database produces an invoice on the first
// automation run.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	shopdomain "github.com/campforge/campforge/internal/shop/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	userdomain "github.com/campforge/campforge/internal/user/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantName   = "Pine Ridge Adventures"
	defaultTenantSlug   = "pine-ridge"
	defaultAdminEmail   = "hq@campforge.dev"
	defaultBillingEmail = "billing@pine-ridge.campforge.dev"
)

// EnsureDevFixtures is idempotent; it keys off the default tenant slug.
func EnsureDevFixtures(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenantdomain.Tenant
		err := tx.Where("slug = ?", defaultTenantSlug).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()

		admin := userdomain.User{
			ID:        node.Generate(),
			Email:     defaultAdminEmail,
			Name:      "CampForge HQ",
			Role:      userdomain.RoleHQAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}

		tenantID := node.Generate()
		billing := userdomain.User{
			ID:        node.Generate(),
			TenantID:  &tenantID,
			Email:     defaultBillingEmail,
			Name:      "Pine Ridge Billing",
			Role:      userdomain.RoleTenantAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&billing).Error; err != nil {
			return err
		}

		tenant := tenantdomain.Tenant{
			ID:            tenantID,
			Name:          defaultTenantName,
			Slug:          defaultTenantSlug,
			BillingEmail:  defaultBillingEmail,
			BillingUserID: &billing.ID,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		camp := campdomain.Camp{
			ID:        node.Generate(),
			TenantID:  tenant.ID,
			Name:      "Summer Trails Week 1",
			Status:    campdomain.CampStatusCompleted,
			StartDate: now.AddDate(0, 0, -21),
			EndDate:   now.AddDate(0, 0, -14),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&camp).Error; err != nil {
			return err
		}

		registrations := []campdomain.Registration{
			{
				ID:              node.Generate(),
				TenantID:        tenant.ID,
				CampID:          camp.ID,
				CamperName:      "Avery Miles",
				Status:          campdomain.RegistrationStatusConfirmed,
				TotalPriceCents: 45000,
				CreatedAt:       now.AddDate(0, 0, -30),
				UpdatedAt:       now,
			},
			{
				ID:               node.Generate(),
				TenantID:         tenant.ID,
				CampID:           camp.ID,
				CamperName:       "Jordan Lake",
				Status:           campdomain.RegistrationStatusConfirmed,
				TotalPriceCents:  52500,
				AddonsTotalCents: 7500,
				CreatedAt:        now.AddDate(0, 0, -29),
				UpdatedAt:        now,
			},
			{
				ID:              node.Generate(),
				TenantID:        tenant.ID,
				CampID:          camp.ID,
				CamperName:      "Riley Frost",
				Status:          campdomain.RegistrationStatusRefunded,
				TotalPriceCents: 45000,
				CreatedAt:       now.AddDate(0, 0, -28),
				UpdatedAt:       now,
			},
		}
		if err := tx.Create(&registrations).Error; err != nil {
			return err
		}

		addon := campdomain.RegistrationAddon{
			ID:             node.Generate(),
			RegistrationID: registrations[1].ID,
			Name:           "Kayaking excursion",
			Quantity:       1,
			PriceCents:     7500,
			CreatedAt:      now,
		}
		if err := tx.Create(&addon).Error; err != nil {
			return err
		}

		orders := []shopdomain.ShopOrder{
			{
				ID:         node.Generate(),
				TenantID:   tenant.ID,
				Status:     shopdomain.OrderStatusFulfilled,
				TotalCents: 5600,
				CreatedAt:  now.AddDate(0, 0, -18),
			},
			{
				ID:         node.Generate(),
				TenantID:   tenant.ID,
				Status:     shopdomain.OrderStatusCancelled,
				TotalCents: 1200,
				CreatedAt:  now.AddDate(0, 0, -17),
			},
		}
		return tx.Create(&orders).Error
	})
}
