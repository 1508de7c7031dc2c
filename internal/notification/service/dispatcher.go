package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/campforge/campforge/internal/clock"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	"github.com/campforge/campforge/internal/providers/email"
	userdomain "github.com/campforge/campforge/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDeliveryAttempts = 5

type DispatcherParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Provider email.Provider
}

// Dispatcher drains the notification outbox through the email provider.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	provider email.Provider
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:       p.DB,
		log:      p.Log.Named("notification.dispatcher"),
		clock:    p.Clock,
		provider: p.Provider,
	}
}

// ProcessPending delivers up to limit pending notifications, oldest first.
// Each row is settled independently; one bad address never blocks the rest.
// Returns the number delivered.
func (d *Dispatcher) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []notificationdomain.Notification
	if err := d.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", notificationdomain.StatusPending, maxDeliveryAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return 0, err
	}

	sent := 0
	var jobErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		delivered, err := d.deliver(ctx, row)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			d.log.Warn("notification delivery failed",
				zap.String("notification_id", row.ID.String()),
				zap.String("type", row.Type),
				zap.Error(err),
			)
			continue
		}
		if delivered {
			sent++
		}
	}

	return sent, jobErr
}

// deliver reports whether the row was actually handed to the provider. A row
// settled as undeliverable returns (false, nil).
func (d *Dispatcher) deliver(ctx context.Context, row notificationdomain.Notification) (bool, error) {
	var user userdomain.User
	err := d.db.WithContext(ctx).First(&user, "id = ?", row.UserID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Recipient gone; settle the row so it stops retrying.
			return false, d.markFailed(ctx, row, "recipient_not_found")
		}
		return false, err
	}

	body := row.Body
	if row.ActionURL != nil && *row.ActionURL != "" {
		body = fmt.Sprintf("%s<br/><a href=%q>View invoice</a>", body, *row.ActionURL)
	}

	if err := d.provider.Send(ctx, []string{user.Email}, row.Title, body); err != nil {
		attempts := row.Attempts + 1
		status := notificationdomain.StatusPending
		if attempts >= maxDeliveryAttempts {
			status = notificationdomain.StatusFailed
		}
		if updErr := d.db.WithContext(ctx).Model(&notificationdomain.Notification{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{"attempts": attempts, "status": status}).Error; updErr != nil {
			return false, errors.Join(err, updErr)
		}
		return false, err
	}

	now := d.clock.Now().UTC()
	err = d.db.WithContext(ctx).Model(&notificationdomain.Notification{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":   notificationdomain.StatusSent,
			"attempts": row.Attempts + 1,
			"sent_at":  now,
		}).Error
	return err == nil, err
}

func (d *Dispatcher) markFailed(ctx context.Context, row notificationdomain.Notification, reason string) error {
	d.log.Warn("settling undeliverable notification",
		zap.String("notification_id", row.ID.String()),
		zap.String("reason", reason),
	)
	return d.db.WithContext(ctx).Model(&notificationdomain.Notification{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":   notificationdomain.StatusFailed,
			"attempts": row.Attempts + 1,
		}).Error
}
