// Package scheduler drives the royalty automation run: invoice generation,
// overdue sweeps, reminders, the weekly HQ summary, snapshot rolls and outbox
// dispatch. Steps are fault-isolated; one failing step never stops the rest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	notificationservice "github.com/campforge/campforge/internal/notification/service"
	obsmetrics "github.com/campforge/campforge/internal/observability/metrics"
	royaltydomain "github.com/campforge/campforge/internal/royalty/domain"
	snapshotdomain "github.com/campforge/campforge/internal/snapshot/domain"
	userdomain "github.com/campforge/campforge/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	RoyaltySvc  royaltydomain.Service
	SnapshotSvc snapshotdomain.Service
	Notifier    notificationdomain.Service
	Dispatcher  *notificationservice.Dispatcher

	BillingConfig *config.BillingConfigHolder
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	royaltySvc  royaltydomain.Service
	snapshotSvc snapshotdomain.Service
	notifier    notificationdomain.Service
	dispatcher  *notificationservice.Dispatcher
	billingCfg  *config.BillingConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.RoyaltySvc == nil || p.SnapshotSvc == nil || p.Notifier == nil ||
		p.Dispatcher == nil || p.BillingConfig == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		royaltySvc:  p.RoyaltySvc,
		snapshotSvc: p.SnapshotSvc,
		notifier:    p.Notifier,
		dispatcher:  p.Dispatcher,
		billingCfg:  p.BillingConfig,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.newJobRun(name)
	s.logJobStart(run)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(run)

	if err == nil {
		return nil
	}
	schedMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one full automation pass and reports what it did. Step
// failures land in the result's Errors list and the joined return error;
// callers surfacing the result over HTTP should treat it as a partial success.
func (s *Scheduler) RunOnce(parent context.Context) (RunResult, error) {
	result := RunResult{Timestamp: s.clock.Now().UTC()}

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(ctx context.Context, run *jobRun) error
	}{
		{"generate_invoices", 5 * time.Minute, func(ctx context.Context, run *jobRun) error {
			return s.GenerateInvoicesJob(ctx, run, &result)
		}},
		{"mark_overdue", 30 * time.Second, func(ctx context.Context, run *jobRun) error {
			return s.MarkOverdueJob(ctx, run, &result)
		}},
		{"due_soon_reminders", time.Minute, func(ctx context.Context, run *jobRun) error {
			return s.DueSoonRemindersJob(ctx, run, &result)
		}},
		{"weekly_summary", time.Minute, func(ctx context.Context, run *jobRun) error {
			return s.WeeklySummaryJob(ctx, run, &result)
		}},
		{"roll_snapshots", 5 * time.Minute, func(ctx context.Context, run *jobRun) error {
			return s.RollSnapshotsJob(ctx, run, &result)
		}},
		{"dispatch_notifications", 2 * time.Minute, func(ctx context.Context, run *jobRun) error {
			return s.DispatchNotificationsJob(ctx, run, &result)
		}},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if jobErr := s.runJob(parent, job.Name, job.Timeout, job.Run); jobErr != nil {
			result.addError(job.Name, errors.Unwrap(jobErr))
			err = errors.Join(err, jobErr)
		}
	}

	return result, err
}

// RunForever loops RunOnce on the configured interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means all jobs run (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// GenerateInvoicesJob issues invoices for completed camps of active tenants
// that have never been invoiced, capped per run. Per-camp failures are
// isolated; a camp that raced another generator is skipped quietly.
func (s *Scheduler) GenerateInvoicesJob(ctx context.Context, run *jobRun, result *RunResult) error {
	batchSize := s.billingCfg.Get().GenerateBatchSize

	var camps []campdomain.Camp
	if err := s.db.WithContext(ctx).
		Joins("JOIN tenants ON tenants.id = camps.tenant_id AND tenants.active = ?", true).
		Where("camps.status = ?", campdomain.CampStatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM royalty_invoices WHERE royalty_invoices.camp_id = camps.id)").
		Order("camps.end_date ASC").
		Limit(batchSize).
		Find(&camps).Error; err != nil {
		return err
	}

	var jobErr error
	for _, camp := range camps {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		_, err := s.royaltySvc.Generate(ctx, royaltydomain.GenerateRequest{
			TenantID: camp.TenantID,
			CampID:   camp.ID,
		})
		if err != nil {
			if errors.Is(err, royaltydomain.ErrInvoiceOutstanding) {
				continue
			}
			run.IncError()
			result.InvoicesFailed++
			jobErr = errors.Join(jobErr, fmt.Errorf("camp %s: %w", camp.ID, err))
			s.log.Warn("invoice generation failed",
				zap.String("camp_id", camp.ID.String()),
				zap.String("tenant_id", camp.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		run.AddProcessed(1)
		result.InvoicesGenerated++
	}

	obsmetrics.Scheduler().AddBatchProcessed("generate_invoices", "royalty_invoice", result.InvoicesGenerated)
	return jobErr
}

// MarkOverdueJob sweeps invoiced invoices past their due date.
func (s *Scheduler) MarkOverdueJob(ctx context.Context, run *jobRun, result *RunResult) error {
	count, err := s.royaltySvc.MarkOverdue(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(int(count))
	result.InvoicesMarkedOverdue = int(count)
	obsmetrics.Scheduler().AddBatchProcessed("mark_overdue", "royalty_invoice", int(count))
	return nil
}

type dueSoonRow struct {
	royaltydomain.RoyaltyInvoice
	BillingUserID *snowflake.ID `gorm:"column:billing_user_id"`
}

// DueSoonRemindersJob enqueues a payment reminder for each invoiced invoice
// whose due date falls inside the configured window. One reminder per
// invoice, guarded by reminder_sent_at.
func (s *Scheduler) DueSoonRemindersJob(ctx context.Context, run *jobRun, result *RunResult) error {
	now := s.clock.Now().UTC()
	window := now.AddDate(0, 0, s.billingCfg.Get().DueSoonWindowDays)

	var rows []dueSoonRow
	if err := s.db.WithContext(ctx).
		Table("royalty_invoices").
		Select("royalty_invoices.*, tenants.billing_user_id").
		Joins("JOIN tenants ON tenants.id = royalty_invoices.tenant_id").
		Where("royalty_invoices.status = ?", royaltydomain.InvoiceStatusInvoiced).
		Where("royalty_invoices.reminder_sent_at IS NULL").
		Where("royalty_invoices.due_date >= ? AND royalty_invoices.due_date < ?", now, window).
		Order("royalty_invoices.due_date ASC").
		Find(&rows).Error; err != nil {
		return err
	}

	var jobErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if row.BillingUserID == nil {
			continue
		}

		tenantID := row.TenantID
		daysLeft := int(row.DueDate.Sub(now).Hours() / 24)
		s.notifier.Notify(ctx, notificationdomain.Request{
			UserID:   *row.BillingUserID,
			TenantID: &tenantID,
			Type:     notificationdomain.TypePaymentReminder,
			Title:    fmt.Sprintf("Royalty invoice %s due soon", row.InvoiceNumber),
			Body: fmt.Sprintf("Invoice %s for %s is due in %d day(s).",
				row.InvoiceNumber, formatCents(row.TotalDueCents), daysLeft),
			Severity: notificationdomain.SeverityWarning,
			Metadata: map[string]any{
				"invoice_id": row.ID.String(),
				"due_date":   row.DueDate.Format(time.RFC3339),
			},
		})

		if err := s.db.WithContext(ctx).Model(&royaltydomain.RoyaltyInvoice{}).
			Where("id = ?", row.ID).
			Update("reminder_sent_at", now).Error; err != nil {
			run.IncError()
			jobErr = errors.Join(jobErr, fmt.Errorf("invoice %s: %w", row.ID, err))
			continue
		}
		run.AddProcessed(1)
		result.DueSoonReminders++
	}

	obsmetrics.Scheduler().AddBatchProcessed("due_soon_reminders", "notification", result.DueSoonReminders)
	return jobErr
}

// WeeklySummaryJob sends HQ admins an overdue rollup on the configured
// weekday. At most one summary per day regardless of how often the
// automation runs.
func (s *Scheduler) WeeklySummaryJob(ctx context.Context, run *jobRun, result *RunResult) error {
	now := s.clock.Now().UTC()
	billing := s.billingCfg.Get()
	if int(now.Weekday()) != billing.WeeklySummaryWeekday {
		return nil
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var alreadySent int64
	if err := s.db.WithContext(ctx).Model(&notificationdomain.Notification{}).
		Where("type = ? AND created_at >= ?", notificationdomain.TypeOverdueSummary, startOfDay).
		Count(&alreadySent).Error; err != nil {
		return err
	}
	if alreadySent > 0 {
		return nil
	}

	var overdue []royaltydomain.RoyaltyInvoice
	if err := s.db.WithContext(ctx).
		Where("status = ?", royaltydomain.InvoiceStatusOverdue).
		Order("due_date ASC").
		Find(&overdue).Error; err != nil {
		return err
	}
	if len(overdue) == 0 {
		return nil
	}

	var totalDue int64
	bucketCounts := make([]int, len(billing.AgingBuckets))
	tenants := map[snowflake.ID]struct{}{}
	for _, inv := range overdue {
		totalDue += inv.TotalDueCents
		tenants[inv.TenantID] = struct{}{}
		days := int(now.Sub(inv.DueDate).Hours() / 24)
		for i, bucket := range billing.AgingBuckets {
			if days >= bucket.MinDays && (bucket.MaxDays == nil || days <= *bucket.MaxDays) {
				bucketCounts[i]++
				break
			}
		}
	}

	var aging strings.Builder
	for i, bucket := range billing.AgingBuckets {
		if i > 0 {
			aging.WriteString(", ")
		}
		fmt.Fprintf(&aging, "%s days: %d", bucket.Label, bucketCounts[i])
	}

	var admins []userdomain.User
	if err := s.db.WithContext(ctx).
		Where("role = ?", userdomain.RoleHQAdmin).
		Find(&admins).Error; err != nil {
		return err
	}

	for _, admin := range admins {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.notifier.Notify(ctx, notificationdomain.Request{
			UserID:   admin.ID,
			Type:     notificationdomain.TypeOverdueSummary,
			Title:    fmt.Sprintf("Weekly royalty summary: %d overdue invoice(s)", len(overdue)),
			Body: fmt.Sprintf("%d invoice(s) across %d tenant(s) are overdue for a total of %s. Aging: %s.",
				len(overdue), len(tenants), formatCents(totalDue), aging.String()),
			Severity: notificationdomain.SeverityUrgent,
			Metadata: map[string]any{
				"overdue_count":   len(overdue),
				"tenant_count":    len(tenants),
				"total_due_cents": totalDue,
			},
		})
		run.AddProcessed(1)
	}

	return nil
}

// RollSnapshotsJob upserts the current month's revenue snapshots.
func (s *Scheduler) RollSnapshotsJob(ctx context.Context, run *jobRun, result *RunResult) error {
	rolled, err := s.snapshotSvc.RollCurrentPeriod(ctx)
	run.AddProcessed(int(rolled))
	result.SnapshotsRolled = int(rolled)
	obsmetrics.Scheduler().AddBatchProcessed("roll_snapshots", "revenue_snapshot", int(rolled))
	return err
}

// DispatchNotificationsJob drains the notification outbox.
func (s *Scheduler) DispatchNotificationsJob(ctx context.Context, run *jobRun, result *RunResult) error {
	sent, err := s.dispatcher.ProcessPending(ctx, s.cfg.DispatchBatchSize)
	run.AddProcessed(sent)
	result.NotificationsSent = sent
	obsmetrics.Scheduler().AddBatchProcessed("dispatch_notifications", "notification", sent)
	return err
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
