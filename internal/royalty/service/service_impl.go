package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campforge/campforge/internal/audit/domain"
	campdomain "github.com/campforge/campforge/internal/camp/domain"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	"github.com/campforge/campforge/internal/revenue"
	"github.com/campforge/campforge/internal/royalty/domain"
	tenantdomain "github.com/campforge/campforge/internal/tenant/domain"
	"github.com/campforge/campforge/pkg/db/option"
	"github.com/campforge/campforge/pkg/db/pagination"
	"github.com/campforge/campforge/pkg/repository"
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
	AuditSvc   auditdomain.Service        `optional:"true"`
	Notifier   notificationdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	aggregator *revenue.Aggregator
	auditSvc   auditdomain.Service
	notifier   notificationdomain.Service

	invoicerepo repository.Repository[domain.RoyaltyInvoice]

	defaultRateBps int64
	dueInDays      int
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("royalty.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		aggregator: p.Aggregator,
		auditSvc:   p.AuditSvc,
		notifier:   p.Notifier,

		invoicerepo: repository.ProvideStore[domain.RoyaltyInvoice](p.DB),

		defaultRateBps: p.Cfg.DefaultRoyaltyRateBps,
		dueInDays:      p.Cfg.InvoiceDueInDays,
	}
}

// Generate issues the royalty invoice for a completed camp session. The
// one-outstanding-invoice-per-camp rule is enforced twice: a transactional
// existence check, and the partial unique index the insert runs against with
// ON CONFLICT DO NOTHING. Repeat calls return ErrInvoiceOutstanding.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.RoyaltyInvoice, error) {
	if req.TenantID == 0 || req.CampID == 0 {
		return nil, tenantdomain.ErrInvalidTenant
	}

	var tenant tenantdomain.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", req.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}

	var camp campdomain.Camp
	if err := s.db.WithContext(ctx).First(&camp, "id = ? AND tenant_id = ?", req.CampID, req.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, campdomain.ErrNotFound
		}
		return nil, err
	}
	if camp.Status != campdomain.CampStatusCompleted {
		return nil, domain.ErrCampNotEligible
	}

	breakdown, err := s.aggregator.Aggregate(ctx, req.TenantID, req.CampID)
	if err != nil {
		return nil, err
	}

	var registrations []campdomain.Registration
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND camp_id = ? AND status = ?", req.TenantID, req.CampID, campdomain.RegistrationStatusConfirmed).
		Order("created_at ASC").
		Find(&registrations).Error; err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	rateBps := tenant.RoyaltyRateBps(s.defaultRateBps)
	royaltyDue := domain.RoyaltyDue(breakdown.Net(), rateBps)

	// Waived camps can be re-invoiced within the same second; the revision
	// suffix keeps the number unique without losing the timestamp.
	var prior int64
	if err := s.db.WithContext(ctx).Model(&domain.RoyaltyInvoice{}).
		Where("tenant_id = ? AND camp_id = ?", req.TenantID, req.CampID).
		Count(&prior).Error; err != nil {
		return nil, err
	}
	invoiceNumber := fmt.Sprintf("ROY-%s-%s-%s", req.TenantID, req.CampID, now.Format("20060102150405"))
	if prior > 0 {
		invoiceNumber = fmt.Sprintf("%s-R%d", invoiceNumber, prior)
	}

	campID := req.CampID
	invoice := &domain.RoyaltyInvoice{
		ID:            s.genID.Generate(),
		InvoiceNumber: invoiceNumber,
		TenantID:      req.TenantID,
		CampID:        &campID,
		PeriodType:    domain.PeriodTypeCamp,
		PeriodStart:   camp.StartDate,
		PeriodEnd:     camp.EndDate,

		RegistrationRevenueCents: breakdown.RegistrationRevenueCents,
		AddonRevenueCents:        breakdown.AddonRevenueCents,
		MerchandiseRevenueCents:  breakdown.MerchandiseRevenueCents,
		GrossRevenueCents:        breakdown.Gross(),
		RefundsTotalCents:        breakdown.RefundsTotalCents,
		NetRevenueCents:          breakdown.Net(),
		CamperCount:              breakdown.CamperCount,

		RoyaltyRateBps:  rateBps,
		RoyaltyDueCents: royaltyDue,
		TotalDueCents:   royaltyDue,

		Status:      domain.InvoiceStatusInvoiced,
		DueDate:     now.AddDate(0, 0, s.dueInDays),
		GeneratedAt: now,
		GeneratedBy: req.GeneratedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	items := s.buildLineItems(invoice.ID, breakdown, registrations, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&domain.RoyaltyInvoice{}).
			Where("tenant_id = ? AND camp_id = ? AND status NOT IN ?",
				req.TenantID, req.CampID,
				[]domain.InvoiceStatus{domain.InvoiceStatusPaid, domain.InvoiceStatusWaived}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrInvoiceOutstanding
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(invoice)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent generator.
			return domain.ErrInvoiceOutstanding
		}

		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items

	s.log.Info("royalty invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("camp_id", req.CampID.String()),
		zap.Int64("net_revenue_cents", invoice.NetRevenueCents),
		zap.Int64("royalty_due_cents", invoice.RoyaltyDueCents),
	)

	s.emitAudit(ctx, invoice, req.GeneratedBy, "royalty_invoice.generated", map[string]any{
		"invoice_number":    invoice.InvoiceNumber,
		"net_revenue_cents": invoice.NetRevenueCents,
		"royalty_rate_bps":  invoice.RoyaltyRateBps,
		"total_due_cents":   invoice.TotalDueCents,
	})

	if s.notifier != nil && tenant.BillingUserID != nil {
		tenantID := tenant.ID
		s.notifier.Notify(ctx, notificationdomain.Request{
			UserID:   *tenant.BillingUserID,
			TenantID: &tenantID,
			Type:     notificationdomain.TypeInvoiceIssued,
			Title:    fmt.Sprintf("Royalty invoice %s issued", invoice.InvoiceNumber),
			Body: fmt.Sprintf("A royalty invoice for %s totaling %s is due by %s.",
				camp.Name, formatCents(invoice.TotalDueCents), invoice.DueDate.Format("2006-01-02")),
			Severity: notificationdomain.SeverityInfo,
			Metadata: map[string]any{
				"invoice_id":      invoice.ID.String(),
				"total_due_cents": invoice.TotalDueCents,
			},
		})
	}

	return invoice, nil
}

func (s *Service) buildLineItems(invoiceID snowflake.ID, breakdown revenue.Breakdown, registrations []campdomain.Registration, now time.Time) []domain.RoyaltyLineItem {
	items := make([]domain.RoyaltyLineItem, 0, len(registrations)+2)
	for _, reg := range registrations {
		base := reg.TotalPriceCents - reg.AddonsTotalCents
		name := strings.TrimSpace(reg.CamperName)
		if name == "" {
			name = reg.ID.String()
		}
		items = append(items, domain.RoyaltyLineItem{
			ID:               s.genID.Generate(),
			InvoiceID:        invoiceID,
			Description:      fmt.Sprintf("Registration: %s", name),
			Category:         domain.LineItemCategoryRegistration,
			Quantity:         1,
			UnitAmountCents:  base,
			TotalAmountCents: base,
			CreatedAt:        now,
		})
	}
	if breakdown.AddonRevenueCents != 0 {
		items = append(items, domain.RoyaltyLineItem{
			ID:               s.genID.Generate(),
			InvoiceID:        invoiceID,
			Description:      "Add-on purchases",
			Category:         domain.LineItemCategoryAddon,
			Quantity:         1,
			UnitAmountCents:  breakdown.AddonRevenueCents,
			TotalAmountCents: breakdown.AddonRevenueCents,
			CreatedAt:        now,
		})
	}
	if breakdown.MerchandiseRevenueCents != 0 {
		items = append(items, domain.RoyaltyLineItem{
			ID:               s.genID.Generate(),
			InvoiceID:        invoiceID,
			Description:      "Merchandise sales",
			Category:         domain.LineItemCategoryMerchandise,
			Quantity:         1,
			UnitAmountCents:  breakdown.MerchandiseRevenueCents,
			TotalAmountCents: breakdown.MerchandiseRevenueCents,
			CreatedAt:        now,
		})
	}
	return items
}

// AddAdjustment applies a signed credit or debit to an open invoice and
// recomputes the total due. Notes are append-only.
func (s *Service) AddAdjustment(ctx context.Context, req domain.AddAdjustmentRequest) (*domain.RoyaltyInvoice, error) {
	if req.AmountCents == 0 {
		return nil, domain.ErrInvalidAmount
	}

	invoice, err := s.load(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status.Terminal() {
		return nil, domain.ErrInvoiceSettled
	}

	now := s.clock.Now().UTC()
	adjustment := invoice.AdjustmentCents + req.AmountCents
	totalDue := invoice.RoyaltyDueCents + adjustment

	entry := fmt.Sprintf("[%s] %+d cents", now.Format(time.RFC3339), req.AmountCents)
	if note := strings.TrimSpace(req.Note); note != "" {
		entry = entry + ": " + note
	}
	notes := invoice.AdjustmentNotes
	if notes != "" {
		notes += "\n"
	}
	notes += entry

	if err := s.db.WithContext(ctx).Model(&domain.RoyaltyInvoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"adjustment_cents": adjustment,
			"adjustment_notes": notes,
			"total_due_cents":  totalDue,
			"updated_at":       now,
		}).Error; err != nil {
		return nil, err
	}

	s.emitAudit(ctx, invoice, req.ActorID, "royalty_invoice.adjusted", map[string]any{
		"amount_cents":    req.AmountCents,
		"total_due_cents": totalDue,
		"note":            req.Note,
	})

	return s.Get(ctx, invoice.ID)
}

// MarkPaid settles the invoice. An omitted amount settles at the full total
// due; any positive amount closes it, with underpayments recorded as-is and
// logged rather than leaving the invoice open.
func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (*domain.RoyaltyInvoice, error) {
	if req.AmountCents != nil && *req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	invoice, err := s.load(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status.Terminal() {
		return nil, domain.ErrInvoiceSettled
	}
	if !domain.CanTransition(invoice.Status, domain.InvoiceStatusPaid) {
		return nil, domain.ErrInvalidTransition
	}

	amount := invoice.TotalDueCents
	if req.AmountCents != nil {
		amount = *req.AmountCents
	}

	now := s.clock.Now().UTC()
	if amount < invoice.TotalDueCents {
		s.log.Warn("partial payment settles invoice",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int64("total_due_cents", invoice.TotalDueCents),
			zap.Int64("paid_amount_cents", amount),
		)
	}

	updates := map[string]any{
		"status":            domain.InvoiceStatusPaid,
		"paid_at":           now,
		"paid_amount_cents": amount,
		"updated_at":        now,
	}
	if method := strings.TrimSpace(req.PaymentMethod); method != "" {
		updates["payment_method"] = method
	}
	if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
		updates["payment_reference"] = ref
	}
	if req.PaidBy != nil {
		updates["paid_by"] = *req.PaidBy
	}

	if err := s.db.WithContext(ctx).Model(&domain.RoyaltyInvoice{}).
		Where("id = ?", invoice.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	s.emitAudit(ctx, invoice, req.PaidBy, "royalty_invoice.paid", map[string]any{
		"paid_amount_cents": amount,
		"total_due_cents":   invoice.TotalDueCents,
		"payment_method":    req.PaymentMethod,
	})

	return s.Get(ctx, invoice.ID)
}

// UpdateStatus performs an admin transition subject to the transition table.
func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (*domain.RoyaltyInvoice, error) {
	switch req.Status {
	case domain.InvoiceStatusPending, domain.InvoiceStatusInvoiced, domain.InvoiceStatusPaid,
		domain.InvoiceStatusOverdue, domain.InvoiceStatusDisputed, domain.InvoiceStatusWaived:
	default:
		return nil, domain.ErrInvalidTransition
	}

	invoice, err := s.load(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(invoice.Status, req.Status) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now().UTC()
	updates := map[string]any{
		"status":     req.Status,
		"updated_at": now,
	}
	if req.Status == domain.InvoiceStatusPaid {
		updates["paid_at"] = now
	}

	if err := s.db.WithContext(ctx).Model(&domain.RoyaltyInvoice{}).
		Where("id = ?", invoice.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	s.emitAudit(ctx, invoice, req.ActorID, "royalty_invoice.status_changed", map[string]any{
		"from": string(invoice.Status),
		"to":   string(req.Status),
		"note": req.Note,
	})

	return s.Get(ctx, invoice.ID)
}

// MarkOverdue flips every invoiced invoice past its due date to overdue in a
// single statement. Already-overdue rows are untouched, so repeat runs are
// no-ops. Returns the number flipped.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	res := s.db.WithContext(ctx).Model(&domain.RoyaltyInvoice{}).
		Where("status = ? AND due_date < ?", domain.InvoiceStatusInvoiced, now).
		Updates(map[string]any{
			"status":     domain.InvoiceStatusOverdue,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Get returns the invoice with its line items.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.RoyaltyInvoice, error) {
	var invoice domain.RoyaltyInvoice
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

var listSortAllow = map[string]bool{
	"created_at":      true,
	"due_date":        true,
	"period_start":    true,
	"total_due_cents": true,
	"invoice_number":  true,
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	filter := &domain.RoyaltyInvoice{}
	if req.TenantID != nil {
		filter.TenantID = *req.TenantID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: req.SortBy, Desc: req.SortDesc, Allow: listSortAllow}),
		option.WithLimit(limit + 1),
	}
	if req.PeriodFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "period_start",
			Operator: option.GTE,
			Value:    *req.PeriodFrom,
		}))
	}
	if req.PeriodTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "period_end",
			Operator: option.LTE,
			Value:    *req.PeriodTo,
		}))
	}
	if req.Search != "" {
		options = append(options, option.WithSearch("invoice_number", req.Search))
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		if cursor.CreatedAt != "" {
			createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				return domain.ListInvoiceResponse{}, err
			}
			op := option.GT
			if req.SortDesc {
				op = option.LT
			}
			options = append(options, option.ApplyOperator(option.Condition{
				Field:    "created_at",
				Operator: op,
				Value:    createdAt,
			}))
		}
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, limit, func(inv *domain.RoyaltyInvoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]domain.RoyaltyInvoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.RoyaltyInvoice, error) {
	var invoice domain.RoyaltyInvoice
	err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) emitAudit(ctx context.Context, invoice *domain.RoyaltyInvoice, actorID *snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	tenantID := invoice.TenantID
	actorType := "system"
	var actor *string
	if actorID != nil {
		actorType = "user"
		str := actorID.String()
		actor = &str
	}
	targetID := invoice.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &tenantID, actorType, actor, action, "royalty_invoice", &targetID, metadata); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
