package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/pkg/db/pagination"
)

// GenerateRequest asks for an invoice covering one camp session.
type GenerateRequest struct {
	TenantID    snowflake.ID  `json:"tenant_id"`
	CampID      snowflake.ID  `json:"camp_id"`
	GeneratedBy *snowflake.ID `json:"generated_by,omitempty"`
}

// AddAdjustmentRequest applies a signed credit or debit to an open invoice.
type AddAdjustmentRequest struct {
	InvoiceID   snowflake.ID  `json:"-"`
	AmountCents int64         `json:"amount_cents"`
	Note        string        `json:"note"`
	ActorID     *snowflake.ID `json:"-"`
}

// MarkPaidRequest settles an invoice. A nil AmountCents settles at the
// invoice's full TotalDueCents.
type MarkPaidRequest struct {
	InvoiceID        snowflake.ID  `json:"-"`
	AmountCents      *int64        `json:"amount_cents"`
	PaymentMethod    string        `json:"payment_method"`
	PaymentReference string        `json:"payment_reference"`
	PaidBy           *snowflake.ID `json:"-"`
}

// UpdateStatusRequest performs an admin transition (dispute, waive, reissue).
type UpdateStatusRequest struct {
	InvoiceID snowflake.ID  `json:"-"`
	Status    InvoiceStatus `json:"status"`
	Note      string        `json:"note"`
	ActorID   *snowflake.ID `json:"-"`
}

// ListInvoiceRequest filters and pages the invoice list.
type ListInvoiceRequest struct {
	pagination.Pagination
	TenantID   *snowflake.ID
	Status     *InvoiceStatus
	PeriodFrom *time.Time
	PeriodTo   *time.Time
	Search     string
	SortBy     string
	SortDesc   bool
}

// ListInvoiceResponse is a page of invoices.
type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []RoyaltyInvoice `json:"invoices"`
}

// Service manages the royalty invoice lifecycle.
type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*RoyaltyInvoice, error)
	AddAdjustment(ctx context.Context, req AddAdjustmentRequest) (*RoyaltyInvoice, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (*RoyaltyInvoice, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*RoyaltyInvoice, error)
	MarkOverdue(ctx context.Context) (int64, error)
	Get(ctx context.Context, id snowflake.ID) (*RoyaltyInvoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
}
