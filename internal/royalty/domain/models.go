// Package domain contains persistence models and the rate math for royalty
// invoicing.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents royalty invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusInvoiced InvoiceStatus = "invoiced"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusOverdue  InvoiceStatus = "overdue"
	InvoiceStatusDisputed InvoiceStatus = "disputed"
	InvoiceStatusWaived   InvoiceStatus = "waived"
)

// Terminal reports whether no further transitions are allowed from s.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusWaived
}

// Open reports whether the invoice still counts against the one-outstanding-
// invoice-per-camp rule.
func (s InvoiceStatus) Open() bool {
	return !s.Terminal()
}

var transitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:  {InvoiceStatusInvoiced, InvoiceStatusWaived},
	InvoiceStatusInvoiced: {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusDisputed, InvoiceStatusWaived},
	InvoiceStatusOverdue:  {InvoiceStatusPaid, InvoiceStatusDisputed, InvoiceStatusWaived},
	InvoiceStatusDisputed: {InvoiceStatusPaid, InvoiceStatusWaived},
}

// CanTransition reports whether moving from one status to the next is legal.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PeriodType scopes what an invoice covers.
type PeriodType string

const (
	PeriodTypeCamp    PeriodType = "camp"
	PeriodTypeMonthly PeriodType = "monthly"
)

// RoyaltyInvoice is the bill issued to a tenant for one camp session (or
// period). All monetary fields are integer cents.
type RoyaltyInvoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceNumber string        `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	TenantID      snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	CampID        *snowflake.ID `gorm:"index" json:"camp_id,omitempty"`
	PeriodType    PeriodType    `gorm:"type:text;not null;default:'camp'" json:"period_type"`
	PeriodStart   time.Time     `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time     `gorm:"not null" json:"period_end"`

	RegistrationRevenueCents int64 `gorm:"not null;default:0" json:"registration_revenue_cents"`
	AddonRevenueCents        int64 `gorm:"not null;default:0" json:"addon_revenue_cents"`
	MerchandiseRevenueCents  int64 `gorm:"not null;default:0" json:"merchandise_revenue_cents"`
	GrossRevenueCents        int64 `gorm:"not null;default:0" json:"gross_revenue_cents"`
	RefundsTotalCents        int64 `gorm:"not null;default:0" json:"refunds_total_cents"`
	NetRevenueCents          int64 `gorm:"not null;default:0" json:"net_revenue_cents"`
	CamperCount              int64 `gorm:"not null;default:0" json:"camper_count"`

	RoyaltyRateBps  int64 `gorm:"not null" json:"royalty_rate_bps"`
	RoyaltyDueCents int64 `gorm:"not null;default:0" json:"royalty_due_cents"`

	AdjustmentCents int64  `gorm:"not null;default:0" json:"adjustment_cents"`
	AdjustmentNotes string `gorm:"type:text" json:"adjustment_notes,omitempty"`
	TotalDueCents   int64  `gorm:"not null;default:0" json:"total_due_cents"`

	Status      InvoiceStatus `gorm:"type:text;not null;default:'invoiced';index" json:"status"`
	DueDate     time.Time     `gorm:"not null;index" json:"due_date"`
	GeneratedAt time.Time     `gorm:"not null" json:"generated_at"`
	GeneratedBy *snowflake.ID `gorm:"index" json:"generated_by,omitempty"`

	// ReminderSentAt guards the due-soon reminder so repeated automation runs
	// do not spam the billing contact.
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	PaidAmountCents  *int64        `json:"paid_amount_cents,omitempty"`
	PaymentMethod    *string       `gorm:"type:text" json:"payment_method,omitempty"`
	PaymentReference *string       `gorm:"type:text" json:"payment_reference,omitempty"`
	PaidBy           *snowflake.ID `json:"paid_by,omitempty"`

	LineItems []RoyaltyLineItem `gorm:"foreignKey:InvoiceID" json:"line_items,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RoyaltyInvoice) TableName() string { return "royalty_invoices" }

// Line item categories.
const (
	LineItemCategoryRegistration = "registration"
	LineItemCategoryAddon        = "addon"
	LineItemCategoryMerchandise  = "merchandise"
)

// RoyaltyLineItem is one revenue line backing an invoice.
type RoyaltyLineItem struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID        snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Description      string       `gorm:"type:text;not null" json:"description"`
	Category         string       `gorm:"type:text;not null" json:"category"`
	Quantity         int64        `gorm:"not null;default:1" json:"quantity"`
	UnitAmountCents  int64        `gorm:"not null;default:0" json:"unit_amount_cents"`
	TotalAmountCents int64        `gorm:"not null;default:0" json:"total_amount_cents"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RoyaltyLineItem) TableName() string { return "royalty_line_items" }

var (
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceOutstanding = errors.New("invoice_outstanding")
	ErrInvoiceSettled     = errors.New("invoice_settled")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrCampNotEligible    = errors.New("camp_not_eligible")
)
