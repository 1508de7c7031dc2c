// Package domain contains the notification outbox model. The engine enqueues
// rows here; a dispatcher delivers them out of band so batch runs never block
// on (or fail because of) delivery.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents outbox delivery states.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Severity grades a notification for the receiving UI.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityUrgent  Severity = "urgent"
)

// Known notification types emitted by the royalty engine.
const (
	TypePaymentReminder = "royalty.payment_reminder"
	TypeOverdueSummary  = "royalty.overdue_summary"
	TypeInvoiceIssued   = "royalty.invoice_issued"
)

// Notification is one queued outbound message.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID      `gorm:"not null;index" json:"user_id"`
	TenantID  *snowflake.ID     `gorm:"index" json:"tenant_id,omitempty"`
	Type      string            `gorm:"type:text;not null" json:"type"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Body      string            `gorm:"type:text" json:"body"`
	Severity  Severity          `gorm:"type:text;not null;default:'info'" json:"severity"`
	ActionURL *string           `gorm:"type:text" json:"action_url,omitempty"`
	Status    Status            `gorm:"type:text;not null;default:'pending';index" json:"status"`
	Attempts  int               `gorm:"not null;default:0" json:"attempts"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// Request is the enqueue contract exposed to engine components.
type Request struct {
	UserID    snowflake.ID
	TenantID  *snowflake.ID
	Type      string
	Title     string
	Body      string
	Severity  Severity
	ActionURL *string
	Metadata  map[string]any
}

// Service enqueues notifications. Enqueue failures are logged, never
// propagated; delivery is at-least-once.
type Service interface {
	Notify(ctx context.Context, req Request)
}
