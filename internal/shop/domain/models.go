// Package domain contains persistence models for ancillary shop orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus represents shop order states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CompletedStatuses are the states that count as a completed sale for
// merchandise revenue.
var CompletedStatuses = []OrderStatus{OrderStatusPaid, OrderStatusFulfilled}

// ShopOrder is a merchandise/upsell sale by a tenant's shop.
type ShopOrder struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Status     OrderStatus  `gorm:"type:text;not null;default:'pending';index" json:"status"`
	TotalCents int64        `gorm:"not null;default:0" json:"total_cents"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ShopOrder) TableName() string { return "shop_orders" }
