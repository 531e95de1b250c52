package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

// OrderStatusHistory is the append-only audit log of order transitions. The
// webhook reconciler consults it to detect already-applied events.
type OrderStatusHistory struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	PreviousStatus        *enums.OrderStatus   `gorm:"column:previous_status;type:order_status"`
	NewStatus             enums.OrderStatus    `gorm:"column:new_status;type:order_status;not null"`
	PreviousPaymentStatus *enums.PaymentStatus `gorm:"column:previous_payment_status;type:payment_status"`
	NewPaymentStatus      enums.PaymentStatus  `gorm:"column:new_payment_status;type:payment_status;not null"`
	Actor                 string               `gorm:"column:actor;not null"`
	Note                  *string              `gorm:"column:note"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the singular table name; the default pluralization does not
// match the migration.
func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
