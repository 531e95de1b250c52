package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	"github.com/dmcastellanos/storefront-backend/pkg/types"
)

// Order is the checkout aggregate. Money fields are minor units; the row is
// never deleted, terminal states are soft.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string                  `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	Email             string                  `gorm:"column:email;not null"`
	Status            enums.OrderStatus       `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'unfulfilled'"`
	Currency          string                  `gorm:"column:currency;not null;default:'USD'"`
	SubtotalCents     int64                   `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int64                   `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents     int64                   `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents          int64                   `gorm:"column:tax_cents;not null;default:0"`
	GiftCardCents     int64                   `gorm:"column:gift_card_cents;not null;default:0"`
	GrandTotalCents   int64                   `gorm:"column:grand_total_cents;not null"`
	RefundedCents     int64                   `gorm:"column:refunded_cents;not null;default:0"`
	CouponCode        *string                 `gorm:"column:coupon_code"`
	GiftCardCode      *string                 `gorm:"column:gift_card_code"`
	ShippingAddress   *types.Address          `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentProvider   string                  `gorm:"column:payment_provider;not null;default:'paypal'"`
	ProviderOrderID   *string                 `gorm:"column:provider_order_id;uniqueIndex:ux_orders_provider_order_id"`
	CaptureID         *string                 `gorm:"column:capture_id"`
	Items             []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory     []OrderStatusHistory    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingCents is the capturable balance still held against the order.
func (o *Order) RemainingCents() int64 {
	remaining := o.GrandTotalCents - o.RefundedCents
	if remaining < 0 {
		return 0
	}
	return remaining
}
