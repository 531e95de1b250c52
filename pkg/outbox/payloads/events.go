package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order awaiting payment.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	Email           string    `json:"email"`
	GrandTotalCents int64     `json:"grand_total_cents"`
	Currency        string    `json:"currency"`
}

// OrderPaidEvent is emitted once a capture settles an order.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Email         string    `json:"email"`
	CaptureID     string    `json:"capture_id"`
	CapturedCents int64     `json:"captured_cents"`
	GiftCardCents int64     `json:"gift_card_cents"`
	Source        string    `json:"source"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderCaptureFailedEvent reports a declined or failed capture attempt.
type OrderCaptureFailedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
	Source      string    `json:"source"`
}

// OrderRefundedEvent carries the amounts moved back to the payer.
type OrderRefundedEvent struct {
	OrderID            uuid.UUID           `json:"order_id"`
	OrderNumber        string              `json:"order_number"`
	Email              string              `json:"email"`
	RefundedCents      int64               `json:"refunded_cents"`
	TotalRefundedCents int64               `json:"total_refunded_cents"`
	ProviderRefundID   string              `json:"provider_refund_id,omitempty"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	Restocked          bool                `json:"restocked"`
}

// OrderCancelledEvent is emitted when a pending order is closed unpaid.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}
