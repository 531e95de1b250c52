package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/api/responses"
	"github.com/dmcastellanos/storefront-backend/api/validators"
	"github.com/dmcastellanos/storefront-backend/internal/catalog"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/types"
)

// CheckoutService is the slice of the settlement orchestrator the order
// controllers need.
type CheckoutService interface {
	Checkout(ctx context.Context, input payments.CheckoutInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
}

// CreateOrder prices the submitted cart and persists a pending order.
func CreateOrder(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// GetOrder returns the full order aggregate.
func GetOrder(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder voids an order that was never captured.
func CancelOrder(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			reason = "cancelled by customer"
		}

		order, err := svc.Cancel(r.Context(), orderID, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

type createOrderRequest struct {
	Email           string            `json:"email" validate:"required,email"`
	Currency        string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	CouponCode      *string           `json:"coupon_code,omitempty" validate:"omitempty,min=1"`
	GiftCardCode    *string           `json:"gift_card_code,omitempty" validate:"omitempty,min=1"`
	ShippingAddress *addressPayload   `json:"shipping_address,omitempty"`
	Items           []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

type createOrderItem struct {
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	VariationID *uuid.UUID `json:"variation_id,omitempty"`
	Quantity    int        `json:"quantity" validate:"required,gt=0"`
}

type addressPayload struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required,len=2"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=255"`
}

func (p createOrderRequest) toInput() payments.CheckoutInput {
	lines := make([]catalog.CartLine, 0, len(p.Items))
	for _, item := range p.Items {
		lines = append(lines, catalog.CartLine{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
		})
	}

	var address *types.Address
	if p.ShippingAddress != nil {
		address = &types.Address{
			Line1:      p.ShippingAddress.Line1,
			Line2:      p.ShippingAddress.Line2,
			City:       p.ShippingAddress.City,
			State:      p.ShippingAddress.State,
			PostalCode: p.ShippingAddress.PostalCode,
			Country:    p.ShippingAddress.Country,
		}
	}

	return payments.CheckoutInput{
		Email:           p.Email,
		Lines:           lines,
		ShippingAddress: address,
		CouponCode:      p.CouponCode,
		GiftCardCode:    p.GiftCardCode,
		Currency:        p.Currency,
	}
}

type orderResponse struct {
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	Email             string              `json:"email"`
	Status            string              `json:"status"`
	PaymentStatus     string              `json:"payment_status"`
	FulfillmentStatus string              `json:"fulfillment_status"`
	Currency          string              `json:"currency"`
	SubtotalCents     int64               `json:"subtotal_cents"`
	DiscountCents     int64               `json:"discount_cents"`
	ShippingCents     int64               `json:"shipping_cents"`
	TaxCents          int64               `json:"tax_cents"`
	GiftCardCents     int64               `json:"gift_card_cents"`
	GrandTotalCents   int64               `json:"grand_total_cents"`
	RefundedCents     int64               `json:"refunded_cents"`
	CouponCode        *string             `json:"coupon_code,omitempty"`
	GiftCardCode      *string             `json:"gift_card_code,omitempty"`
	ProviderOrderID   *string             `json:"provider_order_id,omitempty"`
	CaptureID         *string             `json:"capture_id,omitempty"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
}

type orderItemResponse struct {
	ItemID         uuid.UUID  `json:"item_id"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariationID    *uuid.UUID `json:"variation_id,omitempty"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int64      `json:"line_total_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			VariationID:    item.VariationID,
			Name:           item.Name,
			SKU:            item.SKU,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return orderResponse{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Email:             order.Email,
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		Currency:          order.Currency,
		SubtotalCents:     order.SubtotalCents,
		DiscountCents:     order.DiscountCents,
		ShippingCents:     order.ShippingCents,
		TaxCents:          order.TaxCents,
		GiftCardCents:     order.GiftCardCents,
		GrandTotalCents:   order.GrandTotalCents,
		RefundedCents:     order.RefundedCents,
		CouponCode:        order.CouponCode,
		GiftCardCode:      order.GiftCardCode,
		ProviderOrderID:   order.ProviderOrderID,
		CaptureID:         order.CaptureID,
		Items:             items,
		CreatedAt:         order.CreatedAt,
		PaidAt:            order.PaidAt,
		CancelledAt:       order.CancelledAt,
	}
}
