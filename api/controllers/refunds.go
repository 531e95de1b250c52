package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/api/responses"
	"github.com/dmcastellanos/storefront-backend/api/validators"
	"github.com/dmcastellanos/storefront-backend/internal/refunds"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
)

type RefundService interface {
	Refund(ctx context.Context, input refunds.Input) (*refunds.Result, error)
}

// RefundOrder pushes money back to the payer. An omitted or zero amount
// refunds the full remaining balance.
func RefundOrder(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			reason = "requested by customer"
		}

		result, err := svc.Refund(r.Context(), refunds.Input{
			OrderID:     orderID,
			AmountCents: payload.AmountCents,
			Reason:      reason,
			Restock:     payload.Restock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponse{
			OrderID:            result.OrderID,
			ProviderRefundID:   result.ProviderRefundID,
			AmountCents:        result.AmountCents,
			TotalRefundedCents: result.TotalRefundedCents,
			PaymentStatus:      string(result.PaymentStatus),
			Restocked:          result.Restocked,
		})
	}
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents,omitempty" validate:"omitempty,min=0"`
	Reason      string `json:"reason,omitempty" validate:"omitempty,max=255"`
	Restock     bool   `json:"restock,omitempty"`
}

type refundResponse struct {
	OrderID            uuid.UUID `json:"order_id"`
	ProviderRefundID   string    `json:"provider_refund_id,omitempty"`
	AmountCents        int64     `json:"amount_cents"`
	TotalRefundedCents int64     `json:"total_refunded_cents"`
	PaymentStatus      string    `json:"payment_status"`
	Restocked          bool      `json:"restocked"`
}
