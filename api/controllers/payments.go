package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/api/responses"
	"github.com/dmcastellanos/storefront-backend/api/validators"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
)

// SettlementService is the slice of the settlement orchestrator the payment
// controllers need.
type SettlementService interface {
	CreateSession(ctx context.Context, orderID uuid.UUID) (*payments.Session, error)
	Capture(ctx context.Context, orderID uuid.UUID) (*payments.CaptureResult, error)
}

// CreateSession opens a gateway approval session for a pending order.
func CreateSession(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{
			OrderID:         session.OrderID,
			ProviderOrderID: session.ProviderOrderID,
			ApproveURL:      session.ApproveURL,
		})
	}
}

// CaptureOrder settles an approved order.
func CaptureOrder(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Capture(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, captureResponse{
			OrderID:       result.OrderID,
			OrderNumber:   result.OrderNumber,
			PaymentStatus: string(result.PaymentStatus),
			CaptureID:     result.CaptureID,
			AmountCents:   result.AmountCents,
		})
	}
}

type paymentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type sessionResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	ApproveURL      string    `json:"approve_url,omitempty"`
}

type captureResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PaymentStatus string    `json:"payment_status"`
	CaptureID     string    `json:"capture_id"`
	AmountCents   int64     `json:"amount_cents"`
}
