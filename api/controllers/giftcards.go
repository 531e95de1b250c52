package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmcastellanos/storefront-backend/api/responses"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
)

type GiftCardBalanceService interface {
	Balance(ctx context.Context, code string) (*models.GiftCard, error)
}

// GiftCardBalance looks up the spendable balance on a card.
func GiftCardBalance(svc GiftCardBalanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift card service unavailable"))
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gift card code is required"))
			return
		}

		card, err := svc.Balance(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, giftCardBalanceResponse{
			Code:                card.Code,
			CurrentBalanceCents: card.CurrentBalanceCents,
			Status:              string(card.Status),
			ExpiresAt:           card.ExpiresAt,
		})
	}
}

type giftCardBalanceResponse struct {
	Code                string     `json:"code"`
	CurrentBalanceCents int64      `json:"current_balance_cents"`
	Status              string     `json:"status"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
}
