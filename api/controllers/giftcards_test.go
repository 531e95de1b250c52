package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

type stubGiftCardService struct {
	balance func(ctx context.Context, code string) (*models.GiftCard, error)
}

func (s *stubGiftCardService) Balance(ctx context.Context, code string) (*models.GiftCard, error) {
	if s.balance != nil {
		return s.balance(ctx, code)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func TestGiftCardBalanceReturnsCard(t *testing.T) {
	svc := &stubGiftCardService{
		balance: func(_ context.Context, code string) (*models.GiftCard, error) {
			require.Equal(t, "GIFT-100", code)
			return &models.GiftCard{
				Code:                "GIFT-100",
				InitialBalanceCents: 10000,
				CurrentBalanceCents: 4000,
				Status:              enums.GiftCardStatusActive,
			}, nil
		},
	}

	r := chi.NewRouter()
	r.Get("/gift-cards/{code}/balance", GiftCardBalance(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/gift-cards/GIFT-100/balance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "GIFT-100", data["code"])
	assert.Equal(t, float64(4000), data["current_balance_cents"])
	assert.Equal(t, string(enums.GiftCardStatusActive), data["status"])
}

func TestGiftCardBalanceMapsNotFound(t *testing.T) {
	svc := &stubGiftCardService{
		balance: func(context.Context, string) (*models.GiftCard, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
		},
	}

	r := chi.NewRouter()
	r.Get("/gift-cards/{code}/balance", GiftCardBalance(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/gift-cards/MISSING/balance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
