package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

type stubCheckoutService struct {
	checkout func(ctx context.Context, input payments.CheckoutInput) (*models.Order, error)
	get      func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	cancel   func(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, input payments.CheckoutInput) (*models.Order, error) {
	if s.checkout != nil {
		return s.checkout(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubCheckoutService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.get != nil {
		return s.get(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubCheckoutService) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	if s.cancel != nil {
		return s.cancel(ctx, orderID, reason)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "SF-20260829-A1B2C3",
		Email:           "buyer@example.com",
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		Currency:        "USD",
		SubtotalCents:   10000,
		GrandTotalCents: 10725,
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	var gotInput payments.CheckoutInput
	svc := &stubCheckoutService{
		checkout: func(_ context.Context, input payments.CheckoutInput) (*models.Order, error) {
			gotInput = input
			return sampleOrder(), nil
		},
	}

	payload := map[string]any{
		"email": "buyer@example.com",
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "quantity": 2},
		},
		"coupon_code": "SAVE10",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	CreateOrder(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, gotInput.Lines, 1)
	assert.Equal(t, 2, gotInput.Lines[0].Quantity)
	require.NotNil(t, gotInput.CouponCode)
	assert.Equal(t, "SAVE10", *gotInput.CouponCode)

	envelope := decodeEnvelope(t, rec)
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SF-20260829-A1B2C3", data["order_number"])
}

func TestCreateOrderMapsShippingAddress(t *testing.T) {
	var gotInput payments.CheckoutInput
	svc := &stubCheckoutService{
		checkout: func(_ context.Context, input payments.CheckoutInput) (*models.Order, error) {
			gotInput = input
			return sampleOrder(), nil
		},
	}

	payload := map[string]any{
		"email": "buyer@example.com",
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "quantity": 1},
		},
		"shipping_address": map[string]any{
			"line1":       "600 Congress Ave",
			"line2":       "Suite 200",
			"city":        "Austin",
			"state":       "TX",
			"postal_code": "78701",
			"country":     "US",
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	CreateOrder(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, gotInput.ShippingAddress)
	assert.Equal(t, "600 Congress Ave", gotInput.ShippingAddress.Line1)
	assert.Equal(t, "Suite 200", gotInput.ShippingAddress.Line2)
	assert.Equal(t, "Austin", gotInput.ShippingAddress.City)
	assert.Equal(t, "TX", gotInput.ShippingAddress.State)
	assert.Equal(t, "78701", gotInput.ShippingAddress.PostalCode)
	assert.Equal(t, "US", gotInput.ShippingAddress.Country)
}

func TestCreateOrderRejectsMissingItems(t *testing.T) {
	svc := &stubCheckoutService{
		checkout: func(context.Context, payments.CheckoutInput) (*models.Order, error) {
			t.Fatal("checkout must not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte(`{"email":"buyer@example.com"}`)))
	rec := httptest.NewRecorder()
	CreateOrder(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	errObj, ok := envelope["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(pkgerrors.CodeValidation), errObj["code"])
}

func TestGetOrderRejectsInvalidID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/orders/{orderId}", GetOrder(&stubCheckoutService{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderMapsNotFound(t *testing.T) {
	svc := &stubCheckoutService{
		get: func(context.Context, uuid.UUID) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}

	r := chi.NewRouter()
	r.Get("/orders/{orderId}", GetOrder(svc, nil))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%s", uuid.NewString()), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec)
	errObj := envelope["error"].(map[string]any)
	assert.Equal(t, "order not found", errObj["message"])
}

func TestCancelOrderDefaultsReason(t *testing.T) {
	var gotReason string
	svc := &stubCheckoutService{
		cancel: func(_ context.Context, _ uuid.UUID, reason string) (*models.Order, error) {
			gotReason = reason
			order := sampleOrder()
			order.Status = enums.OrderStatusCancelled
			return order, nil
		},
	}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/cancel", CancelOrder(svc, nil))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/orders/%s/cancel", uuid.NewString()), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled by customer", gotReason)

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, string(enums.OrderStatusCancelled), data["status"])
}

func TestCancelOrderPassesBodyReason(t *testing.T) {
	var gotReason string
	svc := &stubCheckoutService{
		cancel: func(_ context.Context, _ uuid.UUID, reason string) (*models.Order, error) {
			gotReason = reason
			return sampleOrder(), nil
		},
	}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/cancel", CancelOrder(svc, nil))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/orders/%s/cancel", uuid.NewString()), bytes.NewReader([]byte(`{"reason":"changed my mind"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "changed my mind", gotReason)
}
