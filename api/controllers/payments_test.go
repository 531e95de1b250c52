package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

type stubSettlementService struct {
	createSession func(ctx context.Context, orderID uuid.UUID) (*payments.Session, error)
	capture       func(ctx context.Context, orderID uuid.UUID) (*payments.CaptureResult, error)
}

func (s *stubSettlementService) CreateSession(ctx context.Context, orderID uuid.UUID) (*payments.Session, error) {
	if s.createSession != nil {
		return s.createSession(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubSettlementService) Capture(ctx context.Context, orderID uuid.UUID) (*payments.CaptureResult, error) {
	if s.capture != nil {
		return s.capture(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func paymentBody(t *testing.T, orderID uuid.UUID) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{"order_id": orderID.String()})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestCreateSessionReturnsApproveURL(t *testing.T) {
	orderID := uuid.New()
	svc := &stubSettlementService{
		createSession: func(_ context.Context, gotID uuid.UUID) (*payments.Session, error) {
			require.Equal(t, orderID, gotID)
			return &payments.Session{
				OrderID:         orderID,
				ProviderOrderID: "PP-ORDER-1",
				ApproveURL:      "https://paypal.example/approve/PP-ORDER-1",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/create-session", paymentBody(t, orderID))
	rec := httptest.NewRecorder()
	CreateSession(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "PP-ORDER-1", data["provider_order_id"])
	assert.Equal(t, "https://paypal.example/approve/PP-ORDER-1", data["approve_url"])
}

func TestCreateSessionRejectsMissingOrderID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/payments/create-session", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	CreateSession(&stubSettlementService{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureOrderReturnsSettlement(t *testing.T) {
	orderID := uuid.New()
	svc := &stubSettlementService{
		capture: func(_ context.Context, gotID uuid.UUID) (*payments.CaptureResult, error) {
			require.Equal(t, orderID, gotID)
			return &payments.CaptureResult{
				OrderID:       orderID,
				OrderNumber:   "SF-20260829-A1B2C3",
				PaymentStatus: enums.PaymentStatusPaid,
				CaptureID:     "CAP-1",
				AmountCents:   10725,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/capture", paymentBody(t, orderID))
	rec := httptest.NewRecorder()
	CaptureOrder(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "CAP-1", data["capture_id"])
	assert.Equal(t, string(enums.PaymentStatusPaid), data["payment_status"])
}

func TestCaptureOrderMapsDeclineToPaymentRequired(t *testing.T) {
	svc := &stubSettlementService{
		capture: func(context.Context, uuid.UUID) (*payments.CaptureResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentDeclined, "capture declined by provider")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/capture", paymentBody(t, uuid.New()))
	rec := httptest.NewRecorder()
	CaptureOrder(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	envelope := decodeEnvelope(t, rec)
	errObj := envelope["error"].(map[string]any)
	assert.Equal(t, "capture declined by provider", errObj["message"])
}
