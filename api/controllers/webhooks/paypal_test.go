package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
)

type stubWebhookService struct {
	handled []string
	err     error
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event *paypal.WebhookEvent) error {
	s.handled = append(s.handled, event.ID)
	return s.err
}

type stubVerifier struct {
	err error
}

func (s *stubVerifier) VerifyWebhookSignature(context.Context, paypal.WebhookSignature, json.RawMessage) error {
	return s.err
}

type stubGuard struct {
	seen    bool
	marks   []string
	deletes []string
}

func (s *stubGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	s.marks = append(s.marks, eventID)
	return s.seen, nil
}

func (s *stubGuard) Delete(_ context.Context, eventID string) error {
	s.deletes = append(s.deletes, eventID)
	return nil
}

func deliveryBody(t *testing.T, eventID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":         eventID,
		"event_type": paypal.EventCaptureCompleted,
		"resource":   map[string]any{"id": "CAP-1"},
	})
	require.NoError(t, err)
	return body
}

func TestPayPalWebhookAcknowledgesProcessedEvent(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader(deliveryBody(t, "WH-1")))
	rec := httptest.NewRecorder()
	PayPalWebhook(svc, &stubVerifier{}, guard, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"WH-1"}, svc.handled)
	assert.Equal(t, []string{"WH-1"}, guard.marks)
	assert.Empty(t, guard.deletes)
}

func TestPayPalWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	verifier := &stubVerifier{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature verification failed")}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader(deliveryBody(t, "WH-1")))
	rec := httptest.NewRecorder()
	PayPalWebhook(svc, verifier, &stubGuard{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.handled)
}

func TestPayPalWebhookSkipsDuplicateDelivery(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{seen: true}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader(deliveryBody(t, "WH-1")))
	rec := httptest.NewRecorder()
	PayPalWebhook(svc, &stubVerifier{}, guard, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.handled)
}

func TestPayPalWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	guard := &stubGuard{}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader(deliveryBody(t, "WH-2")))
	rec := httptest.NewRecorder()
	PayPalWebhook(svc, &stubVerifier{}, guard, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{"WH-2"}, guard.deletes)
}

func TestPayPalWebhookRejectsMalformedEvent(t *testing.T) {
	svc := &stubWebhookService{}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte(`{"id":""}`)))
	rec := httptest.NewRecorder()
	PayPalWebhook(svc, &stubVerifier{}, &stubGuard{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.handled)
}
