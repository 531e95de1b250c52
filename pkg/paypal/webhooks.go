package paypal

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// Webhook event types the reconciler consumes.
const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// WebhookEvent is a parsed webhook delivery. Resource holds the raw capture
// or refund object for the consumer to decode.
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

// CaptureResource decodes the event resource as a capture or refund, which
// share the fields the reconciler needs.
type CaptureResource struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CustomID         string `json:"custom_id"`
	InvoiceID        string `json:"invoice_id"`
	Amount           amount `json:"amount"`
	SupplementaryIDs struct {
		RelatedIDs struct {
			OrderID   string `json:"order_id"`
			CaptureID string `json:"capture_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// AmountCents returns the resource amount in minor units.
func (r CaptureResource) AmountCents() (int64, error) {
	return r.Amount.cents()
}

// ProviderOrderID returns the checkout order the capture belongs to.
func (r CaptureResource) ProviderOrderID() string {
	return r.SupplementaryIDs.RelatedIDs.OrderID
}

// RelatedCaptureID returns the capture a refund resource points back to.
func (r CaptureResource) RelatedCaptureID() string {
	return r.SupplementaryIDs.RelatedIDs.CaptureID
}

// ParseWebhookEvent decodes a delivery body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook event")
	}
	if event.ID == "" || event.EventType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event missing id or event_type")
	}
	return &event, nil
}

// DecodeCaptureResource parses the event resource payload.
func (e *WebhookEvent) DecodeCaptureResource() (*CaptureResource, error) {
	var resource CaptureResource
	if err := json.Unmarshal(e.Resource, &resource); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook resource")
	}
	return &resource, nil
}

// WebhookSignature carries the headers PayPal signs each delivery with.
type WebhookSignature struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// SignatureFromHeader extracts the verification headers from a delivery.
func SignatureFromHeader(h http.Header) WebhookSignature {
	return WebhookSignature{
		TransmissionID:   h.Get("Paypal-Transmission-Id"),
		TransmissionTime: h.Get("Paypal-Transmission-Time"),
		TransmissionSig:  h.Get("Paypal-Transmission-Sig"),
		CertURL:          h.Get("Paypal-Cert-Url"),
		AuthAlgo:         h.Get("Paypal-Auth-Algo"),
	}
}

func (s WebhookSignature) complete() bool {
	return s.TransmissionID != "" && s.TransmissionTime != "" && s.TransmissionSig != "" &&
		s.CertURL != "" && s.AuthAlgo != ""
}

// VerifyWebhookSignature checks a delivery against the configured webhook
// subscription via the verification API. Anything but SUCCESS rejects the
// delivery.
func (c *Client) VerifyWebhookSignature(ctx context.Context, sig WebhookSignature, rawEvent json.RawMessage) error {
	if !sig.complete() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook delivery missing signature headers")
	}

	body := map[string]any{
		"transmission_id":   sig.TransmissionID,
		"transmission_time": sig.TransmissionTime,
		"transmission_sig":  sig.TransmissionSig,
		"cert_url":          sig.CertURL,
		"auth_algo":         sig.AuthAlgo,
		"webhook_id":        c.webhookID,
		"webhook_event":     rawEvent,
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", "", body, &result); err != nil {
		return err
	}
	if result.VerificationStatus != "SUCCESS" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature verification failed")
	}
	return nil
}
