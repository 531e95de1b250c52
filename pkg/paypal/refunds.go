package paypal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	RefundStatusCompleted = "COMPLETED"
	RefundStatusPending   = "PENDING"
	RefundStatusCancelled = "CANCELLED"
)

// RefundCaptureParams moves money back to the payer. A zero AmountCents
// refunds the full remaining capture.
type RefundCaptureParams struct {
	CaptureID   string
	AmountCents int64
	Currency    string
	NoteToPayer string
	RequestID   string
}

// Refund is the settled refund resource.
type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

type refundResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount amount `json:"amount"`
}

// RefundCapture refunds a settled capture, partially or in full.
func (c *Client) RefundCapture(ctx context.Context, params RefundCaptureParams) (*Refund, error) {
	body := map[string]any{}
	if params.AmountCents > 0 {
		currency := strings.ToUpper(strings.TrimSpace(params.Currency))
		if currency == "" {
			currency = c.currency
		}
		body["amount"] = amountFromCents(params.AmountCents, currency)
	}
	if params.NoteToPayer != "" {
		body["note_to_payer"] = params.NoteToPayer
	}

	requestID := params.RequestID
	if requestID == "" {
		requestID = c.NewRequestID("capture.refund")
	}

	c.log(ctx, "request", "refund_capture", map[string]any{
		"capture_id":   params.CaptureID,
		"amount_cents": params.AmountCents,
	})

	var resource refundResource
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", params.CaptureID)
	if err := c.doJSON(ctx, http.MethodPost, path, requestID, body, &resource); err != nil {
		c.log(ctx, "error", "refund_capture", map[string]any{"error": err.Error()})
		return nil, err
	}

	cents, err := resource.Amount.cents()
	if err != nil {
		return nil, err
	}

	refund := Refund{ID: resource.ID, Status: resource.Status, AmountCents: cents}
	c.log(ctx, "response", "refund_capture", map[string]any{
		"refund_id": refund.ID,
		"status":    refund.Status,
	})
	return &refund, nil
}
