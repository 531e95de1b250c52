package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// Issue codes PayPal returns inside 4xx error bodies.
const (
	issueInstrumentDeclined   = "INSTRUMENT_DECLINED"
	issuePayerActionRequired  = "PAYER_ACTION_REQUIRED"
	issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
	issueOrderNotApproved     = "ORDER_NOT_APPROVED"
	issueCaptureFullyRefunded = "CAPTURE_FULLY_REFUNDED"
	issueRefundExceedsCapture = "MAX_CAPTURE_AMOUNT_EXCEEDED"
	issueDuplicateInvoiceID   = "DUPLICATE_INVOICE_ID"
	issueTransactionRefused   = "TRANSACTION_REFUSED"
	issueResourceNotFound     = "INVALID_RESOURCE_ID"
)

// ErrAlreadyCaptured signals the order was captured by a concurrent request.
// Callers resolve it by fetching the order and reusing the existing capture.
var ErrAlreadyCaptured = errors.New("paypal order already captured")

type apiErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
	DebugID string `json:"debug_id"`
}

func (b apiErrorBody) firstIssue() string {
	for _, d := range b.Details {
		if d.Issue != "" {
			return d.Issue
		}
	}
	return ""
}

// mapAPIError converts a PayPal 4xx/5xx body into a typed domain error.
func (c *Client) mapAPIError(status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)

	issue := parsed.firstIssue()
	base := fmt.Errorf("paypal %s: %s (debug_id=%s)", parsed.Name, parsed.Message, parsed.DebugID)

	switch issue {
	case issueInstrumentDeclined, issueTransactionRefused:
		return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, base, "payment was declined")
	case issuePayerActionRequired, issueOrderNotApproved:
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, base, "payer has not approved the order")
	case issueOrderAlreadyCaptured:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyCaptured, "order already captured")
	case issueCaptureFullyRefunded, issueRefundExceedsCapture:
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, base, "refund exceeds refundable balance")
	case issueDuplicateInvoiceID:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, base, "duplicate paypal invoice id")
	case issueResourceNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, base, "paypal resource not found")
	}

	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, base, "paypal rejected the credentials")
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, base, "paypal resource not found")
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, base, "paypal rejected the request state")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, base, "paypal rejected the request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, base, "paypal request failed")
	}
}

// mapTransportError classifies network failures; timeouts stay retryable.
func (c *Client) mapTransportError(err error, op string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s timed out", op))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s cancelled", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed: %s", op, strings.TrimSpace(err.Error())))
}

// IsAlreadyCaptured reports whether the error carries the duplicate-capture signal.
func IsAlreadyCaptured(err error) bool {
	return errors.Is(err, ErrAlreadyCaptured)
}
