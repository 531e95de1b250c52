package payments

import (
	"context"

	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
)

// Gateway is the payment provider boundary. *paypal.Client satisfies it;
// tests swap in a fake so settlement logic runs without network calls.
type Gateway interface {
	CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, providerOrderID, requestID string) (*paypal.Capture, error)
	RefundCapture(ctx context.Context, params paypal.RefundCaptureParams) (*paypal.Refund, error)
}
