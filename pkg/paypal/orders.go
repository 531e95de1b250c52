package paypal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Order statuses as PayPal reports them.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"

	CaptureStatusCompleted = "COMPLETED"
	CaptureStatusDeclined  = "DECLINED"
	CaptureStatusPending   = "PENDING"
)

// CreateOrderParams describes a single-purchase-unit checkout session.
// CustomID carries the internal order id so webhook deliveries can be
// correlated without a lookup table.
type CreateOrderParams struct {
	CustomID    string
	InvoiceID   string
	AmountCents int64
	Currency    string
	Description string
	RequestID   string
}

// Order is the subset of the PayPal order resource the settlement flow reads.
type Order struct {
	ID       string
	Status   string
	CustomID string
	Links    []Link
}

// Link is a HATEOAS link; rel "approve" carries the payer redirect URL.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// ApproveURL returns the payer redirect link, empty when absent.
func (o Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

// Capture is one settled capture inside an order.
type Capture struct {
	ID          string
	Status      string
	AmountCents int64
	Final       bool
}

type orderResource struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []Link `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments *struct {
			Captures []captureResource `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type captureResource struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Amount       amount `json:"amount"`
	FinalCapture bool   `json:"final_capture"`
}

func (r orderResource) toOrder() Order {
	o := Order{ID: r.ID, Status: r.Status, Links: r.Links}
	if len(r.PurchaseUnits) > 0 {
		o.CustomID = r.PurchaseUnits[0].CustomID
	}
	return o
}

func (r orderResource) captures() []captureResource {
	if len(r.PurchaseUnits) == 0 || r.PurchaseUnits[0].Payments == nil {
		return nil
	}
	return r.PurchaseUnits[0].Payments.Captures
}

// CreateOrder opens a checkout session with intent CAPTURE.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = c.currency
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id":   params.CustomID,
			"invoice_id":  params.InvoiceID,
			"description": params.Description,
			"amount":      amountFromCents(params.AmountCents, currency),
		}},
	}

	requestID := params.RequestID
	if requestID == "" {
		requestID = c.NewRequestID("order.create")
	}

	c.log(ctx, "request", "create_order", map[string]any{
		"custom_id":    params.CustomID,
		"invoice_id":   params.InvoiceID,
		"amount_cents": params.AmountCents,
		"currency":     currency,
	})

	var resource orderResource
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", requestID, body, &resource); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	order := resource.toOrder()
	c.log(ctx, "response", "create_order", map[string]any{
		"provider_order_id": order.ID,
		"status":            order.Status,
	})
	return &order, nil
}

// GetOrder fetches the current order resource, including any captures.
func (c *Client) GetOrder(ctx context.Context, providerOrderID string) (*Order, []Capture, error) {
	c.log(ctx, "request", "get_order", map[string]any{"provider_order_id": providerOrderID})

	var resource orderResource
	path := fmt.Sprintf("/v2/checkout/orders/%s", providerOrderID)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resource); err != nil {
		c.log(ctx, "error", "get_order", map[string]any{"error": err.Error()})
		return nil, nil, err
	}

	order := resource.toOrder()
	captures, err := capturesFromResource(resource)
	if err != nil {
		return nil, nil, err
	}

	c.log(ctx, "response", "get_order", map[string]any{
		"provider_order_id": order.ID,
		"status":            order.Status,
		"captures":          len(captures),
	})
	return &order, captures, nil
}

// CaptureOrder settles an approved order. When PayPal reports the order was
// already captured the existing capture is fetched and returned instead, so
// concurrent capture attempts converge on the same result.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID, requestID string) (*Capture, error) {
	if requestID == "" {
		requestID = c.NewRequestID("order.capture")
	}

	c.log(ctx, "request", "capture_order", map[string]any{"provider_order_id": providerOrderID})

	var resource orderResource
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", providerOrderID)
	err := c.doJSON(ctx, http.MethodPost, path, requestID, struct{}{}, &resource)
	if err != nil {
		if IsAlreadyCaptured(err) {
			return c.resolveExistingCapture(ctx, providerOrderID)
		}
		c.log(ctx, "error", "capture_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	capture, err := firstCompletedCapture(resource)
	if err != nil {
		return nil, err
	}

	c.log(ctx, "response", "capture_order", map[string]any{
		"provider_order_id": providerOrderID,
		"capture_id":        capture.ID,
		"status":            capture.Status,
	})
	return capture, nil
}

func (c *Client) resolveExistingCapture(ctx context.Context, providerOrderID string) (*Capture, error) {
	c.log(ctx, "request", "resolve_capture", map[string]any{"provider_order_id": providerOrderID})

	_, captures, err := c.GetOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	for i := range captures {
		if captures[i].Status == CaptureStatusCompleted {
			return &captures[i], nil
		}
	}
	return nil, fmt.Errorf("paypal order %s reports captured but no completed capture found", providerOrderID)
}

func capturesFromResource(resource orderResource) ([]Capture, error) {
	raw := resource.captures()
	captures := make([]Capture, 0, len(raw))
	for _, cr := range raw {
		cents, err := cr.Amount.cents()
		if err != nil {
			return nil, err
		}
		captures = append(captures, Capture{
			ID:          cr.ID,
			Status:      cr.Status,
			AmountCents: cents,
			Final:       cr.FinalCapture,
		})
	}
	return captures, nil
}

func firstCompletedCapture(resource orderResource) (*Capture, error) {
	captures, err := capturesFromResource(resource)
	if err != nil {
		return nil, err
	}
	for i := range captures {
		if captures[i].Status == CaptureStatusCompleted {
			return &captures[i], nil
		}
	}
	if len(captures) > 0 {
		return &captures[0], nil
	}
	return nil, fmt.Errorf("paypal capture response for order %s carried no captures", resource.ID)
}
