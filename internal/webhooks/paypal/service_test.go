package paypalwebhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/catalog"
	"github.com/dmcastellanos/storefront-backend/internal/giftcards"
	"github.com/dmcastellanos/storefront-backend/internal/inventory"
	"github.com/dmcastellanos/storefront-backend/internal/orders"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/internal/refunds"
	"github.com/dmcastellanos/storefront-backend/pkg/config"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
)

var reconcilerSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  sku TEXT NOT NULL UNIQUE,
  price_cents INTEGER NOT NULL,
  taxable INTEGER NOT NULL DEFAULT 1,
  track_inventory INTEGER NOT NULL DEFAULT 1,
  allow_backorder INTEGER NOT NULL DEFAULT 0,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS product_variations (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sku TEXT NOT NULL,
  price_modifier_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  value INTEGER NOT NULL,
  min_order_cents INTEGER NOT NULL DEFAULT 0,
  max_discount_cents INTEGER NOT NULL DEFAULT 0,
  usage_limit INTEGER NOT NULL DEFAULT 0,
  usage_count INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
  id TEXT PRIMARY KEY,
  state TEXT NOT NULL UNIQUE,
  rate_bps INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
  currency TEXT NOT NULL DEFAULT 'USD',
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  gift_card_cents INTEGER NOT NULL DEFAULT 0,
  grand_total_cents INTEGER NOT NULL,
  refunded_cents INTEGER NOT NULL DEFAULT 0,
  coupon_code TEXT,
  gift_card_code TEXT,
  shipping_address TEXT,
  payment_provider TEXT NOT NULL DEFAULT 'paypal',
  provider_order_id TEXT UNIQUE,
  capture_id TEXT,
  cancelled_at DATETIME,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variation_id TEXT,
  name TEXT NOT NULL,
  sku TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  taxable INTEGER NOT NULL DEFAULT 1,
  fulfilled_quantity INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  previous_status TEXT,
  new_status TEXT NOT NULL,
  previous_payment_status TEXT,
  new_payment_status TEXT NOT NULL,
  actor TEXT NOT NULL,
  note TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  provider_transaction_id TEXT NOT NULL UNIQUE,
  raw_response TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS gift_cards (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  initial_balance_cents INTEGER NOT NULL,
  current_balance_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS gift_card_transactions (
  id TEXT PRIMARY KEY,
  gift_card_id TEXT NOT NULL,
  order_id TEXT,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_before_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  variation_id TEXT,
  order_id TEXT,
  delta INTEGER NOT NULL,
  previous_quantity INTEGER NOT NULL,
  new_quantity INTEGER NOT NULL,
  reason TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	captureID    string
	captureCalls int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (*paypal.Order, error) {
	return &paypal.Order{ID: "PP-" + uuid.NewString()[:8], Status: paypal.OrderStatusCreated, CustomID: params.CustomID}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, providerOrderID, requestID string) (*paypal.Capture, error) {
	g.captureCalls++
	return &paypal.Capture{ID: g.captureID, Status: paypal.CaptureStatusCompleted, Final: true}, nil
}

func (g *fakeGateway) RefundCapture(ctx context.Context, params paypal.RefundCaptureParams) (*paypal.Refund, error) {
	return &paypal.Refund{ID: "REF-LOCAL", Status: "COMPLETED", AmountCents: params.AmountCents}, nil
}

type reconcilerHarness struct {
	db       *gorm.DB
	svc      *Service
	payments *payments.Service
	refunds  *refunds.Service
	orderSvc orders.Service
	gateway  *fakeGateway
}

func newReconcilerHarness(t *testing.T) *reconcilerHarness {
	t.Helper()

	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, stmt := range reconcilerSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "reconciler-test", Output: io.Discard})
	orderSvc, err := orders.NewService(orders.NewRepository(db))
	require.NoError(t, err)
	giftCardSvc, err := giftcards.NewService(giftcards.NewRepository(db))
	require.NoError(t, err)
	inventorySvc, err := inventory.NewService(inventory.NewRepository(db))
	require.NoError(t, err)
	resolver, err := catalog.NewResolver(catalog.NewRepository(db))
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)
	gateway := &fakeGateway{captureID: "CAP-" + uuid.NewString()[:8]}

	cfg := config.SettlementConfig{ShippingFlatCents: 1500, FreeShippingCents: 10000}
	paymentSvc, err := payments.NewService(gormTxRunner{db: db}, orderSvc, giftCardSvc,
		inventorySvc, resolver, outboxSvc, gateway, cfg, "USD", nil, logg)
	require.NoError(t, err)
	refundSvc, err := refunds.NewService(gormTxRunner{db: db}, orderSvc, giftCardSvc,
		inventorySvc, outboxSvc, gateway, cfg, nil, logg)
	require.NoError(t, err)

	svc, err := NewService(paymentSvc, refundSvc, orderSvc, nil, logg)
	require.NoError(t, err)

	return &reconcilerHarness{
		db:       db,
		svc:      svc,
		payments: paymentSvc,
		refunds:  refundSvc,
		orderSvc: orderSvc,
		gateway:  gateway,
	}
}

// pendingOrder seeds a product and runs checkout plus session creation.
func (h *reconcilerHarness) pendingOrder(t *testing.T) *models.Order {
	t.Helper()

	product := &models.Product{
		ID:             uuid.New(),
		Name:           "Widget",
		SKU:            "WID-" + uuid.NewString()[:8],
		PriceCents:     5000,
		Taxable:        true,
		TrackInventory: true,
		StockQuantity:  10,
		IsActive:       true,
	}
	require.NoError(t, h.db.Create(product).Error)

	order, err := h.payments.Checkout(context.Background(), payments.CheckoutInput{
		Email: "buyer@example.com",
		Lines: []catalog.CartLine{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = h.payments.CreateSession(context.Background(), order.ID)
	require.NoError(t, err)
	return order
}

func captureEvent(t *testing.T, eventType, resourceID, customID string, amountCents int64) *paypal.WebhookEvent {
	t.Helper()

	resource := map[string]any{
		"id":        resourceID,
		"status":    "COMPLETED",
		"custom_id": customID,
		"amount": map[string]string{
			"currency_code": "USD",
			"value":         fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
		},
	}
	raw, err := json.Marshal(resource)
	require.NoError(t, err)
	return &paypal.WebhookEvent{
		ID:        "WH-" + uuid.NewString()[:8],
		EventType: eventType,
		Resource:  raw,
	}
}

func TestHandleEvent_CaptureCompletedSettlesPendingOrder(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)

	event := captureEvent(t, paypal.EventCaptureCompleted, "CAP-WH-1", order.ID.String(), order.GrandTotalCents)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var settled models.Order
	require.NoError(t, h.db.First(&settled, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, settled.PaymentStatus)
	require.NotNil(t, settled.CaptureID)
	assert.Equal(t, "CAP-WH-1", *settled.CaptureID)

	var txnCount int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)
	assert.Equal(t, 0, h.gateway.captureCalls)
}

func TestHandleEvent_ReplayAfterDirectCaptureIsNoop(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)

	_, err := h.payments.Capture(context.Background(), order.ID)
	require.NoError(t, err)

	event := captureEvent(t, paypal.EventCaptureCompleted, h.gateway.captureID, order.ID.String(), order.GrandTotalCents)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var txnCount int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	var invCount int64
	require.NoError(t, h.db.Model(&models.InventoryTransaction{}).Count(&invCount).Error)
	assert.Equal(t, int64(1), invCount)
}

func TestHandleEvent_CaptureDeniedFailsPendingOrder(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)

	event := captureEvent(t, paypal.EventCaptureDenied, "CAP-WH-2", order.ID.String(), order.GrandTotalCents)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var reloaded models.Order
	require.NoError(t, h.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusFailed, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusFailed, reloaded.PaymentStatus)
}

func TestHandleEvent_CaptureDeniedAfterSettlementIgnored(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)

	_, err := h.payments.Capture(context.Background(), order.ID)
	require.NoError(t, err)

	event := captureEvent(t, paypal.EventCaptureDenied, "CAP-WH-3", order.ID.String(), order.GrandTotalCents)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var reloaded models.Order
	require.NoError(t, h.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)
}

func TestHandleEvent_ExternalRefundReconciled(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)
	_, err := h.payments.Capture(context.Background(), order.ID)
	require.NoError(t, err)

	event := captureEvent(t, paypal.EventCaptureRefunded, "REF-WH-1", order.ID.String(), 2000)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var reloaded models.Order
	require.NoError(t, h.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, reloaded.PaymentStatus)
	assert.Equal(t, int64(2000), reloaded.RefundedCents)
}

func TestHandleEvent_LocallyRecordedRefundIgnored(t *testing.T) {
	h := newReconcilerHarness(t)
	order := h.pendingOrder(t)
	_, err := h.payments.Capture(context.Background(), order.ID)
	require.NoError(t, err)

	result, err := h.refunds.Refund(context.Background(), refunds.Input{OrderID: order.ID, AmountCents: 2000})
	require.NoError(t, err)

	event := captureEvent(t, paypal.EventCaptureRefunded, result.ProviderRefundID, order.ID.String(), 2000)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var reloaded models.Order
	require.NoError(t, h.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, int64(2000), reloaded.RefundedCents)

	var txnCount int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).
		Where("type = ?", enums.PaymentTransactionTypeRefund).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)
}

func TestHandleEvent_UnknownEventTypeAcknowledged(t *testing.T) {
	h := newReconcilerHarness(t)

	event := &paypal.WebhookEvent{
		ID:        "WH-x",
		EventType: "CHECKOUT.ORDER.APPROVED",
		Resource:  json.RawMessage(`{}`),
	}
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))
}

func TestHandleEvent_UnknownOrderAcknowledged(t *testing.T) {
	h := newReconcilerHarness(t)

	event := captureEvent(t, paypal.EventCaptureCompleted, "CAP-WH-9", uuid.NewString(), 1000)
	require.NoError(t, h.svc.HandleEvent(context.Background(), event))

	var txnCount int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(0), txnCount)
}

func TestHandleEvent_MalformedResourceIsValidationError(t *testing.T) {
	h := newReconcilerHarness(t)

	event := &paypal.WebhookEvent{
		ID:        "WH-bad",
		EventType: paypal.EventCaptureCompleted,
		Resource:  json.RawMessage(`{"amount": {"value": "not-a-number"}}`),
	}
	err := h.svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
}
