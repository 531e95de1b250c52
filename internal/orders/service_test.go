package orders

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/pricing"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
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
);`
	items := `
CREATE TABLE IF NOT EXISTS order_items (
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
);`
	history := `
CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  previous_status TEXT,
  new_status TEXT NOT NULL,
  previous_payment_status TEXT,
  new_payment_status TEXT NOT NULL,
  actor TEXT NOT NULL,
  note TEXT,
  created_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS payment_transactions (
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
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(items).Error)
	require.NoError(t, db.Exec(history).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func testTotals() pricing.Totals {
	line := pricing.LineTotal{
		Line: pricing.Line{
			ProductID:      uuid.New(),
			Name:           "Widget",
			SKU:            "WID-1",
			UnitPriceCents: 5000,
			Quantity:       2,
			Taxable:        true,
		},
		LineTotalCents: 10000,
	}
	return pricing.Totals{
		Lines:           []pricing.LineTotal{line},
		SubtotalCents:   10000,
		ShippingCents:   1500,
		GrandTotalCents: 11500,
	}
}

func createTestOrder(t *testing.T, db *gorm.DB, svc Service) *models.Order {
	t.Helper()

	order, err := svc.Create(context.Background(), db, CreateInput{
		Email:  "buyer@example.com",
		Totals: testTotals(),
	})
	require.NoError(t, err)
	return order
}

func TestCreate_PersistsOrderWithNumberItemsAndHistory(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	assert.True(t, strings.HasPrefix(order.OrderNumber, "SF-"))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)

	reloaded, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, int64(10000), reloaded.Items[0].LineTotalCents)

	var historyCount int64
	require.NoError(t, db.Model(&models.OrderStatusHistory{}).
		Where("order_id = ?", order.ID).Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)
}

func TestMarkPaid_FlipsOnceUnderRacingCallers(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	flipped, err := svc.MarkPaid(context.Background(), db, order, "CAP-123", ActorGateway)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)

	// A second caller holding the stale pending snapshot loses the race.
	stale := &models.Order{
		ID:            order.ID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
	}
	flipped, err = svc.MarkPaid(context.Background(), db, stale, "CAP-123", ActorWebhook)
	require.NoError(t, err)
	assert.False(t, flipped)

	var historyCount int64
	require.NoError(t, db.Model(&models.OrderStatusHistory{}).
		Where("order_id = ? AND new_payment_status = ?", order.ID, enums.PaymentStatusPaid).
		Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)
}

func TestCreate_HistoryLandsInSingularTable(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	var count int64
	require.NoError(t, db.Table("order_status_history").
		Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMarkPaid_ConcurrentCallersSettleOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection makes concurrent transactions queue instead of
	// failing with a lock error under sqlite.
	sqlDB.SetMaxOpenConns(1)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	const callers = 8
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := *order
			err := db.Transaction(func(tx *gorm.DB) error {
				flipped, err := svc.MarkPaid(context.Background(), tx, &snapshot, "CAP-RACE", ActorGateway)
				if err != nil {
					return err
				}
				if flipped {
					atomic.AddInt64(&wins, 1)
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)

	reloaded, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)
	require.NotNil(t, reloaded.CaptureID)
	assert.Equal(t, "CAP-RACE", *reloaded.CaptureID)

	var historyCount int64
	require.NoError(t, db.Model(&models.OrderStatusHistory{}).
		Where("order_id = ? AND new_payment_status = ?", order.ID, enums.PaymentStatusPaid).
		Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)
}

func TestMarkPaid_RejectedFromTerminalState(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)
	require.NoError(t, svc.Cancel(context.Background(), db, order, "buyer changed mind", ActorCustomer))

	_, err = svc.MarkPaid(context.Background(), db, order, "CAP-999", ActorGateway)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancel_OnlyUncapturedOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)
	_, err = svc.MarkPaid(context.Background(), db, order, "CAP-1", ActorGateway)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), db, order, "too late", ActorCustomer)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestApplyRefund_PartialThenFull(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)
	_, err = svc.MarkPaid(context.Background(), db, order, "CAP-1", ActorGateway)
	require.NoError(t, err)

	status, err := svc.ApplyRefund(context.Background(), db, order, 3000, ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, status)
	assert.Equal(t, int64(3000), order.RefundedCents)

	status, err = svc.ApplyRefund(context.Background(), db, order, 8500, ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, status)
	assert.Equal(t, enums.OrderStatusRefunded, order.Status)

	// Refunded is terminal for further refunds.
	_, err = svc.ApplyRefund(context.Background(), db, order, 100, ActorSystem)
	require.Error(t, err)
}

func TestApplyRefund_RejectsUnpaidOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)
	_, err = svc.ApplyRefund(context.Background(), db, order, 1000, ActorSystem)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestRecordPaymentTransaction_DuplicateProviderTxnIsNoop(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	row := &models.PaymentTransaction{
		OrderID:               order.ID,
		Provider:              "paypal",
		Type:                  enums.PaymentTransactionTypeCapture,
		Status:                enums.PaymentTransactionStatusCompleted,
		AmountCents:           11500,
		ProviderTransactionID: "CAP-1",
	}
	inserted, err := svc.RecordPaymentTransaction(context.Background(), db, row)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &models.PaymentTransaction{
		OrderID:               order.ID,
		Provider:              "paypal",
		Type:                  enums.PaymentTransactionTypeCapture,
		Status:                enums.PaymentTransactionStatusCompleted,
		AmountCents:           11500,
		ProviderTransactionID: "CAP-1",
	}
	inserted, err = svc.RecordPaymentTransaction(context.Background(), db, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	has, err := svc.HasPaymentTransaction(context.Background(), "CAP-1")
	require.NoError(t, err)
	assert.True(t, has)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAttachProviderOrder_IdempotentForSameSession(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	order := createTestOrder(t, db, svc)

	require.NoError(t, svc.AttachProviderOrder(context.Background(), order.ID, "PP-1"))
	require.NoError(t, svc.AttachProviderOrder(context.Background(), order.ID, "PP-1"))

	err = svc.AttachProviderOrder(context.Background(), order.ID, "PP-2")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	found, err := svc.GetByProviderOrderID(context.Background(), "PP-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
}

func TestListPendingBefore_FiltersSettledOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	stale := createTestOrder(t, db, svc)
	paid := createTestOrder(t, db, svc)
	_, err = svc.MarkPaid(context.Background(), db, paid, "CAP-1", ActorGateway)
	require.NoError(t, err)

	// Push creation time into the past for both orders.
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Order{}).
		Where("id IN ?", []uuid.UUID{stale.ID, paid.ID}).
		Update("created_at", past).Error)

	rows, err := svc.ListPendingBefore(context.Background(), time.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}

func TestCanTransition_RejectsBackwardMoves(t *testing.T) {
	assert.False(t, CanTransition(enums.OrderStatusRefunded, enums.OrderStatusConfirmed))
	assert.False(t, CanTransition(enums.OrderStatusCancelled, enums.OrderStatusPending))
	assert.False(t, CanTransition(enums.OrderStatusDelivered, enums.OrderStatusShipped))
	assert.True(t, CanTransition(enums.OrderStatusPending, enums.OrderStatusConfirmed))
	assert.True(t, CanTransition(enums.OrderStatusShipped, enums.OrderStatusDelivered))
	assert.False(t, CanTransition(enums.OrderStatusCancelled, enums.OrderStatusCancelled))
}
