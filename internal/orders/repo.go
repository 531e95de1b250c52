package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// Repository owns order rows, their items, the append-only status history,
// and the payment transaction audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, captureID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error)
	ApplyRefundTotals(ctx context.Context, id uuid.UUID, refundedCents int64, paymentStatus enums.PaymentStatus, status enums.OrderStatus) error
	AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error
	AppendPaymentTransaction(ctx context.Context, row *models.PaymentTransaction) error
	FindPaymentTransactionByProviderTxn(ctx context.Context, providerTxnID string) (*models.PaymentTransaction, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("provider_order_id = ?", providerOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetProviderOrderID attaches the gateway session exactly once. Re-attaching
// the same id is a no-op success so session creation can be retried.
func (r *repository) SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET provider_order_id = ?,
			updated_at = ?
		WHERE id = ? AND (provider_order_id IS NULL OR provider_order_id = ?)
	`, providerOrderID, time.Now(), id, providerOrderID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid is the optimistic settlement guard: only one caller can flip
// payment_status off pending, so the second of two racing captures observes
// zero affected rows and backs off.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, captureID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET payment_status = ?,
			status = ?,
			capture_id = ?,
			paid_at = ?,
			updated_at = ?
		WHERE id = ? AND payment_status = ?
	`, enums.PaymentStatusPaid, enums.OrderStatusConfirmed, captureID, paidAt, time.Now(),
		id, enums.PaymentStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET payment_status = ?,
			status = ?,
			updated_at = ?
		WHERE id = ? AND payment_status = ?
	`, enums.PaymentStatusFailed, enums.OrderStatusFailed, time.Now(),
		id, enums.PaymentStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCancelled closes a pending, uncaptured order.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?,
			payment_status = ?,
			cancelled_at = ?,
			updated_at = ?
		WHERE id = ? AND payment_status = ? AND status NOT IN (?, ?, ?, ?)
	`, enums.OrderStatusCancelled, enums.PaymentStatusCancelled, cancelledAt, time.Now(),
		id, enums.PaymentStatusPending,
		enums.OrderStatusDelivered, enums.OrderStatusCancelled, enums.OrderStatusRefunded, enums.OrderStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ApplyRefundTotals(ctx context.Context, id uuid.UUID, refundedCents int64, paymentStatus enums.PaymentStatus, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET refunded_cents = ?,
			payment_status = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?
	`, refundedCents, paymentStatus, status, time.Now(), id).Error
}

func (r *repository) AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) AppendPaymentTransaction(ctx context.Context, row *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindPaymentTransactionByProviderTxn(ctx context.Context, providerTxnID string) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider_transaction_id = ?", providerTxnID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND created_at < ?",
			enums.OrderStatusPending, enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
