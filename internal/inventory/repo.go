package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// Repository owns stock mutation and the inventory transaction ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int, allowNegative bool) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error
	AppendTransaction(ctx context.Context, row *models.InventoryTransaction) error
	ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.InventoryTransaction, error)
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock is the atomic check-and-decrement. When allowNegative is
// false the guard keeps stock_quantity from going below zero under
// concurrent captures of the same product.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int, allowNegative bool) (bool, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - ?,
			updated_at = ?
		WHERE id = ?`
	args := []any{qty, time.Now(), productID}
	if !allowNegative {
		query += ` AND stock_quantity >= ?`
		args = append(args, qty)
	}

	res := r.db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity + ?,
			updated_at = ?
		WHERE id = ?
	`, qty, time.Now(), productID).Error
}

func (r *repository) AppendTransaction(ctx context.Context, row *models.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.InventoryTransaction, error) {
	var rows []models.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
