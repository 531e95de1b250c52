package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

const (
	ReasonCapture = "capture"
	ReasonRestock = "refund_restock"
)

// Adjustment identifies one stock movement request.
type Adjustment struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Quantity    int
	OrderID     uuid.UUID
}

// Service owns stock movement. Stock is decremented at capture time, not at
// order creation, so abandoned pending orders never hold stock.
type Service interface {
	Decrement(ctx context.Context, tx *gorm.DB, adj Adjustment) (*models.InventoryTransaction, error)
	Restock(ctx context.Context, tx *gorm.DB, adj Adjustment) (*models.InventoryTransaction, error)
}

type service struct {
	repo Repository
}

// NewService builds an inventory service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

// Decrement performs the atomic check-and-decrement and appends the ledger
// row. Products that do not track inventory pass through without mutation.
func (s *service) Decrement(ctx context.Context, tx *gorm.DB, adj Adjustment) (*models.InventoryTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for inventory decrement")
	}
	if adj.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decrement quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	product, err := repo.FindProduct(ctx, adj.ProductID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.TrackInventory {
		return nil, nil
	}

	decremented, err := repo.DecrementStock(ctx, product.ID, adj.Quantity, product.AllowBackorder)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if !decremented {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", product.SKU)).
			WithDetails(map[string]any{"sku": product.SKU, "requested": adj.Quantity})
	}

	after, err := repo.FindProduct(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	row := &models.InventoryTransaction{
		ID:               uuid.New(),
		ProductID:        product.ID,
		VariationID:      adj.VariationID,
		OrderID:          &adj.OrderID,
		Delta:            -adj.Quantity,
		PreviousQuantity: after.StockQuantity + adj.Quantity,
		NewQuantity:      after.StockQuantity,
		Reason:           ReasonCapture,
	}
	if err := repo.AppendTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory transaction")
	}
	return row, nil
}

// Restock returns refunded quantities to stock.
func (s *service) Restock(ctx context.Context, tx *gorm.DB, adj Adjustment) (*models.InventoryTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for restock")
	}
	if adj.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	product, err := repo.FindProduct(ctx, adj.ProductID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.TrackInventory {
		return nil, nil
	}

	if err := repo.IncrementStock(ctx, product.ID, adj.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
	}

	after, err := repo.FindProduct(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	row := &models.InventoryTransaction{
		ID:               uuid.New(),
		ProductID:        product.ID,
		VariationID:      adj.VariationID,
		OrderID:          &adj.OrderID,
		Delta:            adj.Quantity,
		PreviousQuantity: after.StockQuantity - adj.Quantity,
		NewQuantity:      after.StockQuantity,
		Reason:           ReasonRestock,
	}
	if err := repo.AppendTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory transaction")
	}
	return row, nil
}
