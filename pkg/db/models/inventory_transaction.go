package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryTransaction records one signed stock movement. The invariant
// NewQuantity = PreviousQuantity + Delta is enforced at write time.
type InventoryTransaction struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	VariationID      *uuid.UUID `gorm:"column:variation_id;type:uuid"`
	OrderID          *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	Delta            int        `gorm:"column:delta;not null"`
	PreviousQuantity int        `gorm:"column:previous_quantity;not null"`
	NewQuantity      int        `gorm:"column:new_quantity;not null"`
	Reason           string     `gorm:"column:reason;not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}
