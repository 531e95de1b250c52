package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a priced snapshot of a product at checkout time. Immutable once
// the order leaves pending, except for FulfilledQuantity.
type OrderItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariationID       *uuid.UUID `gorm:"column:variation_id;type:uuid"`
	Name              string     `gorm:"column:name;not null"`
	SKU               string     `gorm:"column:sku;not null"`
	UnitPriceCents    int64      `gorm:"column:unit_price_cents;not null"`
	Quantity          int        `gorm:"column:quantity;not null"`
	LineTotalCents    int64      `gorm:"column:line_total_cents;not null"`
	TaxCents          int64      `gorm:"column:tax_cents;not null;default:0"`
	Taxable           bool       `gorm:"column:taxable;not null"`
	FulfilledQuantity int        `gorm:"column:fulfilled_quantity;not null;default:0"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
}
