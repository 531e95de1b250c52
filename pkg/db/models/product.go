package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the sellable listing the settlement engine prices against.
// Catalog management itself lives elsewhere; this model carries only the
// fields pricing and inventory need.
type Product struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string             `gorm:"column:name;not null"`
	SKU            string             `gorm:"column:sku;not null;uniqueIndex:ux_products_sku"`
	PriceCents     int64              `gorm:"column:price_cents;not null"`
	Taxable        bool               `gorm:"column:taxable;not null"`
	TrackInventory bool               `gorm:"column:track_inventory;not null"`
	AllowBackorder bool               `gorm:"column:allow_backorder;not null"`
	StockQuantity  int                `gorm:"column:stock_quantity;not null;default:0"`
	IsActive       bool               `gorm:"column:is_active;not null"`
	Variations     []ProductVariation `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariation adjusts the base price; stock is tracked on the product row.
type ProductVariation struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID          uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name               string    `gorm:"column:name;not null"`
	SKU                string    `gorm:"column:sku;not null"`
	PriceModifierCents int64     `gorm:"column:price_modifier_cents;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
