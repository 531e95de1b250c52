package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

// Coupon applies against the subtotal only, bounded by the minimum-order and
// maximum-discount caps. For percentage coupons Value holds basis points
// (2000 = 20%); for fixed coupons it is the discount in minor units.
type Coupon struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string           `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	Type             enums.CouponType `gorm:"column:type;type:coupon_type;not null"`
	Value            int64            `gorm:"column:value;not null"`
	MinOrderCents    int64            `gorm:"column:min_order_cents;not null;default:0"`
	MaxDiscountCents int64            `gorm:"column:max_discount_cents;not null;default:0"`
	UsageLimit       int              `gorm:"column:usage_limit;not null;default:0"`
	UsageCount       int              `gorm:"column:usage_count;not null;default:0"`
	IsActive         bool             `gorm:"column:is_active;not null"`
	ExpiresAt        *time.Time       `gorm:"column:expires_at"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TaxRate is the per-state rate applied to taxable line totals. RateBps is
// basis points (725 = 7.25%).
type TaxRate struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	State     string    `gorm:"column:state;not null;uniqueIndex:ux_tax_rates_state"`
	RateBps   int       `gorm:"column:rate_bps;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
