package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/pricing"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// CartLine is the raw client request shape before resolution.
type CartLine struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Quantity    int
}

// Resolver turns cart lines into priced snapshot lines and validates coupons
// against the live catalog.
type Resolver struct {
	repo *Repository
}

// NewResolver builds a catalog resolver.
func NewResolver(repo *Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Resolver{repo: repo}, nil
}

// WithTx returns a resolver reading through the provided transaction.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{repo: r.repo.WithTx(tx)}
}

// ResolveLines prices each cart line against the catalog. Unknown products,
// inactive listings, and quantities beyond available stock (when backorder is
// disallowed) are rejected before any mutation happens.
func (r *Resolver) ResolveLines(ctx context.Context, lines []CartLine) ([]pricing.Line, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item required")
	}

	resolved := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}

		product, err := r.repo.FindProductByID(ctx, line.ProductID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown product %s", line.ProductID))
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is not available", product.SKU))
		}

		unitPrice := product.PriceCents
		name := product.Name
		sku := product.SKU
		if line.VariationID != nil {
			variation := findVariation(product, *line.VariationID)
			if variation == nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown variation for product %s", product.SKU))
			}
			unitPrice += variation.PriceModifierCents
			name = fmt.Sprintf("%s (%s)", product.Name, variation.Name)
			sku = variation.SKU
		}
		if unitPrice < 0 {
			unitPrice = 0
		}

		if product.TrackInventory && !product.AllowBackorder && line.Quantity > product.StockQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock for %s", sku)).
				WithDetails(map[string]any{"sku": sku, "available": product.StockQuantity})
		}

		resolved = append(resolved, pricing.Line{
			ProductID:      product.ID,
			VariationID:    line.VariationID,
			Name:           name,
			SKU:            sku,
			UnitPriceCents: unitPrice,
			Quantity:       line.Quantity,
			Taxable:        product.Taxable,
		})
	}
	return resolved, nil
}

// ResolveCoupon validates a coupon code and returns its pricing terms.
func (r *Resolver) ResolveCoupon(ctx context.Context, code string) (*pricing.CouponTerms, error) {
	coupon, err := r.repo.FindCouponByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown coupon code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if !coupon.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	}

	return &pricing.CouponTerms{
		Code:             coupon.Code,
		Type:             coupon.Type,
		Value:            coupon.Value,
		MinOrderCents:    coupon.MinOrderCents,
		MaxDiscountCents: coupon.MaxDiscountCents,
	}, nil
}

// TaxRateBps returns the basis-point rate for a shipping state, zero when the
// state has no configured rate.
func (r *Resolver) TaxRateBps(ctx context.Context, state string) (int, error) {
	if state == "" {
		return 0, nil
	}
	rate, err := r.repo.FindTaxRateByState(ctx, state)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax rate")
	}
	if rate == nil {
		return 0, nil
	}
	return rate.RateBps, nil
}

// ConsumeCoupon counts one use against the coupon's limit.
func (r *Resolver) ConsumeCoupon(ctx context.Context, code string) error {
	coupon, err := r.repo.FindCouponByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown coupon code")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	bumped, err := r.repo.IncrementCouponUsage(ctx, coupon.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	if !bumped {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon usage limit reached")
	}
	return nil
}

func findVariation(product *models.Product, id uuid.UUID) *models.ProductVariation {
	for i := range product.Variations {
		if product.Variations[i].ID == id {
			return &product.Variations[i]
		}
	}
	return nil
}
