package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// Line is a resolved, priced cart line. Resolution (price lookup, stock
// check) happens in the catalog package; the calculator is pure arithmetic.
type Line struct {
	ProductID      uuid.UUID
	VariationID    *uuid.UUID
	Name           string
	SKU            string
	UnitPriceCents int64
	Quantity       int
	Taxable        bool
}

// CouponTerms carries the discount rule to apply. For percentage coupons
// Value is basis points; for fixed coupons it is minor units.
type CouponTerms struct {
	Code             string
	Type             enums.CouponType
	Value            int64
	MinOrderCents    int64
	MaxDiscountCents int64
}

// Input is everything the calculator needs, already resolved.
type Input struct {
	Lines                 []Line
	Coupon                *CouponTerms
	TaxRateBps            int
	ShippingFlatCents     int64
	FreeShippingThreshold int64
	GiftCardBalanceCents  int64
}

// LineTotal is a Line extended with its computed totals.
type LineTotal struct {
	Line
	LineTotalCents int64
	TaxCents       int64
}

// Totals is the full breakdown. GrandTotalCents is what the gateway captures;
// GiftCardCents is settled separately against the card.
type Totals struct {
	Lines           []LineTotal
	SubtotalCents   int64
	DiscountCents   int64
	ShippingCents   int64
	TaxCents        int64
	GiftCardCents   int64
	GrandTotalCents int64
}

const bpsDenominator = 10000

// Calculate applies the pricing rules in their fixed order: subtotal,
// coupon discount (subtotal only, capped), flat shipping with free-shipping
// threshold, tax on pre-discount taxable line totals, then gift-card
// deduction bounded by the remaining payable amount. Fractional results
// round half-even to the minor unit.
func Calculate(in Input) (Totals, error) {
	if len(in.Lines) == 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item required")
	}

	rate := decimal.New(int64(in.TaxRateBps), 0).Div(decimal.New(bpsDenominator, 0))

	lines := make([]LineTotal, 0, len(in.Lines))
	var subtotal, taxTotal int64
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line unit price must not be negative")
		}

		lineTotal := line.UnitPriceCents * int64(line.Quantity)
		var lineTax int64
		if line.Taxable && in.TaxRateBps > 0 {
			lineTax = decimal.New(lineTotal, 0).Mul(rate).RoundBank(0).IntPart()
		}

		subtotal += lineTotal
		taxTotal += lineTax
		lines = append(lines, LineTotal{Line: line, LineTotalCents: lineTotal, TaxCents: lineTax})
	}

	discount, err := couponDiscount(in.Coupon, subtotal)
	if err != nil {
		return Totals{}, err
	}

	shipping := in.ShippingFlatCents
	if in.FreeShippingThreshold > 0 && subtotal >= in.FreeShippingThreshold {
		shipping = 0
	}

	payable := subtotal - discount + shipping + taxTotal
	giftCard := in.GiftCardBalanceCents
	if giftCard > payable {
		giftCard = payable
	}
	if giftCard < 0 {
		giftCard = 0
	}

	grand := payable - giftCard
	if grand < 0 {
		grand = 0
	}

	return Totals{
		Lines:           lines,
		SubtotalCents:   subtotal,
		DiscountCents:   discount,
		ShippingCents:   shipping,
		TaxCents:        taxTotal,
		GiftCardCents:   giftCard,
		GrandTotalCents: grand,
	}, nil
}

func couponDiscount(coupon *CouponTerms, subtotal int64) (int64, error) {
	if coupon == nil {
		return 0, nil
	}
	if subtotal < coupon.MinOrderCents {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order subtotal below coupon minimum")
	}

	var discount int64
	switch coupon.Type {
	case enums.CouponTypePercentage:
		discount = decimal.New(subtotal, 0).
			Mul(decimal.New(coupon.Value, 0)).
			Div(decimal.New(bpsDenominator, 0)).
			RoundBank(0).
			IntPart()
	case enums.CouponTypeFixed:
		discount = coupon.Value
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown coupon type")
	}

	if coupon.MaxDiscountCents > 0 && discount > coupon.MaxDiscountCents {
		discount = coupon.MaxDiscountCents
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
