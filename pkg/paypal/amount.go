package paypal

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// amount is the PayPal money shape: a decimal string plus currency code.
type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func amountFromCents(cents int64, currency string) amount {
	return amount{
		CurrencyCode: currency,
		Value:        decimal.New(cents, -2).StringFixed(2),
	}
}

func (a amount) cents() (int64, error) {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("parsing paypal amount %q", a.Value))
	}
	return d.Shift(2).IntPart(), nil
}
