package enums

import "fmt"

// GiftCardStatus tracks whether a gift card can still be redeemed.
type GiftCardStatus string

const (
	GiftCardStatusActive   GiftCardStatus = "active"
	GiftCardStatusDepleted GiftCardStatus = "depleted"
	GiftCardStatusDisabled GiftCardStatus = "disabled"
	GiftCardStatusExpired  GiftCardStatus = "expired"
)

var validGiftCardStatuses = []GiftCardStatus{
	GiftCardStatusActive,
	GiftCardStatusDepleted,
	GiftCardStatusDisabled,
	GiftCardStatusExpired,
}

// String implements fmt.Stringer.
func (g GiftCardStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GiftCardStatus.
func (g GiftCardStatus) IsValid() bool {
	for _, candidate := range validGiftCardStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGiftCardStatus converts raw input into a GiftCardStatus.
func ParseGiftCardStatus(value string) (GiftCardStatus, error) {
	for _, candidate := range validGiftCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card status %q", value)
}

// GiftCardTransactionType classifies a gift card ledger row.
type GiftCardTransactionType string

const (
	GiftCardTransactionTypePurchase   GiftCardTransactionType = "purchase"
	GiftCardTransactionTypeRedemption GiftCardTransactionType = "redemption"
	GiftCardTransactionTypeRefund     GiftCardTransactionType = "refund"
	GiftCardTransactionTypeAdjustment GiftCardTransactionType = "adjustment"
)

var validGiftCardTransactionTypes = []GiftCardTransactionType{
	GiftCardTransactionTypePurchase,
	GiftCardTransactionTypeRedemption,
	GiftCardTransactionTypeRefund,
	GiftCardTransactionTypeAdjustment,
}

// IsValid reports whether the value is a known GiftCardTransactionType.
func (g GiftCardTransactionType) IsValid() bool {
	for _, candidate := range validGiftCardTransactionTypes {
		if candidate == g {
			return true
		}
	}
	return false
}

// Debit reports whether the transaction type reduces the card balance.
func (g GiftCardTransactionType) Debit() bool {
	return g == GiftCardTransactionTypeRedemption
}
