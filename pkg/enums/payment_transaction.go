package enums

import "fmt"

// PaymentTransactionType classifies a gateway interaction row.
type PaymentTransactionType string

const (
	PaymentTransactionTypeAuthorization PaymentTransactionType = "authorization"
	PaymentTransactionTypeCapture       PaymentTransactionType = "capture"
	PaymentTransactionTypeRefund        PaymentTransactionType = "refund"
	PaymentTransactionTypeVoid          PaymentTransactionType = "void"
)

var validPaymentTransactionTypes = []PaymentTransactionType{
	PaymentTransactionTypeAuthorization,
	PaymentTransactionTypeCapture,
	PaymentTransactionTypeRefund,
	PaymentTransactionTypeVoid,
}

// String implements fmt.Stringer.
func (p PaymentTransactionType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentTransactionType.
func (p PaymentTransactionType) IsValid() bool {
	for _, candidate := range validPaymentTransactionTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentTransactionType converts raw input into a PaymentTransactionType.
func ParsePaymentTransactionType(value string) (PaymentTransactionType, error) {
	for _, candidate := range validPaymentTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction type %q", value)
}

// PaymentTransactionStatus is the provider-reported outcome for a transaction row.
type PaymentTransactionStatus string

const (
	PaymentTransactionStatusPending   PaymentTransactionStatus = "pending"
	PaymentTransactionStatusCompleted PaymentTransactionStatus = "completed"
	PaymentTransactionStatusFailed    PaymentTransactionStatus = "failed"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTransactionStatusPending,
	PaymentTransactionStatusCompleted,
	PaymentTransactionStatusFailed,
}

// IsValid reports whether the value is a known PaymentTransactionStatus.
func (p PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}
