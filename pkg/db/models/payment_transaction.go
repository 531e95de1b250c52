package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

// PaymentTransaction is one row per gateway interaction. Rows are appended,
// never updated; the unique provider transaction id is the idempotency anchor
// for capture and refund application.
type PaymentTransaction struct {
	ID                    uuid.UUID                      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID                      `gorm:"column:order_id;type:uuid;not null;index"`
	Provider              string                         `gorm:"column:provider;not null"`
	Type                  enums.PaymentTransactionType   `gorm:"column:type;type:payment_transaction_type;not null"`
	Status                enums.PaymentTransactionStatus `gorm:"column:status;type:payment_transaction_status;not null"`
	AmountCents           int64                          `gorm:"column:amount_cents;not null"`
	Currency              string                         `gorm:"column:currency;not null;default:'USD'"`
	ProviderTransactionID string                         `gorm:"column:provider_transaction_id;not null;uniqueIndex:ux_payment_transactions_provider_txn"`
	RawResponse           json.RawMessage                `gorm:"column:raw_response;type:jsonb"`
	CreatedAt             time.Time                      `gorm:"column:created_at;autoCreateTime"`
}
