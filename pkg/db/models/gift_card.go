package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

// GiftCard holds a stored-value balance. CurrentBalanceCents only ever moves
// through GiftCardTransaction rows and stays within [0, InitialBalanceCents].
type GiftCard struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                string                `gorm:"column:code;not null;uniqueIndex:ux_gift_cards_code"`
	InitialBalanceCents int64                 `gorm:"column:initial_balance_cents;not null"`
	CurrentBalanceCents int64                 `gorm:"column:current_balance_cents;not null"`
	Status              enums.GiftCardStatus  `gorm:"column:status;type:gift_card_status;not null;default:'active'"`
	ExpiresAt           *time.Time            `gorm:"column:expires_at"`
	Transactions        []GiftCardTransaction `gorm:"foreignKey:GiftCardID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// GiftCardTransaction is the append-only balance ledger. The latest row's
// BalanceAfterCents must equal the card's CurrentBalanceCents.
type GiftCardTransaction struct {
	ID                 uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GiftCardID         uuid.UUID                     `gorm:"column:gift_card_id;type:uuid;not null;index"`
	OrderID            *uuid.UUID                    `gorm:"column:order_id;type:uuid;index"`
	Type               enums.GiftCardTransactionType `gorm:"column:type;type:gift_card_transaction_type;not null"`
	AmountCents        int64                         `gorm:"column:amount_cents;not null"`
	BalanceBeforeCents int64                         `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int64                         `gorm:"column:balance_after_cents;not null"`
	CreatedAt          time.Time                     `gorm:"column:created_at;autoCreateTime"`
}
