package giftcards

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// Repository owns gift-card rows and their transaction ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.GiftCard, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCard, error)
	DebitBalance(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error)
	CreditBalance(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error)
	AppendTransaction(ctx context.Context, txRow *models.GiftCardTransaction) error
	ListTransactions(ctx context.Context, giftCardID uuid.UUID) ([]models.GiftCardTransaction, error)
}

// NewRepository builds a gift-card repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&card).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCard, error) {
	var card models.GiftCard
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// DebitBalance is a single conditional update so concurrent redemptions cannot
// overdraw the card. Returns false when the balance no longer covers amount.
func (r *repository) DebitBalance(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE gift_cards
		SET current_balance_cents = current_balance_cents - ?,
			status = CASE WHEN current_balance_cents - ? = 0 THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ? AND status = ? AND current_balance_cents >= ?
	`, amountCents, amountCents, enums.GiftCardStatusDepleted, time.Now(), id, enums.GiftCardStatusActive, amountCents)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditBalance mirrors DebitBalance and never pushes the balance above the
// card's initial value. A depleted card becomes active again.
func (r *repository) CreditBalance(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE gift_cards
		SET current_balance_cents = current_balance_cents + ?,
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ? AND status IN (?, ?) AND current_balance_cents + ? <= initial_balance_cents
	`, amountCents, enums.GiftCardStatusDepleted, enums.GiftCardStatusActive, time.Now(),
		id, enums.GiftCardStatusActive, enums.GiftCardStatusDepleted, amountCents)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendTransaction(ctx context.Context, txRow *models.GiftCardTransaction) error {
	return r.db.WithContext(ctx).Create(txRow).Error
}

func (r *repository) ListTransactions(ctx context.Context, giftCardID uuid.UUID) ([]models.GiftCardTransaction, error) {
	var rows []models.GiftCardTransaction
	err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", giftCardID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
