package giftcards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

// Service owns gift-card balance movement. Redeem and Credit must run inside
// the caller's settlement transaction so a rollback undoes the balance change
// together with everything else.
type Service interface {
	Redeem(ctx context.Context, tx *gorm.DB, code string, amountCents int64, orderID uuid.UUID) (*models.GiftCardTransaction, error)
	Credit(ctx context.Context, tx *gorm.DB, code string, amountCents int64, orderID uuid.UUID) (*models.GiftCardTransaction, error)
	Balance(ctx context.Context, code string) (*models.GiftCard, error)
}

type service struct {
	repo Repository
}

// NewService builds a gift-card service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("gift card repository required")
	}
	return &service{repo: repo}, nil
}

// Redeem debits the card atomically and appends the redemption ledger row.
// The conditional update is the double-spend guard: two concurrent
// redemptions of the same balance cannot both pass the balance check.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, code string, amountCents int64, orderID uuid.UUID) (*models.GiftCardTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for gift card redemption")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redemption amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	card, err := s.loadUsableCard(ctx, repo, code)
	if err != nil {
		return nil, err
	}

	debited, err := repo.DebitBalance(ctx, card.ID, amountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit gift card")
	}
	if !debited {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient gift card balance").
			WithDetails(map[string]any{"code": card.Code})
	}

	after, err := repo.FindByID(ctx, card.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift card")
	}

	row := &models.GiftCardTransaction{
		ID:                 uuid.New(),
		GiftCardID:         card.ID,
		OrderID:            &orderID,
		Type:               enums.GiftCardTransactionTypeRedemption,
		AmountCents:        amountCents,
		BalanceBeforeCents: after.CurrentBalanceCents + amountCents,
		BalanceAfterCents:  after.CurrentBalanceCents,
	}
	if err := repo.AppendTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append gift card transaction")
	}
	return row, nil
}

// Credit returns value to the card, bounded by its initial balance.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, code string, amountCents int64, orderID uuid.UUID) (*models.GiftCardTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for gift card credit")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	card, err := repo.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}

	credited, err := repo.CreditBalance(ctx, card.ID, amountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit gift card")
	}
	if !credited {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "credit would exceed gift card initial balance").
			WithDetails(map[string]any{"code": card.Code})
	}

	after, err := repo.FindByID(ctx, card.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift card")
	}

	row := &models.GiftCardTransaction{
		ID:                 uuid.New(),
		GiftCardID:         card.ID,
		OrderID:            &orderID,
		Type:               enums.GiftCardTransactionTypeRefund,
		AmountCents:        amountCents,
		BalanceBeforeCents: after.CurrentBalanceCents - amountCents,
		BalanceAfterCents:  after.CurrentBalanceCents,
	}
	if err := repo.AppendTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append gift card transaction")
	}
	return row, nil
}

// Balance returns the card for display purposes, applying the same usability
// classification as Redeem so clients see the real reason a card is unusable.
func (s *service) Balance(ctx context.Context, code string) (*models.GiftCard, error) {
	return s.loadUsableCard(ctx, s.repo, code)
}

func (s *service) loadUsableCard(ctx context.Context, repo Repository, code string) (*models.GiftCard, error) {
	card, err := repo.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}
	switch card.Status {
	case enums.GiftCardStatusActive:
	case enums.GiftCardStatusDepleted:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card balance is depleted")
	case enums.GiftCardStatusDisabled:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card is disabled")
	case enums.GiftCardStatusExpired:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card has expired")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card is not usable")
	}
	if card.ExpiresAt != nil && card.ExpiresAt.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card has expired")
	}
	return card, nil
}
