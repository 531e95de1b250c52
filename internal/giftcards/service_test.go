package giftcards

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

func setupGiftCardTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:giftcards_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	giftCards := `
CREATE TABLE IF NOT EXISTS gift_cards (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  initial_balance_cents INTEGER NOT NULL,
  current_balance_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS gift_card_transactions (
  id TEXT PRIMARY KEY,
  gift_card_id TEXT NOT NULL,
  order_id TEXT,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_before_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(giftCards).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func newCard(t *testing.T, db *gorm.DB, balanceCents int64, status enums.GiftCardStatus) *models.GiftCard {
	t.Helper()

	card := &models.GiftCard{
		ID:                  uuid.New(),
		Code:                "GC-" + uuid.NewString()[:8],
		InitialBalanceCents: balanceCents,
		CurrentBalanceCents: balanceCents,
		Status:              status,
	}
	require.NoError(t, db.Create(card).Error)
	return card
}

func TestRedeem_DebitsBalanceAndAppendsLedgerRow(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	card := newCard(t, db, 5000, enums.GiftCardStatusActive)
	orderID := uuid.New()

	row, err := svc.Redeem(context.Background(), db, card.Code, 2000, orderID)
	require.NoError(t, err)

	assert.Equal(t, enums.GiftCardTransactionTypeRedemption, row.Type)
	assert.Equal(t, int64(5000), row.BalanceBeforeCents)
	assert.Equal(t, int64(3000), row.BalanceAfterCents)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, orderID, *row.OrderID)

	var reloaded models.GiftCard
	require.NoError(t, db.First(&reloaded, "id = ?", card.ID).Error)
	assert.Equal(t, int64(3000), reloaded.CurrentBalanceCents)
	assert.Equal(t, enums.GiftCardStatusActive, reloaded.Status)
}

func TestRedeem_DepletesCardAtZeroBalance(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	card := newCard(t, db, 2500, enums.GiftCardStatusActive)

	_, err = svc.Redeem(context.Background(), db, card.Code, 2500, uuid.New())
	require.NoError(t, err)

	var reloaded models.GiftCard
	require.NoError(t, db.First(&reloaded, "id = ?", card.ID).Error)
	assert.Equal(t, int64(0), reloaded.CurrentBalanceCents)
	assert.Equal(t, enums.GiftCardStatusDepleted, reloaded.Status)
}

func TestRedeem_InsufficientBalanceWritesNothing(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	card := newCard(t, db, 1000, enums.GiftCardStatusActive)

	_, err = svc.Redeem(context.Background(), db, card.Code, 1500, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	var reloaded models.GiftCard
	require.NoError(t, db.First(&reloaded, "id = ?", card.ID).Error)
	assert.Equal(t, int64(1000), reloaded.CurrentBalanceCents)

	var count int64
	require.NoError(t, db.Model(&models.GiftCardTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRedeem_RejectsUnusableCards(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	for _, status := range []enums.GiftCardStatus{
		enums.GiftCardStatusDisabled,
		enums.GiftCardStatusExpired,
		enums.GiftCardStatusDepleted,
	} {
		card := newCard(t, db, 1000, status)
		_, err := svc.Redeem(context.Background(), db, card.Code, 500, uuid.New())
		require.Error(t, err, "status %s", status)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	}

	_, err = svc.Redeem(context.Background(), db, "MISSING", 500, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestBalance_RejectsUnusableCards(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	active := newCard(t, db, 2500, enums.GiftCardStatusActive)
	card, err := svc.Balance(context.Background(), active.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), card.CurrentBalanceCents)

	for _, status := range []enums.GiftCardStatus{
		enums.GiftCardStatusDisabled,
		enums.GiftCardStatusExpired,
		enums.GiftCardStatusDepleted,
	} {
		unusable := newCard(t, db, 1000, status)
		_, err := svc.Balance(context.Background(), unusable.Code)
		require.Error(t, err, "status %s", status)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	}

	// An active card past its expiry date is just as unusable.
	lapsed := newCard(t, db, 1000, enums.GiftCardStatusActive)
	expiry := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(lapsed).Update("expires_at", expiry).Error)
	_, err = svc.Balance(context.Background(), lapsed.Code)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	_, err = svc.Balance(context.Background(), "MISSING")
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCredit_RestoresBalanceAndReactivatesCard(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	card := newCard(t, db, 3000, enums.GiftCardStatusActive)
	orderID := uuid.New()

	_, err = svc.Redeem(context.Background(), db, card.Code, 3000, orderID)
	require.NoError(t, err)

	row, err := svc.Credit(context.Background(), db, card.Code, 1000, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.GiftCardTransactionTypeRefund, row.Type)
	assert.Equal(t, int64(0), row.BalanceBeforeCents)
	assert.Equal(t, int64(1000), row.BalanceAfterCents)

	var reloaded models.GiftCard
	require.NoError(t, db.First(&reloaded, "id = ?", card.ID).Error)
	assert.Equal(t, int64(1000), reloaded.CurrentBalanceCents)
	assert.Equal(t, enums.GiftCardStatusActive, reloaded.Status)
}

func TestCredit_NeverExceedsInitialBalance(t *testing.T) {
	db := setupGiftCardTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	card := newCard(t, db, 3000, enums.GiftCardStatusActive)

	_, err = svc.Credit(context.Background(), db, card.Code, 500, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestLedger_ReconcilesWithCurrentBalance(t *testing.T) {
	db := setupGiftCardTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	card := newCard(t, db, 10000, enums.GiftCardStatusActive)
	orderID := uuid.New()

	_, err = svc.Redeem(context.Background(), db, card.Code, 4000, orderID)
	require.NoError(t, err)
	_, err = svc.Redeem(context.Background(), db, card.Code, 1000, orderID)
	require.NoError(t, err)
	_, err = svc.Credit(context.Background(), db, card.Code, 500, orderID)
	require.NoError(t, err)

	rows, err := repo.ListTransactions(context.Background(), card.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var signed int64
	for _, row := range rows {
		if row.Type.Debit() {
			signed += row.AmountCents
		} else {
			signed -= row.AmountCents
		}
	}

	var reloaded models.GiftCard
	require.NoError(t, db.First(&reloaded, "id = ?", card.ID).Error)
	assert.Equal(t, reloaded.InitialBalanceCents-reloaded.CurrentBalanceCents, signed)
	assert.Equal(t, reloaded.CurrentBalanceCents, rows[len(rows)-1].BalanceAfterCents)
}
