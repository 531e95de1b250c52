package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/pricing"
	dbpkg "github.com/dmcastellanos/storefront-backend/pkg/db"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/types"
)

// Actors recorded in the status history audit log.
const (
	ActorCustomer = "customer"
	ActorGateway  = "gateway"
	ActorWebhook  = "webhook"
	ActorSystem   = "system"
)

const orderNumberAttempts = 5

// CreateInput carries a priced checkout ready to persist.
type CreateInput struct {
	Email           string
	ShippingAddress *types.Address
	Totals          pricing.Totals
	CouponCode      *string
	GiftCardCode    *string
	Currency        string
}

// Service owns the order state machine. Every mutation goes through a
// repository transition and appends exactly one status history row.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string) error
	MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, captureID, actor string) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, order *models.Order, reason, actor string) (bool, error)
	Cancel(ctx context.Context, tx *gorm.DB, order *models.Order, reason, actor string) error
	ApplyRefund(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor string) (enums.PaymentStatus, error)
	RecordPaymentTransaction(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction) (bool, error)
	HasPaymentTransaction(ctx context.Context, providerTxnID string) (bool, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type service struct {
	repo Repository
}

// NewService builds the order ledger service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

// allowedTransitions is the order status state machine. Missing entries are
// terminal states; backward transitions are rejected by omission.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusFailed, enums.OrderStatusCancelled, enums.OrderStatusOnHold},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusFailed, enums.OrderStatusRefunded, enums.OrderStatusOnHold},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusRefunded, enums.OrderStatusOnHold},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered:  {enums.OrderStatusRefunded},
	enums.OrderStatusOnHold:     {enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	if from == to {
		return false
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	// Cancellation is legal from any non-terminal state; the repository
	// guard additionally requires payment to still be pending.
	if to == enums.OrderStatusCancelled && !from.IsTerminal() {
		return true
	}
	return false
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for order creation")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if len(input.Totals.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	repo := s.repo.WithTx(tx)
	orderID := uuid.New()

	items := make([]models.OrderItem, 0, len(input.Totals.Lines))
	for _, line := range input.Totals.Lines {
		items = append(items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			VariationID:    line.VariationID,
			Name:           line.Name,
			SKU:            line.SKU,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
			TaxCents:       line.TaxCents,
			Taxable:        line.Taxable,
		})
	}

	order := &models.Order{
		ID:                orderID,
		Email:             strings.TrimSpace(input.Email),
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
		Currency:          currency,
		SubtotalCents:     input.Totals.SubtotalCents,
		DiscountCents:     input.Totals.DiscountCents,
		ShippingCents:     input.Totals.ShippingCents,
		TaxCents:          input.Totals.TaxCents,
		GiftCardCents:     input.Totals.GiftCardCents,
		GrandTotalCents:   input.Totals.GrandTotalCents,
		CouponCode:        input.CouponCode,
		GiftCardCode:      input.GiftCardCode,
		ShippingAddress:   input.ShippingAddress,
		PaymentProvider:   "paypal",
		Items:             items,
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = newOrderNumber(time.Now())
		err = repo.Create(ctx, order)
		if err == nil {
			break
		}
		if !dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	history := &models.OrderStatusHistory{
		ID:               uuid.New(),
		OrderID:          order.ID,
		NewStatus:        enums.OrderStatusPending,
		NewPaymentStatus: enums.PaymentStatusPending,
		Actor:            ActorCustomer,
	}
	if err := repo.AppendHistory(ctx, history); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	order, err := s.repo.FindByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for gateway session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by provider order id")
	}
	return order, nil
}

func (s *service) AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	if strings.TrimSpace(providerOrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider order id required")
	}
	attached, err := s.repo.SetProviderOrderID(ctx, id, providerOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach provider order")
	}
	if !attached {
		return pkgerrors.New(pkgerrors.CodeConflict, "order already attached to a different gateway session")
	}
	return nil
}

// MarkPaid flips pending -> confirmed/paid with the optimistic guard. The
// false return means another caller settled first; the caller treats that as
// an idempotent no-op, not an error.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, captureID, actor string) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to mark order paid")
	}
	if !CanTransition(order.Status, enums.OrderStatusConfirmed) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot move from %s to confirmed", order.Status))
	}

	repo := s.repo.WithTx(tx)
	paidAt := time.Now()
	flipped, err := repo.MarkPaid(ctx, order.ID, captureID, paidAt)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !flipped {
		return false, nil
	}

	history := historyRow(order, enums.OrderStatusConfirmed, enums.PaymentStatusPaid, actor, nil)
	if err := repo.AppendHistory(ctx, history); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.PaymentStatusPaid
	order.CaptureID = &captureID
	order.PaidAt = &paidAt
	return true, nil
}

// MarkFailed transitions a pending order to failed after a declined capture.
// Orders already settled are left untouched.
func (s *service) MarkFailed(ctx context.Context, tx *gorm.DB, order *models.Order, reason, actor string) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to mark order failed")
	}

	repo := s.repo.WithTx(tx)
	flipped, err := repo.MarkFailed(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
	}
	if !flipped {
		return false, nil
	}

	note := reason
	history := historyRow(order, enums.OrderStatusFailed, enums.PaymentStatusFailed, actor, &note)
	if err := repo.AppendHistory(ctx, history); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	order.Status = enums.OrderStatusFailed
	order.PaymentStatus = enums.PaymentStatusFailed
	return true, nil
}

// Cancel closes an order that never reached capture.
func (s *service) Cancel(ctx context.Context, tx *gorm.DB, order *models.Order, reason, actor string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required to cancel order")
	}
	if !CanTransition(order.Status, enums.OrderStatusCancelled) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot be cancelled from %s", order.Status))
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only uncaptured orders can be cancelled")
	}

	repo := s.repo.WithTx(tx)
	cancelledAt := time.Now()
	cancelled, err := repo.MarkCancelled(ctx, order.ID, cancelledAt)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !cancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed; cancellation rejected")
	}

	note := reason
	history := historyRow(order, enums.OrderStatusCancelled, enums.PaymentStatusCancelled, actor, &note)
	if err := repo.AppendHistory(ctx, history); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	order.Status = enums.OrderStatusCancelled
	order.PaymentStatus = enums.PaymentStatusCancelled
	order.CancelledAt = &cancelledAt
	return nil
}

// ApplyRefund accumulates refunded totals and moves payment_status to
// refunded or partially_refunded depending on the remaining balance.
func (s *service) ApplyRefund(ctx context.Context, tx *gorm.DB, order *models.Order, amountCents int64, actor string) (enums.PaymentStatus, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transaction required to apply refund")
	}
	if amountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if !order.PaymentStatus.Refundable() {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment status %s is not refundable", order.PaymentStatus))
	}
	if amountCents > order.RemainingCents() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds remaining order balance")
	}

	newRefunded := order.RefundedCents + amountCents
	newPayment := enums.PaymentStatusPartiallyRefunded
	newStatus := order.Status
	if newRefunded >= order.GrandTotalCents {
		newPayment = enums.PaymentStatusRefunded
		if CanTransition(order.Status, enums.OrderStatusRefunded) {
			newStatus = enums.OrderStatusRefunded
		}
	}

	repo := s.repo.WithTx(tx)
	if err := repo.ApplyRefundTotals(ctx, order.ID, newRefunded, newPayment, newStatus); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund totals")
	}

	history := historyRow(order, newStatus, newPayment, actor, nil)
	if err := repo.AppendHistory(ctx, history); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	order.RefundedCents = newRefunded
	order.PaymentStatus = newPayment
	order.Status = newStatus
	return newPayment, nil
}

// RecordPaymentTransaction appends the audit row. The unique provider
// transaction id makes the append idempotent: a duplicate insert reports
// false without error so webhook replays do not double-record.
func (s *service) RecordPaymentTransaction(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to record payment transaction")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}

	err := s.repo.WithTx(tx).AppendPaymentTransaction(ctx, row)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment transaction")
	}
	return true, nil
}

func (s *service) HasPaymentTransaction(ctx context.Context, providerTxnID string) (bool, error) {
	_, err := s.repo.FindPaymentTransactionByProviderTxn(ctx, providerTxnID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment transaction")
	}
	return true, nil
}

func (s *service) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}
	return rows, nil
}

func historyRow(order *models.Order, newStatus enums.OrderStatus, newPayment enums.PaymentStatus, actor string, note *string) *models.OrderStatusHistory {
	prevStatus := order.Status
	prevPayment := order.PaymentStatus
	return &models.OrderStatusHistory{
		ID:                    uuid.New(),
		OrderID:               order.ID,
		PreviousStatus:        &prevStatus,
		NewStatus:             newStatus,
		PreviousPaymentStatus: &prevPayment,
		NewPaymentStatus:      newPayment,
		Actor:                 actor,
		Note:                  note,
	}
}

// newOrderNumber builds a human-readable number: SF-YYYYMMDD-XXXXXX.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("SF-%s-%s", now.Format("20060102"), suffix)
}
