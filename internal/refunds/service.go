package refunds

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/giftcards"
	"github.com/dmcastellanos/storefront-backend/internal/inventory"
	"github.com/dmcastellanos/storefront-backend/internal/orders"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/pkg/config"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/metrics"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox/payloads"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
)

// Input describes one refund request. AmountCents of 0 refunds the full
// remaining balance.
type Input struct {
	OrderID     uuid.UUID
	AmountCents int64
	Reason      string
	Restock     bool
}

// Result reports the applied refund.
type Result struct {
	OrderID            uuid.UUID
	ProviderRefundID   string
	AmountCents        int64
	TotalRefundedCents int64
	PaymentStatus      enums.PaymentStatus
	Restocked          bool
}

// Service issues refunds: the gateway call runs first, outside any database
// transaction, then the bookkeeping commits as one unit.
type Service struct {
	tx        payments.TxRunner
	orders    orders.Service
	giftcards giftcards.Service
	inventory inventory.Service
	outbox    *outbox.Service
	gateway   payments.Gateway
	cfg       config.SettlementConfig
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
}

// NewService wires the refund processor.
func NewService(
	tx payments.TxRunner,
	orderSvc orders.Service,
	giftCardSvc giftcards.Service,
	inventorySvc inventory.Service,
	outboxSvc *outbox.Service,
	gateway payments.Gateway,
	cfg config.SettlementConfig,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if giftCardSvc == nil {
		return nil, fmt.Errorf("gift cards service required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:        tx,
		orders:    orderSvc,
		giftcards: giftCardSvc,
		inventory: inventorySvc,
		outbox:    outboxSvc,
		gateway:   gateway,
		cfg:       cfg,
		metrics:   settlementMetrics,
		logg:      logg,
	}, nil
}

// Refund moves money back to the payer and appends the matching ledger rows.
func (s *Service) Refund(ctx context.Context, input Input) (*Result, error) {
	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		s.incRefund("error")
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if !order.PaymentStatus.Refundable() {
		s.incRefund("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment status %s is not refundable", order.PaymentStatus))
	}

	amount := input.AmountCents
	if amount == 0 {
		amount = order.RemainingCents()
	}
	if amount <= 0 || amount > order.RemainingCents() {
		s.incRefund("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds remaining order balance")
	}
	if order.CaptureID == nil {
		s.incRefund("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no capture to refund")
	}

	refund, err := s.gateway.RefundCapture(ctx, paypal.RefundCaptureParams{
		CaptureID:   *order.CaptureID,
		AmountCents: amount,
		Currency:    order.Currency,
		NoteToPayer: input.Reason,
		RequestID:   "refund-" + uuid.NewString(),
	})
	if err != nil {
		s.incRefund("gateway_error")
		return nil, err
	}

	result := &Result{
		OrderID:          order.ID,
		ProviderRefundID: refund.ID,
		AmountCents:      amount,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		newPayment, err := s.orders.ApplyRefund(ctx, tx, order, amount, orders.ActorSystem)
		if err != nil {
			return err
		}
		result.PaymentStatus = newPayment
		result.TotalRefundedCents = order.RefundedCents

		if _, err := s.orders.RecordPaymentTransaction(ctx, tx, &models.PaymentTransaction{
			OrderID:               order.ID,
			Provider:              order.PaymentProvider,
			Type:                  enums.PaymentTransactionTypeRefund,
			Status:                enums.PaymentTransactionStatusCompleted,
			AmountCents:           amount,
			Currency:              order.Currency,
			ProviderTransactionID: refund.ID,
		}); err != nil {
			return err
		}

		if input.Restock {
			for i := range order.Items {
				item := &order.Items[i]
				if _, err := s.inventory.Restock(ctx, tx, inventory.Adjustment{
					ProductID:   item.ProductID,
					VariationID: item.VariationID,
					Quantity:    item.Quantity,
					OrderID:     order.ID,
				}); err != nil {
					return err
				}
			}
			result.Restocked = true
		}

		// Gift-card money only moves back on a full refund, and only when
		// the operator opted in.
		if s.cfg.RecreditGiftCards && newPayment == enums.PaymentStatusRefunded &&
			order.GiftCardCode != nil && order.GiftCardCents > 0 {
			if _, err := s.giftcards.Credit(ctx, tx, *order.GiftCardCode, order.GiftCardCents, order.ID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.ActorSystem,
			Data: payloads.OrderRefundedEvent{
				OrderID:            order.ID,
				OrderNumber:        order.OrderNumber,
				Email:              order.Email,
				RefundedCents:      amount,
				TotalRefundedCents: order.RefundedCents,
				ProviderRefundID:   refund.ID,
				PaymentStatus:      newPayment,
				Restocked:          result.Restocked,
			},
		})
	})
	if err != nil {
		s.incRefund("error")
		return nil, err
	}

	s.incRefund("applied")
	s.logg.Info(ctx, "refund applied")
	return result, nil
}

// ReconcileExternal records a refund the provider reports that has no local
// PaymentTransaction yet, for example one issued from the provider dashboard.
// Inventory and gift cards are left alone: the operator's intent is unknown.
func (s *Service) ReconcileExternal(ctx context.Context, order *models.Order, providerRefundID string, amountCents int64) error {
	if strings.TrimSpace(providerRefundID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider refund id required")
	}
	if amountCents <= 0 || amountCents > order.RemainingCents() {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds remaining order balance")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		newPayment, err := s.orders.ApplyRefund(ctx, tx, order, amountCents, orders.ActorWebhook)
		if err != nil {
			return err
		}
		inserted, err := s.orders.RecordPaymentTransaction(ctx, tx, &models.PaymentTransaction{
			OrderID:               order.ID,
			Provider:              order.PaymentProvider,
			Type:                  enums.PaymentTransactionTypeRefund,
			Status:                enums.PaymentTransactionStatusCompleted,
			AmountCents:           amountCents,
			Currency:              order.Currency,
			ProviderTransactionID: providerRefundID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			s.logg.Warn(ctx, "external refund already recorded")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.ActorWebhook,
			Data: payloads.OrderRefundedEvent{
				OrderID:            order.ID,
				OrderNumber:        order.OrderNumber,
				Email:              order.Email,
				RefundedCents:      amountCents,
				TotalRefundedCents: order.RefundedCents,
				ProviderRefundID:   providerRefundID,
				PaymentStatus:      newPayment,
			},
		})
	})
}

func (s *Service) incRefund(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRefund(outcome)
}
