package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastellanos/storefront-backend/internal/catalog"
	"github.com/dmcastellanos/storefront-backend/internal/giftcards"
	"github.com/dmcastellanos/storefront-backend/internal/inventory"
	"github.com/dmcastellanos/storefront-backend/internal/orders"
	"github.com/dmcastellanos/storefront-backend/internal/pricing"
	"github.com/dmcastellanos/storefront-backend/pkg/config"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/metrics"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox/payloads"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
	"github.com/dmcastellanos/storefront-backend/pkg/types"
)

// Settlement sources, used as metric labels and to pick the history actor.
const (
	SourceDirect  = "direct"
	SourceWebhook = "webhook"
)

// giftCardCapturePrefix marks synthetic capture ids for orders fully covered
// by a gift card, where no gateway call happens.
const giftCardCapturePrefix = "GC-"

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutInput is the raw order request before resolution and pricing.
type CheckoutInput struct {
	Email           string
	Lines           []catalog.CartLine
	ShippingAddress *types.Address
	CouponCode      *string
	GiftCardCode    *string
	Currency        string
}

// Session is the gateway handoff returned to the client for approval.
type Session struct {
	OrderID         uuid.UUID
	ProviderOrderID string
	ApproveURL      string
}

// CaptureResult reports the settlement outcome for an order.
type CaptureResult struct {
	OrderID       uuid.UUID
	OrderNumber   string
	PaymentStatus enums.PaymentStatus
	CaptureID     string
	AmountCents   int64
}

// Service sequences checkout: pricing, the pending order, the gateway
// session, and the shared capture settlement both the direct capture call
// and the webhook reconciler funnel through.
type Service struct {
	tx        TxRunner
	orders    orders.Service
	giftcards giftcards.Service
	inventory inventory.Service
	catalog   *catalog.Resolver
	outbox    *outbox.Service
	gateway   Gateway
	cfg       config.SettlementConfig
	currency  string
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
}

// NewService wires the settlement orchestrator.
func NewService(
	tx TxRunner,
	orderSvc orders.Service,
	giftCardSvc giftcards.Service,
	inventorySvc inventory.Service,
	resolver *catalog.Resolver,
	outboxSvc *outbox.Service,
	gateway Gateway,
	cfg config.SettlementConfig,
	currency string,
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
	if resolver == nil {
		return nil, fmt.Errorf("catalog resolver required")
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
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		tx:        tx,
		orders:    orderSvc,
		giftcards: giftCardSvc,
		inventory: inventorySvc,
		catalog:   resolver,
		outbox:    outboxSvc,
		gateway:   gateway,
		cfg:       cfg,
		currency:  currency,
		metrics:   settlementMetrics,
		logg:      logg,
	}, nil
}

// Checkout resolves the cart, prices it, and persists a pending order.
// Nothing is captured and no stock moves here.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	lines, err := s.catalog.ResolveLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	var coupon *pricing.CouponTerms
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		coupon, err = s.catalog.ResolveCoupon(ctx, *input.CouponCode)
		if err != nil {
			return nil, err
		}
	}

	var giftCardBalance int64
	if input.GiftCardCode != nil && strings.TrimSpace(*input.GiftCardCode) != "" {
		card, err := s.giftcards.Balance(ctx, *input.GiftCardCode)
		if err != nil {
			return nil, err
		}
		giftCardBalance = card.CurrentBalanceCents
	}

	var taxRateBps int
	if input.ShippingAddress != nil {
		taxRateBps, err = s.catalog.TaxRateBps(ctx, input.ShippingAddress.State)
		if err != nil {
			return nil, err
		}
	}

	totals, err := pricing.Calculate(pricing.Input{
		Lines:                 lines,
		Coupon:                coupon,
		TaxRateBps:            taxRateBps,
		ShippingFlatCents:     s.cfg.ShippingFlatCents,
		FreeShippingThreshold: s.cfg.FreeShippingCents,
		GiftCardBalanceCents:  giftCardBalance,
	})
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err = s.orders.Create(ctx, tx, orders.CreateInput{
			Email:           input.Email,
			ShippingAddress: input.ShippingAddress,
			Totals:          totals,
			CouponCode:      input.CouponCode,
			GiftCardCode:    input.GiftCardCode,
			Currency:        input.Currency,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.ActorCustomer,
			Data: payloads.OrderCreatedEvent{
				OrderID:         order.ID,
				OrderNumber:     order.OrderNumber,
				Email:           order.Email,
				GrandTotalCents: order.GrandTotalCents,
				Currency:        order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	return order, nil
}

// CreateSession opens the gateway order the payer approves externally. The
// request id is derived from the order id so retries reuse the provider-side
// idempotency window rather than opening a second gateway order.
func (s *Service) CreateSession(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment status is %s; session unavailable", order.PaymentStatus))
	}
	if order.GrandTotalCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"order total is fully covered by gift card; capture directly")
	}
	if order.ProviderOrderID != nil {
		return &Session{OrderID: order.ID, ProviderOrderID: *order.ProviderOrderID}, nil
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, paypal.CreateOrderParams{
		CustomID:    order.ID.String(),
		InvoiceID:   order.OrderNumber,
		AmountCents: order.GrandTotalCents,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Order %s", order.OrderNumber),
		RequestID:   "session-" + order.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.AttachProviderOrder(ctx, order.ID, gatewayOrder.ID); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "gateway session created")
	return &Session{
		OrderID:         order.ID,
		ProviderOrderID: gatewayOrder.ID,
		ApproveURL:      gatewayOrder.ApproveURL(),
	}, nil
}

// Capture settles an approved order. The gateway call runs before the local
// transaction so a slow provider never holds a database transaction open;
// the settlement itself goes through ApplyCapture.
func (s *Service) Capture(ctx context.Context, orderID uuid.UUID) (*CaptureResult, error) {
	started := time.Now()
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	// A retried capture call for a settled order is a no-op success.
	if order.PaymentStatus == enums.PaymentStatusPaid {
		s.observeCapture(SourceDirect, "noop", started)
		return captureResult(order), nil
	}

	capture, err := s.captureAtGateway(ctx, order)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodePaymentDeclined {
			if failErr := s.FailCapture(ctx, order, err.Error(), SourceDirect); failErr != nil {
				s.logg.Error(ctx, "mark order failed after decline", failErr)
			}
			s.observeCapture(SourceDirect, "declined", started)
			return nil, err
		}
		s.observeCapture(SourceDirect, "error", started)
		return nil, err
	}

	if capture.Status != paypal.CaptureStatusCompleted {
		s.observeCapture(SourceDirect, "pending", started)
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("capture %s is %s at the provider; retry later", capture.ID, capture.Status))
	}

	if err := s.ApplyCapture(ctx, order, capture, SourceDirect); err != nil {
		s.observeCapture(SourceDirect, "error", started)
		return nil, err
	}

	outcome := "settled"
	if order.PaymentStatus != enums.PaymentStatusPaid {
		// A concurrent settlement won the flip; reload so the result
		// reflects the winning capture instead of the stale snapshot.
		order, err = s.orders.Get(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		outcome = "noop"
	}
	s.observeCapture(SourceDirect, outcome, started)
	return captureResult(order), nil
}

func (s *Service) captureAtGateway(ctx context.Context, order *models.Order) (*paypal.Capture, error) {
	// Orders fully offset by a gift card carry no capturable balance; the
	// settlement still runs, anchored on a synthetic capture id.
	if order.GrandTotalCents == 0 {
		return &paypal.Capture{
			ID:     giftCardCapturePrefix + order.OrderNumber,
			Status: paypal.CaptureStatusCompleted,
			Final:  true,
		}, nil
	}
	if order.ProviderOrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no gateway session")
	}
	return s.gateway.CaptureOrder(ctx, *order.ProviderOrderID, "capture-"+order.ID.String())
}

// ApplyCapture is the one settlement routine. Direct captures and webhook
// deliveries both land here, possibly concurrently for the same capture:
// the optimistic status flip decides the winner and the loser exits as a
// no-op without touching any ledger.
func (s *Service) ApplyCapture(ctx context.Context, order *models.Order, capture *paypal.Capture, source string) error {
	actor := orders.ActorGateway
	if source == SourceWebhook {
		actor = orders.ActorWebhook
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		flipped, err := s.orders.MarkPaid(ctx, tx, order, capture.ID, actor)
		if err != nil {
			return err
		}
		if !flipped {
			s.logg.Info(ctx, "capture already applied; skipping settlement")
			return nil
		}

		inserted, err := s.orders.RecordPaymentTransaction(ctx, tx, &models.PaymentTransaction{
			OrderID:               order.ID,
			Provider:              order.PaymentProvider,
			Type:                  enums.PaymentTransactionTypeCapture,
			Status:                enums.PaymentTransactionStatusCompleted,
			AmountCents:           capture.AmountCents,
			Currency:              order.Currency,
			ProviderTransactionID: capture.ID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			s.logg.Warn(ctx, "capture transaction already recorded")
		}

		if order.GiftCardCode != nil && order.GiftCardCents > 0 {
			if _, err := s.giftcards.Redeem(ctx, tx, *order.GiftCardCode, order.GiftCardCents, order.ID); err != nil {
				return err
			}
		}

		if order.CouponCode != nil && *order.CouponCode != "" {
			if err := s.catalog.WithTx(tx).ConsumeCoupon(ctx, *order.CouponCode); err != nil {
				return err
			}
		}

		for i := range order.Items {
			item := &order.Items[i]
			if _, err := s.inventory.Decrement(ctx, tx, inventory.Adjustment{
				ProductID:   item.ProductID,
				VariationID: item.VariationID,
				Quantity:    item.Quantity,
				OrderID:     order.ID,
			}); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				Email:         order.Email,
				CaptureID:     capture.ID,
				CapturedCents: capture.AmountCents,
				GiftCardCents: order.GiftCardCents,
				Source:        source,
				PaidAt:        time.Now(),
			},
		})
	})
}

// FailCapture moves a still-pending order to failed after a denied capture.
// Orders that settled in the meantime are left untouched.
func (s *Service) FailCapture(ctx context.Context, order *models.Order, reason, source string) error {
	actor := orders.ActorGateway
	if source == SourceWebhook {
		actor = orders.ActorWebhook
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		flipped, err := s.orders.MarkFailed(ctx, tx, order, reason, actor)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCaptureFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCaptureFailedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Reason:      reason,
				Source:      source,
			},
		})
	})
}

// Cancel closes a pending order before capture and emits the cancellation.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.Cancel(ctx, tx, order, reason, orders.ActorCustomer); err != nil {
			return err
		}
		cancelledAt := time.Now()
		if order.CancelledAt != nil {
			cancelledAt = *order.CancelledAt
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.ActorCustomer,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Reason:      reason,
				CancelledAt: cancelledAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order cancelled")
	return order, nil
}

// GetOrder exposes order lookup to the HTTP layer.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) observeCapture(source, outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCapture(source, outcome, time.Since(started))
}

func captureResult(order *models.Order) *CaptureResult {
	result := &CaptureResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: order.PaymentStatus,
		AmountCents:   order.GrandTotalCents,
	}
	if order.CaptureID != nil {
		result.CaptureID = *order.CaptureID
	}
	return result
}
