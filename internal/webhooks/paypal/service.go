package paypalwebhooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmcastellanos/storefront-backend/internal/orders"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/internal/refunds"
	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	"github.com/dmcastellanos/storefront-backend/pkg/enums"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/metrics"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
)

// Outcomes reported per delivery, also used as metric labels.
const (
	OutcomeApplied      = "applied"
	OutcomeNoop         = "noop"
	OutcomeIgnored      = "ignored"
	OutcomeUnknownOrder = "unknown_order"
)

// Service reconciles asynchronous provider deliveries against the local
// ledger. A delivery for an already-applied capture or refund acknowledges
// without touching anything; the settlement itself is the same ApplyCapture
// the direct capture path uses.
type Service struct {
	payments *payments.Service
	refunds  *refunds.Service
	orders   orders.Service
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
}

// NewService wires the reconciler.
func NewService(
	paymentSvc *payments.Service,
	refundSvc *refunds.Service,
	orderSvc orders.Service,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if paymentSvc == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if refundSvc == nil {
		return nil, fmt.Errorf("refunds service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		payments: paymentSvc,
		refunds:  refundSvc,
		orders:   orderSvc,
		metrics:  settlementMetrics,
		logg:     logg,
	}, nil
}

// HandleEvent processes one verified delivery. A nil return acknowledges the
// delivery; validation errors mean the payload is malformed and must not be
// redelivered; everything else is transient and the provider should retry.
func (s *Service) HandleEvent(ctx context.Context, event *paypal.WebhookEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_event_id": event.ID,
		"event_type":       event.EventType,
	})

	var outcome string
	var err error
	switch event.EventType {
	case paypal.EventCaptureCompleted:
		outcome, err = s.handleCaptureCompleted(ctx, event)
	case paypal.EventCaptureDenied:
		outcome, err = s.handleCaptureDenied(ctx, event)
	case paypal.EventCaptureRefunded:
		outcome, err = s.handleCaptureRefunded(ctx, event)
	default:
		// Unsubscribed or future event types are acknowledged and dropped.
		outcome = OutcomeIgnored
	}

	if err != nil {
		s.incEvent(event.EventType, "error")
		return err
	}
	s.incEvent(event.EventType, outcome)
	return nil
}

func (s *Service) handleCaptureCompleted(ctx context.Context, event *paypal.WebhookEvent) (string, error) {
	resource, err := event.DecodeCaptureResource()
	if err != nil {
		return "", err
	}
	amountCents, err := resource.AmountCents()
	if err != nil {
		return "", err
	}

	order, found, err := s.lookupOrder(ctx, resource.CustomID, resource.ProviderOrderID())
	if err != nil {
		return "", err
	}
	if !found {
		// No local order matches the marker. Acknowledge so the provider
		// does not redeliver forever.
		s.logg.Warn(ctx, "capture webhook references unknown order")
		return OutcomeUnknownOrder, nil
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if order.PaymentStatus == enums.PaymentStatusPaid {
		return OutcomeNoop, nil
	}

	capture := &paypal.Capture{
		ID:          resource.ID,
		Status:      paypal.CaptureStatusCompleted,
		AmountCents: amountCents,
	}
	if err := s.payments.ApplyCapture(ctx, order, capture, payments.SourceWebhook); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (s *Service) handleCaptureDenied(ctx context.Context, event *paypal.WebhookEvent) (string, error) {
	resource, err := event.DecodeCaptureResource()
	if err != nil {
		return "", err
	}

	order, found, err := s.lookupOrder(ctx, resource.CustomID, resource.ProviderOrderID())
	if err != nil {
		return "", err
	}
	if !found {
		s.logg.Warn(ctx, "denial webhook references unknown order")
		return OutcomeUnknownOrder, nil
	}

	// A capture response may have reached the client before this delivery;
	// a settled order ignores the denial.
	if order.PaymentStatus != enums.PaymentStatusPending {
		return OutcomeNoop, nil
	}

	if err := s.payments.FailCapture(ctx, order, "capture denied by provider", payments.SourceWebhook); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (s *Service) handleCaptureRefunded(ctx context.Context, event *paypal.WebhookEvent) (string, error) {
	resource, err := event.DecodeCaptureResource()
	if err != nil {
		return "", err
	}
	amountCents, err := resource.AmountCents()
	if err != nil {
		return "", err
	}

	// Refunds issued through this service already carry a local row keyed
	// by the provider refund id.
	recorded, err := s.orders.HasPaymentTransaction(ctx, resource.ID)
	if err != nil {
		return "", err
	}
	if recorded {
		return OutcomeNoop, nil
	}

	order, found, err := s.lookupOrder(ctx, resource.CustomID, resource.ProviderOrderID())
	if err != nil {
		return "", err
	}
	if !found {
		s.logg.Warn(ctx, "refund webhook references unknown order")
		return OutcomeUnknownOrder, nil
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if err := s.refunds.ReconcileExternal(ctx, order, resource.ID, amountCents); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// lookupOrder resolves the delivery to a local order, preferring the internal
// id carried in custom_id over the provider-side order reference.
func (s *Service) lookupOrder(ctx context.Context, customID, providerOrderID string) (*models.Order, bool, error) {
	if customID != "" {
		if id, parseErr := uuid.Parse(customID); parseErr == nil {
			order, err := s.orders.Get(ctx, id)
			if err == nil {
				return order, true, nil
			}
			if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
				return nil, false, err
			}
		}
	}
	if providerOrderID != "" {
		order, err := s.orders.GetByProviderOrderID(ctx, providerOrderID)
		if err == nil {
			return order, true, nil
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
			return nil, false, err
		}
	}
	return nil, false, nil
}

func (s *Service) incEvent(eventType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncWebhookEvent(eventType, outcome)
}
