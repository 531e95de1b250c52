package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
)

const (
	orderTTLBatchSize   = 100
	orderExpiredReason  = "pending order expired"
	orderTTLJobName     = "order-ttl"
	defaultOrderPending = 240 * time.Hour
)

type pendingOrderLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
}

// OrderTTLJobParams configure the pending-order expiry job.
type OrderTTLJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderLister
	Canceller orderCanceller
	TTL       time.Duration
	BatchSize int
}

// NewOrderTTLJob builds the job that closes abandoned pending orders. Since
// stock is only moved at capture, an expired order releases nothing; the
// cancellation just stops further session and capture attempts.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lister required")
	}
	if params.Canceller == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderPending
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = orderTTLBatchSize
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		cancel: params.Canceller,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders pendingOrderLister
	cancel orderCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return orderTTLJobName }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	stale, err := j.orders.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs error
	cancelled := 0
	for i := range stale {
		order := &stale[i]
		if _, err := j.cancel.Cancel(ctx, order.ID, orderExpiredReason); err != nil {
			// A capture that landed between listing and cancelling flips
			// the order out of pending; that order is simply no longer stale.
			if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"stale":     len(stale),
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "expired pending orders cancelled")
	return errs
}
