package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcastellanos/storefront-backend/pkg/db/models"
	pkgerrors "github.com/dmcastellanos/storefront-backend/pkg/errors"
)

type stubOrderLister struct {
	rows   []models.Order
	cutoff time.Time
}

func (s *stubOrderLister) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	s.cutoff = cutoff
	return s.rows, nil
}

type stubCanceller struct {
	cancelled []uuid.UUID
	errs      map[uuid.UUID]error
}

func (s *stubCanceller) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	if err, ok := s.errs[orderID]; ok {
		return nil, err
	}
	s.cancelled = append(s.cancelled, orderID)
	return &models.Order{ID: orderID}, nil
}

func TestOrderTTLJob_CancelsStaleOrders(t *testing.T) {
	stale := []models.Order{{ID: uuid.New()}, {ID: uuid.New()}}
	lister := &stubOrderLister{rows: stale}
	canceller := &stubCanceller{}

	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:    testLogger(),
		Orders:    lister,
		Canceller: canceller,
		TTL:       240 * time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, canceller.cancelled, 2)
	assert.WithinDuration(t, time.Now().Add(-240*time.Hour), lister.cutoff, time.Minute)
}

func TestOrderTTLJob_SkipsOrdersSettledMidCycle(t *testing.T) {
	settled := models.Order{ID: uuid.New()}
	stale := models.Order{ID: uuid.New()}
	lister := &stubOrderLister{rows: []models.Order{settled, stale}}
	canceller := &stubCanceller{
		errs: map[uuid.UUID]error{
			settled.ID: pkgerrors.New(pkgerrors.CodeStateConflict, "only uncaptured orders can be cancelled"),
		},
	}

	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:    testLogger(),
		Orders:    lister,
		Canceller: canceller,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, canceller.cancelled, 1)
	assert.Equal(t, stale.ID, canceller.cancelled[0])
}

func TestOrderTTLJob_AggregatesUnexpectedErrors(t *testing.T) {
	broken := models.Order{ID: uuid.New()}
	fine := models.Order{ID: uuid.New()}
	lister := &stubOrderLister{rows: []models.Order{broken, fine}}
	canceller := &stubCanceller{
		errs: map[uuid.UUID]error{
			broken.ID: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
		},
	}

	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:    testLogger(),
		Orders:    lister,
		Canceller: canceller,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	// The healthy order was still cancelled before the error surfaced.
	assert.Len(t, canceller.cancelled, 1)
}

func TestOrderTTLJob_NoStaleOrdersIsQuiet(t *testing.T) {
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:    testLogger(),
		Orders:    &stubOrderLister{},
		Canceller: &stubCanceller{},
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
}
