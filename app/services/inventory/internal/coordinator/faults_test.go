package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/reaper"
	"Holdfast/app/services/inventory/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// flakyReservations fails DeleteActive and, when asked, UpdateState.
type flakyReservations struct {
	*store.MemoryReservationStore
	mu          sync.Mutex
	deleteCalls int
	failUpdates bool
	failDeletes bool
}

func (s *flakyReservations) DeleteActive(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	s.deleteCalls++
	fail := s.failDeletes
	s.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return s.MemoryReservationStore.DeleteActive(ctx, id)
}

func (s *flakyReservations) UpdateState(ctx context.Context, id int64, from, to domain.ReservationState, now time.Time) (bool, error) {
	s.mu.Lock()
	fail := s.failUpdates
	s.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return s.MemoryReservationStore.UpdateState(ctx, id, from, to, now)
}

// contendedStock loses the version race on the next n writes that raise stock.
type contendedStock struct {
	*store.MemoryStockStore
	mu   sync.Mutex
	lose int
}

func (s *contendedStock) loseReleases(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lose = n
}

func (s *contendedStock) CompareAndSwap(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error) {
	rec, err := s.MemoryStockStore.Get(ctx, subSku)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if stock > rec.AvailableStock && s.lose > 0 {
		s.lose--
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return s.MemoryStockStore.CompareAndSwap(ctx, subSku, version, stock, now)
}

func TestLockFailedReserveLeavesNoActiveRecord(t *testing.T) {
	reservations := &flakyReservations{MemoryReservationStore: store.NewMemoryReservationStore(), failDeletes: true}
	f := newFixtureWith(t, map[string]int64{"X": 10}, store.NewMemoryStockStore(), reservations)
	ctx := context.Background()

	resp, err := f.coord.Lock(ctx, "c1", items("X", 1000), time.Minute, BestEffort)
	require.NoError(t, err)
	assert.Equal(t, "InsufficientStock", resp.Results[0].Message)
	assert.Equal(t, discardAttempts, reservations.deleteCalls)

	_, err = f.registry.Find(ctx, "c1", "X")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	res, err := f.registry.FindById(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, res.State)

	f.clock.Advance(2 * time.Minute)
	stats := reaper.New(f.ledger, f.registry).RunOnce(ctx)
	assert.Zero(t, stats.Expired)
	assert.Equal(t, int64(10), f.stock(t, "X"))
}

func TestLockAbortsWhenUnreservedRecordCannotBeCleared(t *testing.T) {
	reservations := &flakyReservations{MemoryReservationStore: store.NewMemoryReservationStore(), failDeletes: true, failUpdates: true}
	f := newFixtureWith(t, map[string]int64{"X": 10}, store.NewMemoryStockStore(), reservations)

	resp, err := f.coord.Lock(context.Background(), "c1", items("X", 1000), time.Minute, BestEffort)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.False(t, domain.IsBusiness(err))
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "reservation 1 ")
	assert.Equal(t, int64(10), f.stock(t, "X"))
}

func TestReleaseOutlastsVersionConflicts(t *testing.T) {
	stocks := &contendedStock{MemoryStockStore: store.NewMemoryStockStore()}
	f := newFixtureWith(t, map[string]int64{"X": 10}, stocks, store.NewMemoryReservationStore())
	ctx := context.Background()

	_, err := f.coord.Lock(ctx, "c1", items("X", 7), time.Minute, AllOrNothing)
	require.NoError(t, err)
	require.Equal(t, int64(3), f.stock(t, "X"))

	// more lost races than a bounded ledger write tolerates
	stocks.loseReleases(12)
	resp, err := f.coord.Release(ctx, "c1", items("X", 7))
	require.NoError(t, err)
	assert.True(t, resp.AllSuccess)
	assert.Equal(t, int64(10), resp.Results[0].CurrentStock)

	resp, err = f.coord.Release(ctx, "c1", items("X", 7))
	require.NoError(t, err)
	assert.Equal(t, "ReservationNotFound", resp.Results[0].Message)
	assert.Equal(t, int64(10), f.stock(t, "X"))
}

func TestRollbackOutlastsVersionConflicts(t *testing.T) {
	stocks := &contendedStock{MemoryStockStore: store.NewMemoryStockStore()}
	f := newFixtureWith(t, map[string]int64{"A": 10, "B": 5}, stocks, store.NewMemoryReservationStore())
	stocks.loseReleases(12)

	resp, err := f.coord.Lock(context.Background(), "c1", items("A", 3, "B", 1000), time.Minute, AllOrNothing)
	require.NoError(t, err)
	assert.Equal(t, messageRolledBack, resp.Results[0].Message)
	assert.Equal(t, int64(10), resp.Results[0].CurrentStock)
	assert.Equal(t, int64(10), f.stock(t, "A"))
	assert.Equal(t, []domain.EventType{domain.EventLocked, domain.EventRolledBack}, f.events.types())
}

func TestReleaseIgnoresCallerDeadlineAfterStateChange(t *testing.T) {
	stocks := &contendedStock{MemoryStockStore: store.NewMemoryStockStore()}
	f := newFixtureWith(t, map[string]int64{"X": 10}, stocks, store.NewMemoryReservationStore())

	_, err := f.coord.Lock(context.Background(), "c1", items("X", 4), time.Minute, AllOrNothing)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	coord := New(&cancelOnRestore{StockLedger: f.ledger, cancel: cancel}, f.registry)
	stocks.loseReleases(3)
	resp, err := coord.Release(ctx, "c1", items("X", 4))
	require.NoError(t, err)
	assert.True(t, resp.AllSuccess)
	assert.Equal(t, int64(10), f.stock(t, "X"))
}

// cancelOnRestore cancels the call context just before stock is given back.
type cancelOnRestore struct {
	StockLedger
	cancel context.CancelFunc
}

func (l *cancelOnRestore) Restore(ctx context.Context, subSku string, quantity int64) (int64, error) {
	l.cancel()
	return l.StockLedger.Restore(ctx, subSku, quantity)
}
