package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/zeromicro/go-zero/core/logx/logtest"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, stock map[string]int64) (*Ledger, *store.MemoryStockStore) {
	t.Helper()
	st := store.NewMemoryStockStore()
	l := New(st, WithBackoff(time.Microsecond))
	for sku, qty := range stock {
		_, err := l.Register(context.Background(), sku, qty)
		require.NoError(t, err)
	}
	return l, st
}

func TestReserveAndRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newLedger(t, map[string]int64{"X": 10})

	stock, err := l.Reserve(ctx, "X", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stock)

	stock, err = l.Reserve(ctx, "X", 5)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.EqualValues(t, 3, stock, "observed stock is reported on failure")

	stock, err = l.Release(ctx, "X", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 10, stock)

	rec, err := l.Get(ctx, "X")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec.Version)
}

func TestLedgerFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newLedger(t, map[string]int64{"A": 3})

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"reserve unknown sku", func() error { _, err := l.Reserve(ctx, "nope", 1); return err }, domain.ErrProductNotFound},
		{"release unknown sku", func() error { _, err := l.Release(ctx, "nope", 1); return err }, domain.ErrProductNotFound},
		{"reserve zero", func() error { _, err := l.Reserve(ctx, "A", 0); return err }, domain.ErrInvalidQuantity},
		{"adjust below zero", func() error { _, err := l.Adjust(ctx, "A", -4); return err }, domain.ErrInvalidAdjustment},
		{"adjust zero", func() error { _, err := l.Adjust(ctx, "A", 0); return err }, domain.ErrInvalidAdjustment},
		{"register twice", func() error { _, err := l.Register(ctx, "A", 1); return err }, domain.ErrProductExists},
		{"commit unknown sku", func() error { _, err := l.Commit(ctx, "nope", 1); return err }, domain.ErrProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), tt.want)
		})
	}

	stock := l.Stock(ctx, "A")
	assert.EqualValues(t, 3, stock, "failed calls leave stock alone")
}

func TestAdjustAndCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newLedger(t, map[string]int64{"A": 3})

	stock, err := l.Adjust(ctx, "A", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 8, stock)

	stock, err = l.Adjust(ctx, "A", -8)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stock)

	stock, err = l.Commit(ctx, "A", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stock, "commit has no stock effect")
}

// conflictingStore loses every compare-and-swap.
type conflictingStore struct {
	*store.MemoryStockStore
	attempts atomic.Int32
}

func (s *conflictingStore) CompareAndSwap(context.Context, string, int64, int64, time.Time) (bool, error) {
	s.attempts.Add(1)
	return false, nil
}

func TestConcurrencyConflictAfterBoundedRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &conflictingStore{MemoryStockStore: store.NewMemoryStockStore()}
	require.NoError(t, st.Create(ctx, &domain.InventoryRecord{SubSku: "A", AvailableStock: 5}))

	l := New(st, WithMaxAttempts(4), WithBackoff(time.Microsecond))
	_, err := l.Reserve(ctx, "A", 1)
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.EqualValues(t, 4, st.attempts.Load())
}

func TestReserveHonoursDeadline(t *testing.T) {
	t.Parallel()
	st := &conflictingStore{MemoryStockStore: store.NewMemoryStockStore()}
	require.NoError(t, st.Create(context.Background(), &domain.InventoryRecord{SubSku: "A", AvailableStock: 5}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New(st, WithMaxAttempts(50), WithBackoff(time.Second))
	_, err := l.Reserve(ctx, "A", 1)
	require.ErrorIs(t, err, domain.ErrTimeout)
}

func TestNoOversellUnderContention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const initial = 50
	l, _ := newLedger(t, map[string]int64{"HOT": initial})
	// plenty of attempts so contention only ends in success or insufficient stock
	l.maxAttempts = 1000

	var (
		wg       sync.WaitGroup
		reserved atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, "HOT", 3); err == nil {
				reserved.Add(3)
			}
		}()
	}
	wg.Wait()

	stock := l.Stock(ctx, "HOT")
	assert.LessOrEqual(t, reserved.Load(), int64(initial))
	assert.EqualValues(t, initial, reserved.Load()+stock)
	assert.GreaterOrEqual(t, stock, int64(0))
}

// flakyStore fails the first `failures` writes, loses the next `conflicts`
// version races and fails every read while down.
type flakyStore struct {
	*store.MemoryStockStore
	failures  atomic.Int32
	conflicts atomic.Int32
	down      atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, subSku string) (*domain.InventoryRecord, error) {
	if s.down.Load() {
		return nil, errors.New("connection refused")
	}
	return s.MemoryStockStore.Get(ctx, subSku)
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error) {
	if s.failures.Add(-1) >= 0 {
		return false, errors.New("connection reset")
	}
	if s.conflicts.Add(-1) >= 0 {
		return false, nil
	}
	return s.MemoryStockStore.CompareAndSwap(ctx, subSku, version, stock, now)
}

func TestRestoreRetriesUntilItLands(t *testing.T) {
	t.Parallel()
	st := &flakyStore{MemoryStockStore: store.NewMemoryStockStore()}
	require.NoError(t, st.Create(context.Background(), &domain.InventoryRecord{SubSku: "A", AvailableStock: 2}))
	l := New(st, WithMaxAttempts(2), WithBackoff(time.Microsecond))

	st.failures.Store(1)
	_, err := l.Release(context.Background(), "A", 3)
	require.Error(t, err, "a bounded release gives up on store errors")

	st.failures.Store(6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stock, err := l.Restore(ctx, "A", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stock)
	assert.EqualValues(t, 5, l.Stock(context.Background(), "A"))

	_, err = l.Restore(context.Background(), "nope", 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = l.Restore(context.Background(), "A", 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestRestoreOutlastsVersionConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &flakyStore{MemoryStockStore: store.NewMemoryStockStore()}
	require.NoError(t, st.Create(ctx, &domain.InventoryRecord{SubSku: "A", AvailableStock: 5}))
	l := New(st, WithMaxAttempts(2), WithBackoff(time.Microsecond))

	st.conflicts.Store(1)
	_, err := l.Release(ctx, "A", 1)
	require.NoError(t, err)

	st.conflicts.Store(20)
	_, err = l.Release(ctx, "A", 1)
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	stock, err := l.Restore(ctx, "A", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 7, stock)
	assert.Less(t, st.conflicts.Load(), int32(0), "every lost race was retried")
}

func TestStockLogsReadFailures(t *testing.T) {
	c := logtest.NewCollector(t)
	st := &flakyStore{MemoryStockStore: store.NewMemoryStockStore()}
	require.NoError(t, st.Create(context.Background(), &domain.InventoryRecord{SubSku: "A", AvailableStock: 4}))
	l := New(st)

	assert.EqualValues(t, 4, l.Stock(context.Background(), "A"))
	assert.Zero(t, l.Stock(context.Background(), "nope"))
	assert.NotContains(t, c.String(), "stock read failed", "unknown skus are not store failures")

	st.down.Store(true)
	assert.Zero(t, l.Stock(context.Background(), "A"))
	assert.Contains(t, c.String(), "stock read failed")
	assert.Contains(t, c.String(), "connection refused")
}
