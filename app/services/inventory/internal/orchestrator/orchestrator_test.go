package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"Holdfast/app/common/clock"
	"Holdfast/app/common/locker"
	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/ledger"
	"Holdfast/app/services/inventory/internal/reaper"
	"Holdfast/app/services/inventory/internal/registry"
	"Holdfast/app/services/inventory/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	clock     *clock.Manual
	ledger    *ledger.Ledger
	registry  *registry.Registry
	checkouts *store.MemoryCheckoutStore
	coord     *coordinator.Coordinator
	orch      *Orchestrator
}

func newEngine(t *testing.T, stock map[string]int64) *engine {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var (
		mu  sync.Mutex
		seq int64
	)
	l := ledger.New(store.NewMemoryStockStore(), ledger.WithClock(clk))
	reg := registry.New(store.NewMemoryReservationStore(),
		registry.WithClock(clk),
		registry.WithIdGenerator(func() int64 {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return seq
		}),
	)
	for sku, n := range stock {
		_, err := l.Register(context.Background(), sku, n)
		require.NoError(t, err)
	}
	checkouts := store.NewMemoryCheckoutStore()
	coord := coordinator.New(l, reg)
	return &engine{
		clock:     clk,
		ledger:    l,
		registry:  reg,
		checkouts: checkouts,
		coord:     coord,
		orch:      New(checkouts, coord, reg, WithLocker(locker.NewMemoryLocker())),
	}
}

func (e *engine) stock(t *testing.T, sku string) int64 {
	t.Helper()
	rec, err := e.ledger.Get(context.Background(), sku)
	require.NoError(t, err)
	return rec.AvailableStock
}

func one(sku string, qty int64) []domain.Item {
	return []domain.Item{{SubSku: sku, Quantity: qty}}
}

func TestWorkedExample(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10})
	ctx := context.Background()

	c1, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 7), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReserved, c1.Status)
	assert.Equal(t, int64(3), e.stock(t, "X"))

	c2, err := e.orch.ValidateAndReserve(ctx, "C2", "u2", one("X", 5), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutPending, c2.Status)
	assert.False(t, c2.LastResult.AllSuccess)
	assert.Equal(t, "InsufficientStock", c2.LastError)
	assert.Equal(t, int64(3), c2.LastResult.Results[0].CurrentStock)
	assert.Equal(t, int64(3), e.stock(t, "X"))

	c1, err = e.orch.FinalizeCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutFinalized, c1.Status)
	assert.Equal(t, int64(3), e.stock(t, "X"))

	c2, err = e.orch.ValidateAndReserve(ctx, "C2", "u2", one("X", 3), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReserved, c2.Status)
	assert.Equal(t, int64(0), e.stock(t, "X"))
}

func TestFinalizeIsTerminal(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10})
	ctx := context.Background()

	_, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 4), time.Minute)
	require.NoError(t, err)
	first, err := e.orch.FinalizeCheckout(ctx, "C1")
	require.NoError(t, err)

	again, err := e.orch.FinalizeCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// no second reserve and no release
	snap, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 4), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutFinalized, snap.Status)

	_, err = e.orch.InvalidateCheckout(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, int64(6), e.stock(t, "X"))
}

func TestReserveIsIdempotent(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10})
	ctx := context.Background()

	first, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 4), time.Minute)
	require.NoError(t, err)
	second, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 4), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(6), e.stock(t, "X"))
}

func TestInvalidate(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10, "Y": 5})
	ctx := context.Background()

	items := []domain.Item{{SubSku: "X", Quantity: 4}, {SubSku: "Y", Quantity: 5}}
	_, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", items, time.Minute)
	require.NoError(t, err)

	c, err := e.orch.InvalidateCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutInvalidated, c.Status)
	assert.True(t, c.LastResult.AllSuccess)
	assert.Equal(t, 2, c.LastResult.SuccessCount)
	assert.Equal(t, int64(10), e.stock(t, "X"))
	assert.Equal(t, int64(5), e.stock(t, "Y"))

	again, err := e.orch.InvalidateCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, c, again)
	assert.Equal(t, int64(10), e.stock(t, "X"))

	_, err = e.orch.FinalizeCheckout(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestInvalidatePendingCheckout(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 1})
	ctx := context.Background()

	c, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 2), time.Minute)
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutPending, c.Status)

	c, err = e.orch.InvalidateCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutInvalidated, c.Status)
	assert.Equal(t, int64(1), e.stock(t, "X"))
}

func TestFinalizeAfterDeadline(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10})
	ctx := context.Background()

	_, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 4), time.Second)
	require.NoError(t, err)
	e.clock.Advance(2 * time.Second)

	_, err = e.orch.FinalizeCheckout(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	c, err := e.orch.GetCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutExpired, c.Status)

	// one reaper pass gives the stock back
	stats := reaper.New(e.ledger, e.registry).RunOnce(ctx)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, int64(10), e.stock(t, "X"))
}

func TestExpireOverdue(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 10})
	ctx := context.Background()

	_, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 1), time.Second)
	require.NoError(t, err)
	_, err = e.orch.ValidateAndReserve(ctx, "C2", "u2", one("X", 1), time.Hour)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Second)
	r := reaper.New(e.ledger, e.registry, reaper.WithCheckouts(e.orch))
	stats := r.RunOnce(ctx)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.CheckoutsExpired)

	c1, err := e.orch.GetCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutExpired, c1.Status)
	c2, err := e.orch.GetCheckout(ctx, "C2")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReserved, c2.Status)
	assert.Equal(t, int64(9), e.stock(t, "X"))
}

func TestGetCheckoutNotFound(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.orch.GetCheckout(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)

	_, err = e.orch.FinalizeCheckout(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}

func TestConcurrentReserveForOneCheckout(t *testing.T) {
	e := newEngine(t, map[string]int64{"X": 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", one("X", 7), time.Minute)
			if assert.NoError(t, err) {
				assert.Equal(t, domain.CheckoutReserved, c.Status)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(93), e.stock(t, "X"))
}

func TestFinalizeCommitsNothingWhenAHoldIsGone(t *testing.T) {
	e := newEngine(t, map[string]int64{"A": 10, "B": 10})
	ctx := context.Background()

	items := []domain.Item{{SubSku: "A", Quantity: 2}, {SubSku: "B", Quantity: 3}}
	c, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", items, time.Minute)
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutReserved, c.Status)

	// A's hold is released behind the checkout's back
	resp, err := e.coord.Release(ctx, "C1", one("A", 2))
	require.NoError(t, err)
	require.True(t, resp.AllSuccess)

	_, err = e.orch.FinalizeCheckout(ctx, "C1")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	res, err := e.registry.Find(ctx, "C1", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, res.State, "B must not be committed alone")

	c, err = e.orch.InvalidateCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutInvalidated, c.Status)
	assert.Equal(t, int64(10), e.stock(t, "A"))
	assert.Equal(t, int64(10), e.stock(t, "B"))
}

func TestInvalidateRefusesCommittedItems(t *testing.T) {
	e := newEngine(t, map[string]int64{"A": 10, "B": 10})
	ctx := context.Background()

	items := []domain.Item{{SubSku: "A", Quantity: 2}, {SubSku: "B", Quantity: 3}}
	_, err := e.orch.ValidateAndReserve(ctx, "C1", "u1", items, time.Minute)
	require.NoError(t, err)

	// B committed directly through the stock API
	resp, err := e.coord.Acquire(ctx, "C1", one("B", 3))
	require.NoError(t, err)
	require.True(t, resp.AllSuccess)

	_, err = e.orch.InvalidateCheckout(ctx, "C1")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	c, err := e.orch.GetCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutReserved, c.Status)
	assert.Equal(t, int64(8), e.stock(t, "A"), "nothing is released when the call is refused")

	// finalize still completes the checkout
	c, err = e.orch.FinalizeCheckout(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutFinalized, c.Status)
	assert.Equal(t, int64(7), e.stock(t, "B"))
}
