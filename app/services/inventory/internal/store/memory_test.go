package store

import (
	"context"
	"testing"
	"time"

	"Holdfast/app/services/inventory/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStockStoreCompareAndSwap(t *testing.T) {
	t.Parallel()
	s := NewMemoryStockStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &domain.InventoryRecord{SubSku: "A", AvailableStock: 5}))
	assert.ErrorIs(t, s.Create(ctx, &domain.InventoryRecord{SubSku: "A"}), domain.ErrProductExists)

	ok, err := s.CompareAndSwap(ctx, "A", 0, 3, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version
	ok, err = s.CompareAndSwap(ctx, "A", 0, 1, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "A", 1, -1, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := s.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.AvailableStock)
	assert.Equal(t, int64(1), rec.Version)

	_, err = s.CompareAndSwap(ctx, "B", 0, 1, t0)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	many, err := s.GetMany(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
	assert.Contains(t, many, "A")
}

func active(id int64, checkoutId, sku string, expiresAt time.Time) *domain.Reservation {
	return &domain.Reservation{
		Id:         id,
		CheckoutId: checkoutId,
		SubSku:     sku,
		Quantity:   1,
		State:      domain.ReservationActive,
		CreatedAt:  t0,
		ExpiresAt:  expiresAt,
		UpdatedAt:  t0,
	}
}

func TestMemoryReservationStoreLiveKey(t *testing.T) {
	t.Parallel()
	s := NewMemoryReservationStore()
	ctx := context.Background()
	key := domain.ReservationKey{CheckoutId: "c1", SubSku: "A"}

	require.NoError(t, s.Insert(ctx, active(1, "c1", "A", t0.Add(time.Minute))))
	assert.ErrorIs(t, s.Insert(ctx, active(2, "c1", "A", t0.Add(time.Minute))), domain.ErrDuplicateReservation)

	// a committed record keeps the slot
	ok, err := s.UpdateState(ctx, 1, domain.ReservationActive, domain.ReservationCommitted, t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, s.Insert(ctx, active(2, "c1", "A", t0.Add(time.Minute))), domain.ErrDuplicateReservation)

	live, err := s.FindLive(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), live.Id)
}

func TestMemoryReservationStoreReleaseFreesKey(t *testing.T) {
	t.Parallel()
	s := NewMemoryReservationStore()
	ctx := context.Background()
	key := domain.ReservationKey{CheckoutId: "c1", SubSku: "A"}

	require.NoError(t, s.Insert(ctx, active(1, "c1", "A", t0.Add(time.Minute))))
	ok, err := s.UpdateState(ctx, 1, domain.ReservationActive, domain.ReservationReleased, t0)
	require.NoError(t, err)
	require.True(t, ok)

	// second transition out of ACTIVE loses
	ok, err = s.UpdateState(ctx, 1, domain.ReservationActive, domain.ReservationExpired, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.FindLive(ctx, key)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	require.NoError(t, s.Insert(ctx, active(2, "c1", "A", t0.Add(time.Minute))))

	old, err := s.FindById(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, old.State)
}

func TestMemoryReservationStoreFindExpired(t *testing.T) {
	t.Parallel()
	s := NewMemoryReservationStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, active(1, "c1", "A", t0.Add(3*time.Second))))
	require.NoError(t, s.Insert(ctx, active(2, "c2", "A", t0.Add(time.Second))))
	require.NoError(t, s.Insert(ctx, active(3, "c3", "A", t0.Add(time.Hour))))
	require.NoError(t, s.Insert(ctx, active(4, "c4", "A", t0.Add(2*time.Second))))
	ok, err := s.DeleteActive(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)

	now := t0.Add(time.Minute)
	got, err := s.FindExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Id)
	assert.Equal(t, int64(1), got[1].Id)

	// still ACTIVE records stay indexed
	got, err = s.FindExpired(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Id)

	_, err = s.UpdateState(ctx, 2, domain.ReservationActive, domain.ReservationExpired, now)
	require.NoError(t, err)
	got, err = s.FindExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Id)

	_, err = s.FindById(ctx, 4)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestMemoryCheckoutStore(t *testing.T) {
	t.Parallel()
	s := NewMemoryCheckoutStore()
	ctx := context.Background()
	c := &domain.Checkout{
		CheckoutId: "c1",
		Items:      []domain.Item{{SubSku: "A", Quantity: 1}},
		Status:     domain.CheckoutPending,
		ExpiresAt:  t0.Add(time.Minute),
	}

	require.NoError(t, s.Insert(ctx, c))
	assert.ErrorIs(t, s.Insert(ctx, c), domain.ErrCheckoutExists)

	next := c.Clone()
	next.Status = domain.CheckoutReserved
	ok, err := s.Update(ctx, next, domain.CheckoutPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Update(ctx, next, domain.CheckoutPending)
	require.NoError(t, err)
	assert.False(t, ok)

	// callers cannot mutate the stored copy
	got, err := s.Find(ctx, "c1")
	require.NoError(t, err)
	got.Items[0].Quantity = 99
	again, err := s.Find(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Items[0].Quantity)

	expired, err := s.FindExpired(ctx, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	_, err = s.Find(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}
