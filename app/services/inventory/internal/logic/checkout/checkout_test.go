package checkout

import (
	"context"
	"testing"

	"Holdfast/app/common/consts/errno"
	"Holdfast/app/services/inventory/internal/config"
	"Holdfast/app/services/inventory/internal/svc"
	"Holdfast/app/services/inventory/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xerrors "github.com/zeromicro/x/errors"
)

func newMemoryContext(t *testing.T, stock map[string]int64) *svc.ServiceContext {
	t.Helper()
	var c config.Config
	c.Store.Mode = config.StoreMemory
	c.Reservation = config.ReservationConf{DefaultTTLSeconds: 900, MaxTTLSeconds: 86400}
	c.Ledger = config.LedgerConf{MaxAttempts: 5, BackoffMillis: 1}
	c.Reaper = config.ReaperConf{IntervalSeconds: 30, BatchSize: 100}
	c.CompensationTimeoutSeconds = 5
	sc := svc.NewServiceContext(c)
	for sku, n := range stock {
		_, err := sc.Ledger.Register(context.Background(), sku, n)
		require.NoError(t, err)
	}
	return sc
}

func TestCheckoutFlow(t *testing.T) {
	sc := newMemoryContext(t, map[string]int64{"X": 10})
	ctx := context.Background()

	c, err := NewReserveCheckoutLogic(ctx, sc).ReserveCheckout(&types.ReserveCheckoutRequest{
		CheckoutId: "C1",
		UserId:     "u1",
		Items:      []types.Item{{SubSku: "X", Quantity: 7}},
	})
	require.NoError(t, err)
	assert.Equal(t, "RESERVED", c.Status)
	assert.True(t, c.LastResult.AllSuccess)
	assert.Greater(t, c.ExpiresAt, c.CreatedAt)

	c, err = NewReserveCheckoutLogic(ctx, sc).ReserveCheckout(&types.ReserveCheckoutRequest{
		CheckoutId: "C2",
		UserId:     "u2",
		Items:      []types.Item{{SubSku: "X", Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", c.Status)
	assert.Equal(t, "InsufficientStock", c.LastError)

	c, err = NewFinalizeCheckoutLogic(ctx, sc).FinalizeCheckout(&types.CheckoutRequest{CheckoutId: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "FINALIZED", c.Status)

	got, err := NewGetCheckoutLogic(ctx, sc).GetCheckout(&types.GetCheckoutRequest{CheckoutId: "C1"})
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = NewInvalidateCheckoutLogic(ctx, sc).InvalidateCheckout(&types.CheckoutRequest{CheckoutId: "C1"})
	var cm *xerrors.CodeMsg
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, errno.InvalidStateTransition, cm.Code)

	c, err = NewInvalidateCheckoutLogic(ctx, sc).InvalidateCheckout(&types.CheckoutRequest{CheckoutId: "C2"})
	require.NoError(t, err)
	assert.Equal(t, "INVALIDATED", c.Status)
	assert.Equal(t, int64(3), sc.Ledger.Stock(ctx, "X"))
}

func TestCheckoutErrors(t *testing.T) {
	sc := newMemoryContext(t, nil)
	ctx := context.Background()
	var cm *xerrors.CodeMsg

	_, err := NewGetCheckoutLogic(ctx, sc).GetCheckout(&types.GetCheckoutRequest{CheckoutId: "missing"})
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, errno.CheckoutNotFound, cm.Code)

	_, err = NewFinalizeCheckoutLogic(ctx, sc).FinalizeCheckout(&types.CheckoutRequest{})
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, errno.InvalidParam, cm.Code)

	_, err = NewReserveCheckoutLogic(ctx, sc).ReserveCheckout(&types.ReserveCheckoutRequest{CheckoutId: "C1"})
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, errno.InvalidParam, cm.Code)
}
