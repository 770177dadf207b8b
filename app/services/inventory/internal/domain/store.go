package domain

import (
	"context"
	"time"
)

type (
	// StockStore persists inventory records. CompareAndSwap must only write
	// when the stored version equals version, and must bump it by one.
	StockStore interface {
		Get(ctx context.Context, subSku string) (*InventoryRecord, error)
		GetMany(ctx context.Context, subSkus []string) (map[string]*InventoryRecord, error)
		Create(ctx context.Context, rec *InventoryRecord) error
		CompareAndSwap(ctx context.Context, subSku string, version, stock int64, now time.Time) (bool, error)
	}

	// ReservationStore persists reservations. At most one live (ACTIVE or
	// COMMITTED) record exists per key; Insert fails with
	// ErrDuplicateReservation otherwise.
	ReservationStore interface {
		Insert(ctx context.Context, r *Reservation) error
		FindById(ctx context.Context, id int64) (*Reservation, error)
		FindLive(ctx context.Context, key ReservationKey) (*Reservation, error)
		UpdateState(ctx context.Context, id int64, from, to ReservationState, now time.Time) (bool, error)
		DeleteActive(ctx context.Context, id int64) (bool, error)
		FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*Reservation, error)
		FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	}

	// CheckoutStore persists checkouts. Update is a compare-and-set on Status.
	CheckoutStore interface {
		Insert(ctx context.Context, c *Checkout) error
		Find(ctx context.Context, checkoutId string) (*Checkout, error)
		Update(ctx context.Context, c *Checkout, from CheckoutStatus) (bool, error)
		FindExpired(ctx context.Context, now time.Time, limit int) ([]*Checkout, error)
	}
)
