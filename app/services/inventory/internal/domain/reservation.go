package domain

import "time"

// DefaultReservationTTL applies when a lock does not carry its own TTL.
const DefaultReservationTTL = 900 * time.Second

type ReservationState string

const (
	ReservationActive    ReservationState = "ACTIVE"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
	ReservationExpired   ReservationState = "EXPIRED"
)

// IsLive reports whether the state still occupies the (checkoutId, subSku) key.
func (s ReservationState) IsLive() bool {
	return s == ReservationActive || s == ReservationCommitted
}

func (s ReservationState) IsTerminal() bool {
	return s == ReservationCommitted || s == ReservationReleased || s == ReservationExpired
}

// CanTransition reports whether s -> to is a legal move.
// Only ACTIVE may move, and only into a terminal state.
func (s ReservationState) CanTransition(to ReservationState) bool {
	return s == ReservationActive && to.IsTerminal()
}

func (s ReservationState) String() string {
	return string(s)
}

// Reservation is a hold on Quantity units of SubSku for one checkout.
type Reservation struct {
	Id         int64
	CheckoutId string
	SubSku     string
	Quantity   int64
	State      ReservationState
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the composite address of the reservation.
func (r *Reservation) Key() ReservationKey {
	return ReservationKey{CheckoutId: r.CheckoutId, SubSku: r.SubSku}
}

// Expired reports whether the reservation is ACTIVE and past its deadline.
func (r *Reservation) Expired(now time.Time) bool {
	return r.State == ReservationActive && r.ExpiresAt.Before(now)
}

// ReservationKey addresses the live reservation of one sku within one checkout.
type ReservationKey struct {
	CheckoutId string
	SubSku     string
}

func (k ReservationKey) String() string {
	return k.CheckoutId + "|" + k.SubSku
}
