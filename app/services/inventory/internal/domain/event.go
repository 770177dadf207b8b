package domain

import "time"

type EventType string

const (
	EventLocked     EventType = "LOCKED"
	EventCommitted  EventType = "COMMITTED"
	EventReleased   EventType = "RELEASED"
	EventExpired    EventType = "EXPIRED"
	EventAdjusted   EventType = "ADJUSTED"
	EventRolledBack EventType = "ROLLED_BACK"
)

// ReservationEvent is emitted after a stock-affecting transition.
type ReservationEvent struct {
	EventId       string    `json:"eventId"`
	Type          EventType `json:"type"`
	CheckoutId    string    `json:"checkoutId,omitempty"`
	ReservationId int64     `json:"reservationId,omitempty"`
	SubSku        string    `json:"subSku"`
	Quantity      int64     `json:"quantity"`
	CurrentStock  int64     `json:"currentStock"`
	OccurredAt    time.Time `json:"occurredAt"`
}
