package mq

import "Holdfast/app/services/inventory/internal/domain"

// Asynq task type for the per-reservation expiry hint
const TaskExpireReservation = "inventory:expire_reservation"

type ExpireReservationPayload struct {
	ReservationId int64  `json:"reservation_id"`
	CheckoutId    string `json:"checkout_id"`
	SubSku        string `json:"sub_sku"`
}

// AdjustStockMessage is consumed from the adjust topic, typically sent by
// receiving or stocktaking systems.
type AdjustStockMessage struct {
	Source      string              `json:"source"`
	Policy      string              `json:"policy"`
	Adjustments []domain.Adjustment `json:"adjustments"`
}
