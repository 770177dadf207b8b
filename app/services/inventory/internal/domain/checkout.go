package domain

import "time"

type CheckoutStatus string

const (
	CheckoutPending     CheckoutStatus = "PENDING"
	CheckoutReserved    CheckoutStatus = "RESERVED"
	CheckoutFinalized   CheckoutStatus = "FINALIZED"
	CheckoutInvalidated CheckoutStatus = "INVALIDATED"
	CheckoutExpired     CheckoutStatus = "EXPIRED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutFinalized || s == CheckoutInvalidated || s == CheckoutExpired
}

func (s CheckoutStatus) String() string {
	return string(s)
}

// Checkout is one buyer's in-flight purchase attempt. Reservations are not
// embedded; they are looked up by CheckoutId.
type Checkout struct {
	CheckoutId string
	UserId     string
	Items      []Item
	Status     CheckoutStatus
	LastResult *BulkOperationResponse
	LastError  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a copy safe to hand out of a store.
func (c *Checkout) Clone() *Checkout {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	if c.LastResult != nil {
		res := *c.LastResult
		res.Results = append([]StockOperationResult(nil), c.LastResult.Results...)
		cp.LastResult = &res
	}
	return &cp
}
