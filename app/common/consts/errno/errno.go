package errno

const (
	StatusOK = 10000
)

const (
	InternalError = 50000 + iota
	InvalidParam
	ProductNotFound
	ProductExists
	CheckoutNotFound
	CheckoutExists
)

// reservation engine
const (
	InsufficientStock = 60000 + iota
	DuplicateReservation
	ReservationNotFound
	InvalidStateTransition
	InvalidAdjustment
	InvalidQuantity
	ConcurrencyConflict
	Timeout
)
