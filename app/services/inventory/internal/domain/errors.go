package domain

import (
	"errors"

	"Holdfast/app/common/consts/errno"
)

// Error is a reservation engine failure with a machine-readable code.
// Callers compare with errors.Is against the sentinels below; details are
// attached by wrapping with fmt.Errorf("%w ...").
type Error struct {
	code int
	kind string
}

func (e *Error) Error() string {
	return e.kind
}

// Code returns the errno code of the failure.
func (e *Error) Code() int {
	return e.code
}

// Kind returns the error name reported in StockOperationResult.Message.
func (e *Error) Kind() string {
	return e.kind
}

// Is allows errors.Is to match on the code value.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == other.code
}

func newError(code int, kind string) *Error {
	return &Error{code: code, kind: kind}
}

var (
	ErrProductNotFound        = newError(errno.ProductNotFound, "ProductNotFound")
	ErrProductExists          = newError(errno.ProductExists, "ProductExists")
	ErrCheckoutNotFound       = newError(errno.CheckoutNotFound, "CheckoutNotFound")
	ErrCheckoutExists         = newError(errno.CheckoutExists, "CheckoutExists")
	ErrInsufficientStock      = newError(errno.InsufficientStock, "InsufficientStock")
	ErrDuplicateReservation   = newError(errno.DuplicateReservation, "DuplicateReservation")
	ErrReservationNotFound    = newError(errno.ReservationNotFound, "ReservationNotFound")
	ErrInvalidStateTransition = newError(errno.InvalidStateTransition, "InvalidStateTransition")
	ErrInvalidAdjustment      = newError(errno.InvalidAdjustment, "InvalidAdjustment")
	ErrInvalidQuantity        = newError(errno.InvalidQuantity, "InvalidQuantity")
	ErrConcurrencyConflict    = newError(errno.ConcurrencyConflict, "ConcurrencyConflict")
	ErrTimeout                = newError(errno.Timeout, "Timeout")
)

// AsError extracts the engine error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsBusiness reports whether err is a per-item engine failure rather than an
// infrastructure error.
func IsBusiness(err error) bool {
	_, ok := AsError(err)
	return ok
}

// Kind returns the engine error name of err, or its text for foreign errors.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind()
	}
	return err.Error()
}
