// Package registry records reservations and arbitrates whether a
// (checkoutId, subSku) reservation has already been resolved.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Holdfast/app/common/clock"
	"Holdfast/app/common/snowflake"
	"Holdfast/app/services/inventory/internal/domain"

	"github.com/zeromicro/go-zero/core/logx"
)

// HintIndex is the fast TTL store mirroring ACTIVE reservations. Failures are
// logged and never fail the registry call.
type HintIndex interface {
	Hold(ctx context.Context, id int64, expiresAt time.Time) error
	Unhold(ctx context.Context, ids ...int64) error
	Due(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// DuplicateError is returned by Create when the key is already occupied.
type DuplicateError struct {
	Existing *domain.Reservation
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s is %s", domain.ErrDuplicateReservation, e.Existing.Key(), e.Existing.State)
}

func (e *DuplicateError) Unwrap() error {
	return domain.ErrDuplicateReservation
}

type Option func(*Registry)

// WithDefaultTTL sets the TTL used when Create gets a non-positive one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.defaultTTL = ttl
		}
	}
}

// WithMaxTTL caps the TTL a caller may ask for.
func WithMaxTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.maxTTL = ttl
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithHintIndex(h HintIndex) Option {
	return func(r *Registry) {
		r.hints = h
	}
}

// WithIdGenerator replaces snowflake ids; tests use it for stable ids.
func WithIdGenerator(next func() int64) Option {
	return func(r *Registry) {
		if next != nil {
			r.nextId = next
		}
	}
}

type Registry struct {
	store      domain.ReservationStore
	hints      HintIndex
	clock      clock.Clock
	defaultTTL time.Duration
	maxTTL     time.Duration
	nextId     func() int64
}

func New(store domain.ReservationStore, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		clock:      clock.NewSystem(),
		defaultTTL: domain.DefaultReservationTTL,
		nextId:     snowflake.Next,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now is the registry clock, shared with the components that compare deadlines.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// TTL resolves the effective TTL of a lock request.
func (r *Registry) TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if r.maxTTL > 0 && ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	return ttl
}

// Create records a new ACTIVE reservation. When the key already holds an
// ACTIVE or COMMITTED reservation it fails with a *DuplicateError.
func (r *Registry) Create(ctx context.Context, checkoutId, subSku string, quantity int64, ttl time.Duration) (*domain.Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	now := r.clock.Now()
	res := &domain.Reservation{
		Id:         r.nextId(),
		CheckoutId: checkoutId,
		SubSku:     subSku,
		Quantity:   quantity,
		State:      domain.ReservationActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.TTL(ttl)),
		UpdatedAt:  now,
	}

	if err := r.store.Insert(ctx, res); err != nil {
		if !errors.Is(err, domain.ErrDuplicateReservation) {
			return nil, err
		}
		existing, findErr := r.store.FindLive(ctx, res.Key())
		if findErr != nil {
			if errors.Is(findErr, domain.ErrReservationNotFound) {
				// the holder was resolved in between; the caller may retry
				return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReservation, res.Key())
			}
			return nil, findErr
		}
		return nil, &DuplicateError{Existing: existing}
	}

	if r.hints != nil {
		if err := r.hints.Hold(ctx, res.Id, res.ExpiresAt); err != nil {
			logx.WithContext(ctx).Errorw("registry: hold hint failed",
				logx.Field("reservation_id", res.Id),
				logx.Field("err", err.Error()),
			)
		}
	}
	return res, nil
}

// Transition moves the live reservation of (checkoutId, subSku) from one state
// to another.
func (r *Registry) Transition(ctx context.Context, checkoutId, subSku string, from, to domain.ReservationState) (*domain.Reservation, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, from, to)
	}
	res, err := r.Find(ctx, checkoutId, subSku)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil, fmt.Errorf("%w: no live reservation for %s|%s", domain.ErrInvalidStateTransition, checkoutId, subSku)
		}
		return nil, err
	}
	if res.State != from {
		return nil, fmt.Errorf("%w: %s is %s, not %s", domain.ErrInvalidStateTransition, res.Key(), res.State, from)
	}
	return r.TransitionRecord(ctx, res, to)
}

// TransitionRecord moves exactly this reservation (by id) from its current
// state to `to`. A lost race surfaces as ErrInvalidStateTransition.
func (r *Registry) TransitionRecord(ctx context.Context, res *domain.Reservation, to domain.ReservationState) (*domain.Reservation, error) {
	if !res.State.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, res.State, to)
	}
	now := r.clock.Now()
	ok, err := r.store.UpdateState(ctx, res.Id, res.State, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s moved away from %s", domain.ErrInvalidStateTransition, res.Key(), res.State)
	}
	r.unhold(ctx, res.Id)

	out := *res
	out.State = to
	out.UpdatedAt = now
	return &out, nil
}

// Delete removes an ACTIVE reservation whose stock was never taken.
func (r *Registry) Delete(ctx context.Context, res *domain.Reservation) error {
	ok, err := r.store.DeleteActive(ctx, res.Id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is no longer ACTIVE", domain.ErrInvalidStateTransition, res.Key())
	}
	r.unhold(ctx, res.Id)
	return nil
}

// Find returns the live (ACTIVE or COMMITTED) reservation of the key.
func (r *Registry) Find(ctx context.Context, checkoutId, subSku string) (*domain.Reservation, error) {
	return r.store.FindLive(ctx, domain.ReservationKey{CheckoutId: checkoutId, SubSku: subSku})
}

func (r *Registry) FindById(ctx context.Context, id int64) (*domain.Reservation, error) {
	return r.store.FindById(ctx, id)
}

func (r *Registry) FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*domain.Reservation, error) {
	return r.store.FindActiveByCheckout(ctx, checkoutId)
}

// FindExpired returns ACTIVE reservations whose deadline is before now.
func (r *Registry) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	return r.store.FindExpired(ctx, now, limit)
}

// DueHints returns reservation ids the hint index believes are due. It is
// empty without a hint index.
func (r *Registry) DueHints(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if r.hints == nil {
		return nil, nil
	}
	return r.hints.Due(ctx, now, limit)
}

// ForgetHints drops ids from the hint index.
func (r *Registry) ForgetHints(ctx context.Context, ids ...int64) {
	r.unhold(ctx, ids...)
}

func (r *Registry) unhold(ctx context.Context, ids ...int64) {
	if r.hints == nil || len(ids) == 0 {
		return
	}
	if err := r.hints.Unhold(ctx, ids...); err != nil {
		logx.WithContext(ctx).Errorw("registry: unhold hint failed",
			logx.Field("reservation_ids", ids),
			logx.Field("err", err.Error()),
		)
	}
}
