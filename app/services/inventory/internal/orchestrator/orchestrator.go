// Package orchestrator drives the checkout state machine on top of the bulk
// coordinator: validate and reserve, then finalize or invalidate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Holdfast/app/common/locker"
	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/domain"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
)

const (
	defaultLockTTL = 30 * time.Second
	lockPrefix     = "checkout:"
)

var metricTransitions = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "holdfast",
	Subsystem: "checkout",
	Name:      "transitions_total",
	Help:      "checkout status changes by target status.",
	Labels:    []string{"status"},
})

type (
	Bulk interface {
		Lock(ctx context.Context, checkoutId string, items []domain.Item, ttl time.Duration, policy coordinator.Policy) (*domain.BulkOperationResponse, error)
		Acquire(ctx context.Context, checkoutId string, items []domain.Item) (*domain.BulkOperationResponse, error)
		Release(ctx context.Context, checkoutId string, items []domain.Item) (*domain.BulkOperationResponse, error)
	}

	Reservations interface {
		Now() time.Time
		TTL(ttl time.Duration) time.Duration
		Find(ctx context.Context, checkoutId, subSku string) (*domain.Reservation, error)
		FindActiveByCheckout(ctx context.Context, checkoutId string) ([]*domain.Reservation, error)
	}

	// cachedFinder is implemented by stores with a read-through cache.
	cachedFinder interface {
		FindCached(ctx context.Context, checkoutId string) (*domain.Checkout, error)
	}
)

type Option func(*Orchestrator)

// WithLocker serializes calls for one checkout id. Without it calls are not
// serialized and only the status compare-and-set protects the checkout.
func WithLocker(l locker.Locker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

type Orchestrator struct {
	checkouts    domain.CheckoutStore
	bulk         Bulk
	reservations Reservations
	locker       locker.Locker
	lockTTL      time.Duration
}

func New(checkouts domain.CheckoutStore, bulk Bulk, reservations Reservations, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		checkouts:    checkouts,
		bulk:         bulk,
		reservations: reservations,
		lockTTL:      defaultLockTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ValidateAndReserve locks every item of the checkout all-or-nothing. A
// checkout that already left PENDING is returned as it is. On failure the
// checkout stays PENDING with the failed result so the caller may retry.
func (o *Orchestrator) ValidateAndReserve(ctx context.Context, checkoutId, userId string, items []domain.Item, ttl time.Duration) (*domain.Checkout, error) {
	if checkoutId == "" {
		return nil, fmt.Errorf("%w: empty checkout id", domain.ErrCheckoutNotFound)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", domain.ErrInvalidQuantity)
	}

	var out *domain.Checkout
	err := o.withCheckout(ctx, checkoutId, func(ctx context.Context) error {
		now := o.reservations.Now()
		effective := o.reservations.TTL(ttl)
		c, err := o.checkouts.Find(ctx, checkoutId)
		switch {
		case errors.Is(err, domain.ErrCheckoutNotFound):
			c = &domain.Checkout{
				CheckoutId: checkoutId,
				UserId:     userId,
				Items:      append([]domain.Item(nil), items...),
				Status:     domain.CheckoutPending,
				CreatedAt:  now,
				ExpiresAt:  now.Add(effective),
				UpdatedAt:  now,
			}
			if err := o.checkouts.Insert(ctx, c); err != nil {
				return err
			}
		case err != nil:
			return err
		case c.Status != domain.CheckoutPending:
			out = c
			return nil
		default:
			c.UserId = userId
			c.Items = append([]domain.Item(nil), items...)
		}

		resp, lockErr := o.bulk.Lock(ctx, checkoutId, c.Items, effective, coordinator.AllOrNothing)
		next := c.Clone()
		next.UpdatedAt = o.reservations.Now()
		switch {
		case lockErr != nil:
			next.LastError = domain.Kind(lockErr)
		case resp.AllSuccess:
			next.Status = domain.CheckoutReserved
			next.ExpiresAt = next.UpdatedAt.Add(effective)
			next.LastResult = resp
			next.LastError = ""
		default:
			next.LastResult = resp
			next.LastError = firstFailure(resp)
		}

		if err := o.save(context.WithoutCancel(ctx), next, domain.CheckoutPending); err != nil {
			return err
		}
		if lockErr != nil {
			return lockErr
		}
		out = next
		return nil
	})
	return out, err
}

// FinalizeCheckout commits the reservations of a RESERVED checkout. Nothing is
// committed unless every item still holds an unexpired reservation; a commit
// that still ends partial leaves it RESERVED so a retry can commit the rest.
func (o *Orchestrator) FinalizeCheckout(ctx context.Context, checkoutId string) (*domain.Checkout, error) {
	var out *domain.Checkout
	err := o.withCheckout(ctx, checkoutId, func(ctx context.Context) error {
		c, err := o.checkouts.Find(ctx, checkoutId)
		if err != nil {
			return err
		}
		switch c.Status {
		case domain.CheckoutFinalized:
			out = c
			return nil
		case domain.CheckoutReserved:
		default:
			return fmt.Errorf("%w: checkout %s is %s", domain.ErrInvalidStateTransition, checkoutId, c.Status)
		}

		now := o.reservations.Now()
		if c.ExpiresAt.Before(now) {
			next := c.Clone()
			next.Status = domain.CheckoutExpired
			next.UpdatedAt = now
			if err := o.save(ctx, next, domain.CheckoutReserved); err != nil {
				return err
			}
			return fmt.Errorf("%w: checkout %s expired at %s", domain.ErrInvalidStateTransition, checkoutId, c.ExpiresAt.Format(time.RFC3339))
		}

		held, err := o.live(ctx, c)
		if err != nil {
			return err
		}
		for _, it := range c.Items {
			res, ok := held[it.SubSku]
			switch {
			case !ok:
				return fmt.Errorf("%w: checkout %s no longer holds %s", domain.ErrInvalidStateTransition, checkoutId, it.SubSku)
			case res.State == domain.ReservationActive && res.Expired(now):
				return fmt.Errorf("%w: reservation of %s expired", domain.ErrInvalidStateTransition, res.Key())
			}
		}

		resp, err := o.bulk.Acquire(ctx, checkoutId, c.Items)
		if err != nil {
			return err
		}
		next := c.Clone()
		next.LastResult = resp
		next.UpdatedAt = o.reservations.Now()
		if resp.AllSuccess {
			next.Status = domain.CheckoutFinalized
			next.LastError = ""
		} else {
			next.LastError = firstFailure(resp)
		}
		if err := o.save(context.WithoutCancel(ctx), next, domain.CheckoutReserved); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// InvalidateCheckout releases whatever the checkout still holds and closes it.
func (o *Orchestrator) InvalidateCheckout(ctx context.Context, checkoutId string) (*domain.Checkout, error) {
	var out *domain.Checkout
	err := o.withCheckout(ctx, checkoutId, func(ctx context.Context) error {
		c, err := o.checkouts.Find(ctx, checkoutId)
		if err != nil {
			return err
		}
		switch c.Status {
		case domain.CheckoutInvalidated:
			out = c
			return nil
		case domain.CheckoutPending, domain.CheckoutReserved:
		default:
			return fmt.Errorf("%w: checkout %s is %s", domain.ErrInvalidStateTransition, checkoutId, c.Status)
		}

		live, err := o.live(ctx, c)
		if err != nil {
			return err
		}
		for _, r := range live {
			if r.State == domain.ReservationCommitted {
				// units already left for good; finalize is the only way out
				return fmt.Errorf("%w: checkout %s has committed %s", domain.ErrInvalidStateTransition, checkoutId, r.SubSku)
			}
		}

		active, err := o.reservations.FindActiveByCheckout(ctx, checkoutId)
		if err != nil {
			return err
		}
		held := make([]domain.Item, 0, len(active))
		for _, r := range active {
			held = append(held, domain.Item{SubSku: r.SubSku, Quantity: r.Quantity})
		}

		resp := domain.NewBulkOperationResponse(checkoutId, nil)
		if len(held) > 0 {
			if resp, err = o.bulk.Release(ctx, checkoutId, held); err != nil {
				return err
			}
		}

		from := c.Status
		next := c.Clone()
		next.Status = domain.CheckoutInvalidated
		next.LastResult = resp
		next.LastError = firstFailure(resp)
		next.UpdatedAt = o.reservations.Now()
		if err := o.save(context.WithoutCancel(ctx), next, from); err != nil {
			return err
		}
		if !resp.AllSuccess {
			// leftovers are ACTIVE and go back to stock when they expire
			logx.WithContext(ctx).Errorw("checkout invalidated with unreleased items",
				logx.Field("checkout_id", checkoutId),
				logx.Field("failures", resp.FailureCount),
			)
		}
		out = next
		return nil
	})
	return out, err
}

// GetCheckout returns the stored snapshot of a checkout.
func (o *Orchestrator) GetCheckout(ctx context.Context, checkoutId string) (*domain.Checkout, error) {
	if cf, ok := o.checkouts.(cachedFinder); ok {
		return cf.FindCached(ctx, checkoutId)
	}
	return o.checkouts.Find(ctx, checkoutId)
}

// ExpireOverdue moves RESERVED checkouts past their deadline to EXPIRED.
// Checkouts busy in another call are left for the next sweep.
func (o *Orchestrator) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	overdue, err := o.checkouts.FindExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	var n int
	for _, c := range overdue {
		if ctx.Err() != nil {
			return n, nil
		}
		unlock := func() {}
		if o.locker != nil {
			u, ok, err := o.locker.TryLock(ctx, lockPrefix+c.CheckoutId, o.lockTTL)
			if err != nil || !ok {
				continue
			}
			unlock = u
		}
		expired, err := o.expireOne(ctx, c.CheckoutId, now)
		unlock()
		if err != nil {
			logx.WithContext(ctx).Errorw("expire checkout failed",
				logx.Field("checkout_id", c.CheckoutId),
				logx.Field("err", err.Error()),
			)
			continue
		}
		if expired {
			n++
		}
	}
	return n, nil
}

func (o *Orchestrator) expireOne(ctx context.Context, checkoutId string, now time.Time) (bool, error) {
	c, err := o.checkouts.Find(ctx, checkoutId)
	if err != nil {
		return false, err
	}
	if c.Status != domain.CheckoutReserved || !c.ExpiresAt.Before(now) {
		return false, nil
	}
	next := c.Clone()
	next.Status = domain.CheckoutExpired
	next.UpdatedAt = now
	if err := o.save(ctx, next, domain.CheckoutReserved); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) withCheckout(ctx context.Context, checkoutId string, fn func(ctx context.Context) error) error {
	if o.locker == nil {
		return fn(ctx)
	}
	unlock, err := locker.Acquire(ctx, o.locker, lockPrefix+checkoutId, o.lockTTL)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: checkout %s busy: %v", domain.ErrTimeout, checkoutId, err)
		}
		return err
	}
	defer unlock()
	return fn(ctx)
}

func (o *Orchestrator) save(ctx context.Context, c *domain.Checkout, from domain.CheckoutStatus) error {
	ok, err := o.checkouts.Update(ctx, c, from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: checkout %s moved away from %s", domain.ErrConcurrencyConflict, c.CheckoutId, from)
	}
	if c.Status != from {
		metricTransitions.Inc(c.Status.String())
		logx.WithContext(ctx).Infow("checkout status changed",
			logx.Field("checkout_id", c.CheckoutId),
			logx.Field("from", from.String()),
			logx.Field("to", c.Status.String()),
		)
	}
	return nil
}

// live returns the ACTIVE or COMMITTED reservation of each item of c, keyed by
// sub-SKU. Items with none are absent.
func (o *Orchestrator) live(ctx context.Context, c *domain.Checkout) (map[string]*domain.Reservation, error) {
	out := make(map[string]*domain.Reservation, len(c.Items))
	for _, it := range c.Items {
		if _, ok := out[it.SubSku]; ok {
			continue
		}
		res, err := o.reservations.Find(ctx, c.CheckoutId, it.SubSku)
		if err != nil {
			if errors.Is(err, domain.ErrReservationNotFound) {
				continue
			}
			return nil, err
		}
		out[it.SubSku] = res
	}
	return out, nil
}

func firstFailure(resp *domain.BulkOperationResponse) string {
	if resp == nil {
		return ""
	}
	for _, r := range resp.Results {
		if !r.Success {
			return r.Message
		}
	}
	return ""
}
