// Package coordinator runs LOCK, ACQUIRE, RELEASE and ADJUST over a list of
// items, applying a bulk policy and compensating on failure or deadline.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Holdfast/app/common/snowflake"
	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/registry"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	messageOK         = "OK"
	messageRolledBack = "RolledBack"

	defaultCompensationTimeout = 5 * time.Second

	discardAttempts = 5
	discardBackoff  = 5 * time.Millisecond
)

var (
	tracer = otel.Tracer("holdfast/coordinator")

	metricItems = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "holdfast",
		Subsystem: "coordinator",
		Name:      "items_total",
		Help:      "bulk operation items by op and result.",
		Labels:    []string{"op", "result"},
	})
	metricDuration = metric.NewHistogramVec(&metric.HistogramVecOpts{
		Namespace: "holdfast",
		Subsystem: "coordinator",
		Name:      "duration_ms",
		Help:      "bulk operation duration in milliseconds.",
		Labels:    []string{"op"},
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)

type (
	// StockLedger is the part of the ledger the coordinator drives.
	StockLedger interface {
		Reserve(ctx context.Context, subSku string, quantity int64) (int64, error)
		Restore(ctx context.Context, subSku string, quantity int64) (int64, error)
		Commit(ctx context.Context, subSku string, quantity int64) (int64, error)
		Adjust(ctx context.Context, subSku string, delta int64) (int64, error)
		Stock(ctx context.Context, subSku string) int64
	}

	// Reservations is the part of the registry the coordinator drives.
	Reservations interface {
		Now() time.Time
		Create(ctx context.Context, checkoutId, subSku string, quantity int64, ttl time.Duration) (*domain.Reservation, error)
		Find(ctx context.Context, checkoutId, subSku string) (*domain.Reservation, error)
		TransitionRecord(ctx context.Context, res *domain.Reservation, to domain.ReservationState) (*domain.Reservation, error)
		Delete(ctx context.Context, res *domain.Reservation) error
	}

	// EventPublisher receives the events of a finished call.
	EventPublisher interface {
		Publish(ctx context.Context, events ...domain.ReservationEvent) error
	}

	// ExpiryScheduler is told about every reservation a call leaves ACTIVE.
	ExpiryScheduler interface {
		ScheduleExpiry(ctx context.Context, res *domain.Reservation) error
	}
)

type Option func(*Coordinator)

func WithEventPublisher(p EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

func WithExpiryScheduler(s ExpiryScheduler) Option {
	return func(c *Coordinator) {
		c.scheduler = s
	}
}

// WithCompensationTimeout bounds the undo work done after the caller's
// deadline has passed.
func WithCompensationTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.compensationTimeout = d
		}
	}
}

type Coordinator struct {
	ledger              StockLedger
	registry            Reservations
	publisher           EventPublisher
	scheduler           ExpiryScheduler
	compensationTimeout time.Duration
}

func New(ledger StockLedger, reservations Reservations, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:              ledger,
		registry:            reservations,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// locked is a reservation created by the current LOCK call.
type locked struct {
	index int
	res   *domain.Reservation
}

// call collects the per-item outcome and side outputs of one bulk call.
type call struct {
	op      string
	results []domain.StockOperationResult
	events  []domain.ReservationEvent
}

func newCall(op string, lines []line) *call {
	results := make([]domain.StockOperationResult, len(lines))
	for i, l := range lines {
		results[i] = domain.StockOperationResult{SubSku: l.subSku, RequestedQuantity: l.quantity}
	}
	return &call{op: op, results: results}
}

func (b *call) ok(i int, stock int64) {
	b.results[i].Success = true
	b.results[i].Message = messageOK
	b.results[i].CurrentStock = stock
}

func (b *call) fail(i int, err error, stock int64) {
	b.results[i].Success = false
	b.results[i].Message = domain.Kind(err)
	b.results[i].CurrentStock = stock
}

func (b *call) event(t domain.EventType, checkoutId string, resId int64, subSku string, quantity, stock int64, at time.Time) {
	b.events = append(b.events, domain.ReservationEvent{
		EventId:       snowflake.NextString(),
		Type:          t,
		CheckoutId:    checkoutId,
		ReservationId: resId,
		SubSku:        subSku,
		Quantity:      quantity,
		CurrentStock:  stock,
		OccurredAt:    at,
	})
}

func (b *call) failed() bool {
	for _, r := range b.results {
		if !r.Success {
			return true
		}
	}
	return false
}

// Lock reserves every item for checkoutId. A repeated lock of the same
// quantity is reported as success without touching stock.
func (c *Coordinator) Lock(ctx context.Context, checkoutId string, items []domain.Item, ttl time.Duration, policy Policy) (resp *domain.BulkOperationResponse, err error) {
	ctx, span := c.start(ctx, "Lock", checkoutId, policy, len(items))
	started := time.Now()
	defer func() { c.finish(span, "lock", started, resp, err) }()

	lines := normalize(items)
	b := newCall("lock", lines)
	var held []locked

	for i, l := range lines {
		if ctx.Err() != nil {
			c.undoLocks(ctx, checkoutId, b, held, false)
			return nil, c.timeout(ctx, "lock", checkoutId)
		}
		if l.err != nil {
			b.fail(i, l.err, 0)
			continue
		}

		res, err := c.registry.Create(ctx, checkoutId, l.subSku, l.quantity, ttl)
		if err != nil {
			var dup *registry.DuplicateError
			switch {
			case errors.As(err, &dup) && dup.Existing.State == domain.ReservationActive && dup.Existing.Quantity == l.quantity:
				b.ok(i, c.ledger.Stock(ctx, l.subSku))
			case ctx.Err() != nil:
				c.undoLocks(ctx, checkoutId, b, held, false)
				return nil, c.timeout(ctx, "lock", checkoutId)
			case domain.IsBusiness(err):
				b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			default:
				c.undoLocks(ctx, checkoutId, b, held, false)
				return nil, err
			}
			continue
		}

		stock, err := c.ledger.Reserve(ctx, l.subSku, l.quantity)
		if err != nil {
			if dropErr := c.discard(ctx, res); dropErr != nil {
				c.undoLocks(ctx, checkoutId, b, held, false)
				return nil, dropErr
			}
			switch {
			case ctx.Err() != nil || errors.Is(err, domain.ErrTimeout):
				c.undoLocks(ctx, checkoutId, b, held, false)
				return nil, c.timeout(ctx, "lock", checkoutId)
			case domain.IsBusiness(err):
				b.fail(i, err, stock)
			default:
				c.undoLocks(ctx, checkoutId, b, held, false)
				return nil, err
			}
			continue
		}

		b.ok(i, stock)
		b.event(domain.EventLocked, checkoutId, res.Id, l.subSku, l.quantity, stock, res.CreatedAt)
		held = append(held, locked{index: i, res: res})
	}

	if policy == AllOrNothing && b.failed() {
		c.undoLocks(ctx, checkoutId, b, held, true)
		held = nil
	}

	c.schedule(ctx, held)
	c.publish(ctx, b)
	return domain.NewBulkOperationResponse(checkoutId, b.results), nil
}

// undoLocks releases the reservations this call created, newest first. When
// report is set their results turn into RolledBack failures.
func (c *Coordinator) undoLocks(ctx context.Context, checkoutId string, b *call, held []locked, report bool) {
	if len(held) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(c.detach(ctx), c.compensationTimeout)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]
		stock, err := c.releaseRecord(cctx, h.res)
		if err != nil {
			logx.WithContext(ctx).Errorw("coordinator: compensation failed",
				logx.Field("checkout_id", checkoutId),
				logx.Field("reservation_id", h.res.Id),
				logx.Field("sub_sku", h.res.SubSku),
				logx.Field("err", err.Error()),
			)
			stock = c.ledger.Stock(cctx, h.res.SubSku)
		} else {
			b.event(domain.EventRolledBack, checkoutId, h.res.Id, h.res.SubSku, h.res.Quantity, stock, c.registry.Now())
		}
		if report {
			b.results[h.index].Success = false
			b.results[h.index].Message = messageRolledBack
			b.results[h.index].CurrentStock = stock
		}
	}
	if !report {
		// the call is aborting; nobody reads the results, so ship the events now
		c.publish(ctx, b)
	}
}

func (c *Coordinator) releaseRecord(ctx context.Context, res *domain.Reservation) (int64, error) {
	if _, err := c.registry.TransitionRecord(ctx, res, domain.ReservationReleased); err != nil {
		return 0, err
	}
	return c.ledger.Restore(ctx, res.SubSku, res.Quantity)
}

// discard removes a reservation whose stock was never taken. The delete is
// retried; when the record still will not go it is moved to RELEASED without
// touching stock. An error means the record may still be ACTIVE.
func (c *Coordinator) discard(ctx context.Context, res *domain.Reservation) error {
	ctx = c.detach(ctx)
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = discardBackoff
	eb.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		err := c.registry.Delete(ctx, res)
		if err != nil && domain.IsBusiness(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(eb, discardAttempts-1))
	if err == nil {
		return nil
	}
	if domain.IsBusiness(err) {
		// already moved out of ACTIVE by someone else
		logx.WithContext(ctx).Infow("coordinator: reservation gone before discard",
			logx.Field("reservation_id", res.Id),
			logx.Field("err", err.Error()),
		)
		return nil
	}

	logx.WithContext(ctx).Errorw("coordinator: drop reservation after failed reserve",
		logx.Field("reservation_id", res.Id),
		logx.Field("attempts", discardAttempts),
		logx.Field("err", err.Error()),
	)
	if _, terr := c.registry.TransitionRecord(ctx, res, domain.ReservationReleased); terr != nil && !domain.IsBusiness(terr) {
		return fmt.Errorf("coordinator: reservation %d left ACTIVE without stock: %w", res.Id, errors.Join(err, terr))
	}
	return nil
}

// Acquire commits the ACTIVE reservations of the items. Stock is not touched;
// it left the pool at lock time.
func (c *Coordinator) Acquire(ctx context.Context, checkoutId string, items []domain.Item) (resp *domain.BulkOperationResponse, err error) {
	ctx, span := c.start(ctx, "Acquire", checkoutId, BestEffort, len(items))
	started := time.Now()
	defer func() { c.finish(span, "acquire", started, resp, err) }()

	lines := normalize(items)
	b := newCall("acquire", lines)

	for i, l := range lines {
		if ctx.Err() != nil {
			c.timeoutRest(ctx, b, lines, i)
			break
		}
		if l.err != nil {
			b.fail(i, l.err, 0)
			continue
		}

		res, err := c.lookup(ctx, checkoutId, l)
		if err != nil {
			if !domain.IsBusiness(err) {
				return nil, err
			}
			b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			continue
		}

		switch res.State {
		case domain.ReservationCommitted:
			b.ok(i, c.ledger.Stock(ctx, l.subSku))
			continue
		case domain.ReservationActive:
			if res.Expired(c.registry.Now()) {
				b.fail(i, fmt.Errorf("%w: %s expired", domain.ErrInvalidStateTransition, res.Key()), c.ledger.Stock(ctx, l.subSku))
				continue
			}
		}

		committed, err := c.registry.TransitionRecord(ctx, res, domain.ReservationCommitted)
		if err != nil {
			if !domain.IsBusiness(err) {
				return nil, err
			}
			b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			continue
		}
		stock, err := c.ledger.Commit(ctx, l.subSku, l.quantity)
		if err != nil {
			logx.WithContext(ctx).Errorw("coordinator: commit audit failed",
				logx.Field("reservation_id", res.Id),
				logx.Field("err", err.Error()),
			)
		}
		b.ok(i, stock)
		b.event(domain.EventCommitted, checkoutId, res.Id, l.subSku, l.quantity, stock, committed.UpdatedAt)
	}

	c.publish(ctx, b)
	return domain.NewBulkOperationResponse(checkoutId, b.results), nil
}

// Release gives back the stock of the ACTIVE reservations of the items.
func (c *Coordinator) Release(ctx context.Context, checkoutId string, items []domain.Item) (resp *domain.BulkOperationResponse, err error) {
	ctx, span := c.start(ctx, "Release", checkoutId, BestEffort, len(items))
	started := time.Now()
	defer func() { c.finish(span, "release", started, resp, err) }()

	lines := normalize(items)
	b := newCall("release", lines)

	for i, l := range lines {
		if ctx.Err() != nil {
			c.timeoutRest(ctx, b, lines, i)
			break
		}
		if l.err != nil {
			b.fail(i, l.err, 0)
			continue
		}

		res, err := c.lookup(ctx, checkoutId, l)
		if err != nil {
			if !domain.IsBusiness(err) {
				return nil, err
			}
			b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			continue
		}

		released, err := c.registry.TransitionRecord(ctx, res, domain.ReservationReleased)
		if err != nil {
			if !domain.IsBusiness(err) {
				return nil, err
			}
			b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			continue
		}
		stock, err := c.ledger.Restore(ctx, l.subSku, res.Quantity)
		if err != nil {
			logx.WithContext(ctx).Errorw("coordinator: release after state change failed",
				logx.Field("reservation_id", res.Id),
				logx.Field("sub_sku", l.subSku),
				logx.Field("quantity", res.Quantity),
				logx.Field("err", err.Error()),
			)
			if !domain.IsBusiness(err) {
				return nil, err
			}
			b.fail(i, err, c.ledger.Stock(ctx, l.subSku))
			continue
		}
		b.ok(i, stock)
		b.event(domain.EventReleased, checkoutId, res.Id, l.subSku, res.Quantity, stock, released.UpdatedAt)
	}

	c.publish(ctx, b)
	return domain.NewBulkOperationResponse(checkoutId, b.results), nil
}

// Adjust applies administrative deltas. Under AllOrNothing applied deltas are
// reverted when any item fails.
func (c *Coordinator) Adjust(ctx context.Context, adjustments []domain.Adjustment, policy Policy) (resp *domain.BulkOperationResponse, err error) {
	ctx, span := c.start(ctx, "Adjust", "", policy, len(adjustments))
	started := time.Now()
	defer func() { c.finish(span, "adjust", started, resp, err) }()

	lines := normalizeAdjustments(adjustments)
	b := newCall("adjust", lines)
	var applied []int

	for i, l := range lines {
		if ctx.Err() != nil {
			c.timeoutRest(ctx, b, lines, i)
			break
		}
		if l.err != nil {
			b.fail(i, l.err, 0)
			continue
		}
		stock, err := c.ledger.Adjust(ctx, l.subSku, l.quantity)
		if err != nil {
			if !domain.IsBusiness(err) {
				c.revertAdjust(ctx, b, lines, applied)
				return nil, err
			}
			b.fail(i, err, stock)
			continue
		}
		b.ok(i, stock)
		b.event(domain.EventAdjusted, "", 0, l.subSku, l.quantity, stock, c.registry.Now())
		applied = append(applied, i)
	}

	if policy == AllOrNothing && b.failed() {
		c.revertAdjust(ctx, b, lines, applied)
	}

	c.publish(ctx, b)
	return domain.NewBulkOperationResponse("", b.results), nil
}

func (c *Coordinator) revertAdjust(ctx context.Context, b *call, lines []line, applied []int) {
	cctx, cancel := context.WithTimeout(c.detach(ctx), c.compensationTimeout)
	defer cancel()

	for j := len(applied) - 1; j >= 0; j-- {
		i := applied[j]
		stock, err := c.ledger.Adjust(cctx, lines[i].subSku, -lines[i].quantity)
		if err != nil {
			logx.WithContext(ctx).Errorw("coordinator: revert adjustment failed",
				logx.Field("sub_sku", lines[i].subSku),
				logx.Field("delta", lines[i].quantity),
				logx.Field("err", err.Error()),
			)
			stock = c.ledger.Stock(cctx, lines[i].subSku)
		} else {
			b.event(domain.EventAdjusted, "", 0, lines[i].subSku, -lines[i].quantity, stock, c.registry.Now())
		}
		b.results[i].Success = false
		b.results[i].Message = messageRolledBack
		b.results[i].CurrentStock = stock
	}
}

// lookup returns the live reservation of the line, checking its quantity.
func (c *Coordinator) lookup(ctx context.Context, checkoutId string, l line) (*domain.Reservation, error) {
	res, err := c.registry.Find(ctx, checkoutId, l.subSku)
	if err != nil {
		return nil, err
	}
	if res.Quantity != l.quantity {
		return nil, fmt.Errorf("%w: %s holds %d, asked %d", domain.ErrInvalidQuantity, res.Key(), res.Quantity, l.quantity)
	}
	return res, nil
}

func (c *Coordinator) timeoutRest(ctx context.Context, b *call, lines []line, from int) {
	for i := from; i < len(lines); i++ {
		b.fail(i, domain.ErrTimeout, 0)
	}
	logx.WithContext(ctx).Infow("coordinator: deadline reached",
		logx.Field("op", b.op),
		logx.Field("unprocessed", len(lines)-from),
	)
}

func (c *Coordinator) timeout(ctx context.Context, op, checkoutId string) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrTimeout, op, checkoutId, context.Cause(ctx))
}

func (c *Coordinator) schedule(ctx context.Context, held []locked) {
	if c.scheduler == nil {
		return
	}
	for _, h := range held {
		if err := c.scheduler.ScheduleExpiry(ctx, h.res); err != nil {
			logx.WithContext(ctx).Errorw("coordinator: schedule expiry failed",
				logx.Field("reservation_id", h.res.Id),
				logx.Field("err", err.Error()),
			)
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, b *call) {
	if c.publisher == nil || len(b.events) == 0 {
		return
	}
	events := b.events
	b.events = nil
	if err := c.publisher.Publish(c.detach(ctx), events...); err != nil {
		logx.WithContext(ctx).Errorw("coordinator: publish events failed",
			logx.Field("op", b.op),
			logx.Field("events", len(events)),
			logx.Field("err", err.Error()),
		)
	}
}

func (c *Coordinator) detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (c *Coordinator) start(ctx context.Context, name, checkoutId string, policy Policy, items int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "coordinator."+name)
	span.SetAttributes(
		attribute.String("checkout.id", checkoutId),
		attribute.String("bulk.policy", policy.String()),
		attribute.Int("bulk.items", items),
	)
	return ctx, span
}

func (c *Coordinator) finish(span trace.Span, op string, started time.Time, resp *domain.BulkOperationResponse, err error) {
	defer span.End()
	metricDuration.Observe(time.Since(started).Milliseconds(), op)
	if err != nil {
		metricItems.Inc(op, domain.Kind(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	for _, r := range resp.Results {
		if r.Success {
			metricItems.Inc(op, "ok")
		} else {
			metricItems.Inc(op, r.Message)
		}
	}
	span.SetAttributes(
		attribute.Int("bulk.success", resp.SuccessCount),
		attribute.Int("bulk.failure", resp.FailureCount),
	)
}
