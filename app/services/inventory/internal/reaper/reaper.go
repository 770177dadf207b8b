// Package reaper expires abandoned reservations and checkouts in the
// background, returning their stock to the ledger.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Holdfast/app/common/locker"
	"Holdfast/app/common/snowflake"
	"Holdfast/app/services/inventory/internal/domain"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
	"github.com/zeromicro/go-zero/core/threading"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultInterval  = 30 * time.Second
	defaultBatchSize = 100
	leaderKey        = "reaper"
)

var (
	tracer = otel.Tracer("holdfast/reaper")

	metricReaped = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "holdfast",
		Subsystem: "reaper",
		Name:      "reservations_total",
		Help:      "reservations handled by the reaper by result.",
		Labels:    []string{"result"},
	})
)

type (
	// StockLedger gives back expired units. Restore must not stop on ctx
	// cancellation once the reservation has left ACTIVE.
	StockLedger interface {
		Restore(ctx context.Context, subSku string, quantity int64) (int64, error)
	}

	Reservations interface {
		Now() time.Time
		Find(ctx context.Context, checkoutId, subSku string) (*domain.Reservation, error)
		FindById(ctx context.Context, id int64) (*domain.Reservation, error)
		FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error)
		TransitionRecord(ctx context.Context, res *domain.Reservation, to domain.ReservationState) (*domain.Reservation, error)
		DueHints(ctx context.Context, now time.Time, limit int) ([]int64, error)
		ForgetHints(ctx context.Context, ids ...int64)
	}

	// Checkouts expires RESERVED checkouts past their deadline.
	Checkouts interface {
		ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error)
	}

	EventPublisher interface {
		Publish(ctx context.Context, events ...domain.ReservationEvent) error
	}
)

// Stats is the outcome of one sweep.
type Stats struct {
	Expired          int
	Skipped          int
	Failed           int
	CheckoutsExpired int
}

type Option func(*Reaper)

// WithInterval sets the sweep period; it is clamped to at least one second.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d < time.Second {
			d = time.Second
		}
		r.interval = d
	}
}

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithLeaderLock makes only the holder of the lock sweep on each tick.
func WithLeaderLock(l locker.Locker, ttl time.Duration) Option {
	return func(r *Reaper) {
		r.leader = l
		r.leaderTTL = ttl
	}
}

func WithCheckouts(c Checkouts) Option {
	return func(r *Reaper) {
		r.checkouts = c
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(r *Reaper) {
		r.publisher = p
	}
}

type Reaper struct {
	ledger      StockLedger
	registry    Reservations
	checkouts   Checkouts
	publisher   EventPublisher
	leader      locker.Locker
	leaderTTL   time.Duration
	interval    time.Duration
	batch       int
	nextEventId func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(ledger StockLedger, reservations Reservations, opts ...Option) *Reaper {
	r := &Reaper{
		ledger:      ledger,
		registry:    reservations,
		interval:    DefaultInterval,
		batch:       defaultBatchSize,
		nextEventId: snowflake.NextString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.leaderTTL <= 0 {
		r.leaderTTL = r.interval
	}
	return r
}

// Start runs the sweep loop until Stop. Calling Start twice is a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	logx.Infow("reaper started", logx.Field("interval", r.interval.String()))
	threading.GoSafe(func() {
		defer close(done)
		r.loop(ctx)
	})
}

// Stop cancels the loop and waits for the running sweep to return.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logx.Info("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	if r.leader != nil {
		unlock, ok, err := r.leader.TryLock(ctx, leaderKey, r.leaderTTL)
		if err != nil {
			logx.Errorw("reaper: leader lock failed", logx.Field("err", err.Error()))
			return
		}
		if !ok {
			return
		}
		defer unlock()
	}
	stats := r.RunOnce(ctx)
	if stats.Expired+stats.Failed+stats.CheckoutsExpired > 0 {
		logx.Infow("reaper sweep",
			logx.Field("expired", stats.Expired),
			logx.Field("skipped", stats.Skipped),
			logx.Field("failed", stats.Failed),
			logx.Field("checkouts_expired", stats.CheckoutsExpired),
		)
	}
}

// RunOnce performs one sweep: hinted ids first, then the authoritative
// expiry index, then overdue checkouts. Errors are logged and counted.
func (r *Reaper) RunOnce(ctx context.Context) Stats {
	ctx, span := tracer.Start(ctx, "reaper.RunOnce")
	defer span.End()

	var stats Stats
	now := r.registry.Now()
	seen := make(map[int64]struct{})

	ids, err := r.registry.DueHints(ctx, now, r.batch)
	if err != nil {
		logx.WithContext(ctx).Errorw("reaper: read hints failed", logx.Field("err", err.Error()))
	}
	var stale []int64
	for _, id := range ids {
		if ctx.Err() != nil {
			return stats
		}
		res, err := r.registry.FindById(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrReservationNotFound) {
				stale = append(stale, id)
				continue
			}
			stats.Failed++
			logx.WithContext(ctx).Errorw("reaper: load hinted reservation failed",
				logx.Field("reservation_id", id),
				logx.Field("err", err.Error()),
			)
			continue
		}
		if !res.Expired(now) {
			if res.State != domain.ReservationActive {
				stale = append(stale, id)
			}
			continue
		}
		seen[id] = struct{}{}
		r.expire(ctx, res, &stats)
	}
	if len(stale) > 0 {
		r.registry.ForgetHints(ctx, stale...)
	}

	expired, err := r.registry.FindExpired(ctx, now, r.batch)
	if err != nil {
		stats.Failed++
		logx.WithContext(ctx).Errorw("reaper: find expired failed", logx.Field("err", err.Error()))
	}
	for _, res := range expired {
		if ctx.Err() != nil {
			return stats
		}
		if _, ok := seen[res.Id]; ok {
			continue
		}
		r.expire(ctx, res, &stats)
	}

	if r.checkouts != nil && ctx.Err() == nil {
		n, err := r.checkouts.ExpireOverdue(ctx, now, r.batch)
		if err != nil {
			stats.Failed++
			logx.WithContext(ctx).Errorw("reaper: expire checkouts failed", logx.Field("err", err.Error()))
		}
		stats.CheckoutsExpired = n
	}

	span.SetAttributes(
		attribute.Int("reaper.expired", stats.Expired),
		attribute.Int("reaper.skipped", stats.Skipped),
		attribute.Int("reaper.failed", stats.Failed),
	)
	return stats
}

// ExpireReservation expires the live reservation of one key if it is overdue.
// It reports whether stock was returned.
func (r *Reaper) ExpireReservation(ctx context.Context, checkoutId, subSku string) (bool, error) {
	res, err := r.registry.Find(ctx, checkoutId, subSku)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return false, nil
		}
		return false, err
	}
	if !res.Expired(r.registry.Now()) {
		return false, nil
	}
	var stats Stats
	r.expire(ctx, res, &stats)
	if stats.Failed > 0 {
		return false, fmt.Errorf("reaper: expire reservation %d failed", res.Id)
	}
	return stats.Expired == 1, nil
}

func (r *Reaper) expire(ctx context.Context, res *domain.Reservation, stats *Stats) {
	if _, err := r.registry.TransitionRecord(ctx, res, domain.ReservationExpired); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			// resolved by someone else since it was read
			stats.Skipped++
			metricReaped.Inc("skipped")
			return
		}
		stats.Failed++
		metricReaped.Inc("failed")
		logx.WithContext(ctx).Errorw("reaper: transition failed",
			logx.Field("reservation_id", res.Id),
			logx.Field("err", err.Error()),
		)
		return
	}

	stock, err := r.ledger.Restore(context.WithoutCancel(ctx), res.SubSku, res.Quantity)
	if err != nil {
		stats.Failed++
		metricReaped.Inc("failed")
		logx.WithContext(ctx).Errorw("reaper: release expired stock failed",
			logx.Field("reservation_id", res.Id),
			logx.Field("sub_sku", res.SubSku),
			logx.Field("quantity", res.Quantity),
			logx.Field("err", err.Error()),
		)
		return
	}
	stats.Expired++
	metricReaped.Inc("expired")
	logx.WithContext(ctx).Infow("reservation expired",
		logx.Field("reservation_id", res.Id),
		logx.Field("checkout_id", res.CheckoutId),
		logx.Field("sub_sku", res.SubSku),
		logx.Field("quantity", res.Quantity),
		logx.Field("stock", stock),
	)

	if r.publisher != nil {
		event := domain.ReservationEvent{
			EventId:       r.nextEventId(),
			Type:          domain.EventExpired,
			CheckoutId:    res.CheckoutId,
			ReservationId: res.Id,
			SubSku:        res.SubSku,
			Quantity:      res.Quantity,
			CurrentStock:  stock,
			OccurredAt:    r.registry.Now(),
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			logx.WithContext(ctx).Errorw("reaper: publish expired event failed",
				logx.Field("reservation_id", res.Id),
				logx.Field("err", err.Error()),
			)
		}
	}
}
