// Package ledger is the authoritative per-SKU available stock. Every write is a
// compare-and-swap on the record version, retried a bounded number of times.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Holdfast/app/common/clock"
	"Holdfast/app/services/inventory/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 5 * time.Millisecond
)

var (
	errVersionMismatch = errors.New("inventory version mismatch")

	metricLedgerOps = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "holdfast",
		Subsystem: "ledger",
		Name:      "ops_total",
		Help:      "stock ledger operations by op and result.",
		Labels:    []string{"op", "result"},
	})
	metricLedgerConflicts = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "holdfast",
		Subsystem: "ledger",
		Name:      "cas_conflicts_total",
		Help:      "version mismatches seen by the stock ledger.",
		Labels:    []string{"op"},
	})
)

type Option func(*Ledger)

// WithMaxAttempts bounds the compare-and-swap attempts per call.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry interval; later ones grow exponentially.
func WithBackoff(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

type Ledger struct {
	store       domain.StockStore
	clock       clock.Clock
	maxAttempts int
	interval    time.Duration
}

func New(store domain.StockStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		clock:       clock.NewSystem(),
		maxAttempts: defaultMaxAttempts,
		interval:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve takes quantity out of available stock. On InsufficientStock the
// returned stock is the level that was observed.
func (l *Ledger) Reserve(ctx context.Context, subSku string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	return l.mutate(ctx, "reserve", subSku, func(cur int64) (int64, error) {
		if cur < quantity {
			return 0, fmt.Errorf("%w: %s has %d, need %d", domain.ErrInsufficientStock, subSku, cur, quantity)
		}
		return cur - quantity, nil
	})
}

// Release returns quantity to available stock. Guarding against double release
// is the registry's job.
func (l *Ledger) Release(ctx context.Context, subSku string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	return l.mutate(ctx, "release", subSku, func(cur int64) (int64, error) {
		return cur + quantity, nil
	})
}

// Restore gives back the units of a reservation that has already left ACTIVE.
// Nothing else will return them, so version conflicts and store errors are
// retried until the write lands and cancellation of ctx is ignored. Only
// business errors such as an unknown sub-SKU end it early.
func (l *Ledger) Restore(ctx context.Context, subSku string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	ctx = context.WithoutCancel(ctx)
	return l.apply(ctx, "restore", subSku, l.restoreBackOff(), func(err error) bool {
		return !domain.IsBusiness(err)
	}, func(cur int64) (int64, error) {
		return cur + quantity, nil
	})
}

// Commit leaves stock untouched; the units left the pool at reserve time.
func (l *Ledger) Commit(ctx context.Context, subSku string, quantity int64) (int64, error) {
	rec, err := l.store.Get(ctx, subSku)
	if err != nil {
		metricLedgerOps.Inc("commit", resultLabel(err))
		return 0, err
	}
	metricLedgerOps.Inc("commit", "ok")
	logx.WithContext(ctx).Infow("stock committed",
		logx.Field("sub_sku", subSku),
		logx.Field("quantity", quantity),
		logx.Field("stock", rec.AvailableStock),
		logx.Field("version", rec.Version),
	)
	return rec.AvailableStock, nil
}

// Adjust applies an administrative delta. It never drives stock negative.
func (l *Ledger) Adjust(ctx context.Context, subSku string, delta int64) (int64, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", domain.ErrInvalidAdjustment)
	}
	stock, err := l.mutate(ctx, "adjust", subSku, func(cur int64) (int64, error) {
		if cur+delta < 0 {
			return 0, fmt.Errorf("%w: %s has %d, delta %d", domain.ErrInvalidAdjustment, subSku, cur, delta)
		}
		return cur + delta, nil
	})
	if err == nil {
		logx.WithContext(ctx).Infow("stock adjusted",
			logx.Field("sub_sku", subSku),
			logx.Field("delta", delta),
			logx.Field("stock", stock),
		)
	}
	return stock, err
}

// Register creates the record of a new sub-SKU.
func (l *Ledger) Register(ctx context.Context, subSku string, initial int64) (*domain.InventoryRecord, error) {
	if subSku == "" {
		return nil, fmt.Errorf("%w: empty sub sku", domain.ErrProductNotFound)
	}
	if initial < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, initial)
	}
	rec := &domain.InventoryRecord{
		SubSku:         subSku,
		AvailableStock: initial,
		UpdatedAt:      l.clock.Now(),
	}
	if err := l.store.Create(ctx, rec); err != nil {
		metricLedgerOps.Inc("register", resultLabel(err))
		return nil, err
	}
	metricLedgerOps.Inc("register", "ok")
	return rec, nil
}

func (l *Ledger) Get(ctx context.Context, subSku string) (*domain.InventoryRecord, error) {
	return l.store.Get(ctx, subSku)
}

// GetMany returns the known records; unknown skus are absent from the map.
func (l *Ledger) GetMany(ctx context.Context, subSkus []string) (map[string]*domain.InventoryRecord, error) {
	return l.store.GetMany(ctx, subSkus)
}

// Stock returns the available stock of subSku, or 0 when it cannot be read.
// It only feeds CurrentStock in responses; read failures other than an
// unknown sub-SKU are logged.
func (l *Ledger) Stock(ctx context.Context, subSku string) int64 {
	rec, err := l.store.Get(ctx, subSku)
	if err != nil {
		if !domain.IsBusiness(err) {
			logx.WithContext(ctx).Errorw("ledger: stock read failed",
				logx.Field("sub_sku", subSku),
				logx.Field("err", err.Error()),
			)
		}
		return 0
	}
	return rec.AvailableStock
}

func (l *Ledger) mutate(ctx context.Context, op, subSku string, next func(cur int64) (int64, error)) (int64, error) {
	return l.apply(ctx, op, subSku, l.newBackOff(ctx), nil, next)
}

func (l *Ledger) apply(ctx context.Context, op, subSku string, b backoff.BackOff,
	retryStore func(error) bool, next func(cur int64) (int64, error)) (int64, error) {
	var stock int64
	storeErr := func(err error) error {
		if retryStore != nil && retryStore(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	operation := func() error {
		rec, err := l.store.Get(ctx, subSku)
		if err != nil {
			return storeErr(err)
		}
		stock = rec.AvailableStock
		val, err := next(rec.AvailableStock)
		if err != nil {
			return backoff.Permanent(err)
		}
		ok, err := l.store.CompareAndSwap(ctx, subSku, rec.Version, val, l.clock.Now())
		if err != nil {
			return storeErr(err)
		}
		if !ok {
			metricLedgerConflicts.Inc(op)
			return errVersionMismatch
		}
		stock = val
		return nil
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if retryStore != nil && !errors.Is(err, errVersionMismatch) {
			logx.WithContext(ctx).Errorw("ledger: store failed, retrying",
				logx.Field("op", op),
				logx.Field("sub_sku", subSku),
				logx.Field("wait", wait.String()),
				logx.Field("err", err.Error()),
			)
		}
	})
	switch {
	case err == nil:
	case errors.Is(err, errVersionMismatch):
		err = fmt.Errorf("%w: %s after %d attempts", domain.ErrConcurrencyConflict, subSku, l.maxAttempts)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %s %s: %v", domain.ErrTimeout, op, subSku, err)
	}
	metricLedgerOps.Inc(op, resultLabel(err))
	return stock, err
}

func (l *Ledger) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.interval
	eb.MaxInterval = l.interval * 16
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.maxAttempts-1)), ctx)
}

// restoreBackOff never gives up.
func (l *Ledger) restoreBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.interval
	eb.MaxInterval = l.interval * 64
	eb.MaxElapsedTime = 0
	return eb
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := domain.AsError(err); ok {
		return e.Kind()
	}
	return "error"
}
