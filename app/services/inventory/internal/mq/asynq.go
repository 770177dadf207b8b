package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Holdfast/app/services/inventory/internal/domain"

	"github.com/hibiken/asynq"
	"github.com/zeromicro/go-zero/core/logx"
)

// TaskEnqueuer is the part of *asynq.Client the scheduler uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type ReservationExpirer interface {
	ExpireReservation(ctx context.Context, checkoutId, subSku string) (bool, error)
}

// ExpiryScheduler enqueues a delayed task firing just after a reservation's
// deadline. The reaper sweep stays authoritative; the task only shortens the
// time stock stays held.
type ExpiryScheduler struct {
	client TaskEnqueuer
	grace  time.Duration
}

func NewExpiryScheduler(client TaskEnqueuer) *ExpiryScheduler {
	return &ExpiryScheduler{client: client, grace: time.Second}
}

func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, res *domain.Reservation) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, err := json.Marshal(ExpireReservationPayload{
		ReservationId: res.Id,
		CheckoutId:    res.CheckoutId,
		SubSku:        res.SubSku,
	})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskExpireReservation, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(res.ExpiresAt.Add(s.grace)),
		asynq.Queue("default"),
		asynq.TaskID(fmt.Sprintf("expire:%d", res.Id)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// NewAsynqMux registers handlers for delayed tasks.
func NewAsynqMux(expirer ReservationExpirer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExpireReservation, newExpireReservationHandler(expirer))
	return mux
}

func newExpireReservationHandler(expirer ReservationExpirer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var p ExpireReservationPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		expired, err := expirer.ExpireReservation(ctx, p.CheckoutId, p.SubSku)
		if err != nil {
			return err
		}
		if expired {
			logx.WithContext(ctx).Infow("reservation expired by task",
				logx.Field("reservation_id", p.ReservationId),
				logx.Field("checkout_id", p.CheckoutId),
				logx.Field("sub_sku", p.SubSku),
			)
		}
		return nil
	}
}
