package mq

import (
	"context"
	"encoding/json"
	"time"

	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/core/logx"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Adjuster interface {
	Adjust(ctx context.Context, adjustments []domain.Adjustment, policy coordinator.Policy) (*domain.BulkOperationResponse, error)
}

func NewKafkaReader(brokers []string, group, topic string) *kafka.Reader {
	if len(brokers) == 0 || group == "" || topic == "" {
		return nil
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		StartOffset: kafka.FirstOffset,
	})
}

const defaultRetryInterval = 200 * time.Millisecond

type ConsumeOption func(*consumeOptions)

type consumeOptions struct {
	retryInterval time.Duration
}

// WithRetryInterval sets the first wait before an adjustment that failed on
// infrastructure is applied again.
func WithRetryInterval(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

// ConsumeAdjustments applies stock adjustments from r until ctx is cancelled.
// Malformed messages are logged and committed. A message whose apply failed on
// infrastructure is retried in place and nothing after it is read, since a
// later commit would move the group offset past it.
func ConsumeAdjustments(ctx context.Context, r MessageReader, adj Adjuster, opts ...ConsumeOption) error {
	defer r.Close()

	o := consumeOptions{retryInterval: defaultRetryInterval}
	for _, opt := range opts {
		opt(&o)
	}

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logx.Errorw("mq: fetch adjustment failed", logx.Field("err", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := applyAdjustment(ctx, adj, m, o.retryInterval); err != nil {
			// only cancellation ends the retries; the group redelivers m
			return nil
		}
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logx.Errorw("mq: commit adjustment failed", logx.Field("err", err.Error()))
		}
	}
}

func applyAdjustment(ctx context.Context, adj Adjuster, m kafka.Message, interval time.Duration) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = interval
	eb.MaxInterval = 50 * interval
	eb.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return handleAdjustment(ctx, adj, m)
	}, backoff.WithContext(eb, ctx), func(err error, wait time.Duration) {
		logx.WithContext(ctx).Errorw("mq: apply adjustment failed, retrying",
			logx.Field("offset", m.Offset),
			logx.Field("partition", m.Partition),
			logx.Field("wait", wait.String()),
			logx.Field("err", err.Error()),
		)
	})
}

func handleAdjustment(ctx context.Context, adj Adjuster, m kafka.Message) error {
	var msg AdjustStockMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		logx.WithContext(ctx).Errorw("mq: drop malformed adjustment",
			logx.Field("offset", m.Offset),
			logx.Field("err", err.Error()),
		)
		return nil
	}
	policy, err := coordinator.ParsePolicy(msg.Policy, coordinator.BestEffort)
	if err != nil {
		logx.WithContext(ctx).Errorw("mq: drop adjustment with unknown policy",
			logx.Field("offset", m.Offset),
			logx.Field("policy", msg.Policy),
		)
		return nil
	}
	resp, err := adj.Adjust(ctx, msg.Adjustments, policy)
	if err != nil {
		return err
	}
	logx.WithContext(ctx).Infow("stock adjustment applied",
		logx.Field("source", msg.Source),
		logx.Field("success", resp.SuccessCount),
		logx.Field("failure", resp.FailureCount),
	)
	return nil
}
