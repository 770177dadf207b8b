package bootstrap

import (
	"context"

	"Holdfast/app/services/inventory/internal/mq"
	"Holdfast/app/services/inventory/internal/svc"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

// StartKafka consumes stock adjustments; returns nil when the topic is not configured.
func StartKafka(sc *svc.ServiceContext) func() {
	kc := sc.Config.KafkaConf
	r := mq.NewKafkaReader(kc.Broker, kc.Group, kc.AdjustTopic)
	if r == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	threading.GoSafe(func() {
		defer close(done)
		// the consumer closes the reader on return
		if err := mq.ConsumeAdjustments(ctx, r, sc.Coordinator); err != nil {
			logx.Errorw("adjustment consumer stopped", logx.Field("err", err.Error()))
		}
	})

	return func() {
		cancel()
		<-done
	}
}
