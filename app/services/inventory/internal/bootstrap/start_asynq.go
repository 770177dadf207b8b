package bootstrap

import (
	"github.com/hibiken/asynq"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"Holdfast/app/services/inventory/internal/mq"
	"Holdfast/app/services/inventory/internal/svc"
)

// StartAsynq runs the expiry task worker; returns nil when no Redis is configured.
func StartAsynq(sc *svc.ServiceContext) func() {
	if sc.AsynqClient == nil {
		return nil
	}
	addr := sc.Config.AsynqConf.Addr
	if addr == "" {
		addr = sc.Config.RedisConf.Host
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: addr}, asynq.Config{
		Concurrency: sc.Config.AsynqServerConf.Concurrency,
		Queues:      sc.Config.AsynqServerConf.Queues,
	})
	mux := mq.NewAsynqMux(sc.Reaper)
	threading.GoSafe(func() {
		if err := srv.Run(mux); err != nil {
			logx.Must(err)
		}
	})
	return func() {
		srv.Shutdown()
	}
}
