package svc

import (
	"time"

	"Holdfast/app/common/clock"
	"Holdfast/app/common/locker"
	"Holdfast/app/common/snowflake"
	invdal "Holdfast/app/dal/inventory"
	"Holdfast/app/services/inventory/internal/config"
	"Holdfast/app/services/inventory/internal/coordinator"
	"Holdfast/app/services/inventory/internal/domain"
	"Holdfast/app/services/inventory/internal/ledger"
	"Holdfast/app/services/inventory/internal/mq"
	"Holdfast/app/services/inventory/internal/orchestrator"
	"Holdfast/app/services/inventory/internal/reaper"
	"Holdfast/app/services/inventory/internal/registry"
	"Holdfast/app/services/inventory/internal/store"

	"github.com/hibiken/asynq"
	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

type ServiceContext struct {
	Config config.Config

	Ledger       *ledger.Ledger
	Registry     *registry.Registry
	Coordinator  *coordinator.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Reaper       *reaper.Reaper

	Redis       *redis.Redis
	AsynqClient *asynq.Client
	KafkaWriter *kafka.Writer
}

type stores struct {
	stock        domain.StockStore
	reservations domain.ReservationStore
	checkouts    domain.CheckoutStore
	hints        registry.HintIndex
	locker       locker.Locker
	leader       locker.Locker
}

func NewServiceContext(c config.Config) *ServiceContext {
	logx.MustSetup(c.LogConf)
	if c.SnowflakeNode > 0 {
		if err := snowflake.SetNodeID(c.SnowflakeNode); err != nil {
			logx.Must(err)
		}
	}

	sc := &ServiceContext{Config: c}
	var st stores
	switch c.Store.Mode {
	case config.StoreMemory:
		st = stores{
			stock:        store.NewMemoryStockStore(),
			reservations: store.NewMemoryReservationStore(),
			checkouts:    store.NewMemoryCheckoutStore(),
			locker:       locker.NewMemoryLocker(),
		}
	default:
		conn := sqlx.MustNewConn(c.MysqlConf)
		sc.Redis = redis.MustNewRedis(c.RedisConf)
		redisLocker := locker.NewRedisLocker(sc.Redis, "holdfast:lock:")
		st = stores{
			stock:        store.NewMysqlStockStore(invdal.NewInventoryModel(conn)),
			reservations: store.NewMysqlReservationStore(invdal.NewReservationModel(conn)),
			checkouts:    store.NewMysqlCheckoutStore(invdal.NewCheckoutModel(conn, c.CacheConf)),
			hints:        invdal.NewHoldIndexModel(sc.Redis),
			locker:       redisLocker,
			leader:       redisLocker,
		}

		addr := c.AsynqConf.Addr
		if addr == "" {
			addr = c.RedisConf.Host
		}
		sc.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: addr})
	}

	clk := clock.NewSystem()
	sc.Ledger = ledger.New(st.stock,
		ledger.WithClock(clk),
		ledger.WithMaxAttempts(c.Ledger.MaxAttempts),
		ledger.WithBackoff(time.Duration(c.Ledger.BackoffMillis)*time.Millisecond),
	)

	regOpts := []registry.Option{
		registry.WithClock(clk),
		registry.WithDefaultTTL(seconds(c.Reservation.DefaultTTLSeconds)),
		registry.WithMaxTTL(seconds(c.Reservation.MaxTTLSeconds)),
	}
	if st.hints != nil {
		regOpts = append(regOpts, registry.WithHintIndex(st.hints))
	}
	sc.Registry = registry.New(st.reservations, regOpts...)

	coordOpts := []coordinator.Option{
		coordinator.WithCompensationTimeout(seconds(c.CompensationTimeoutSeconds)),
	}
	reaperOpts := []reaper.Option{
		reaper.WithInterval(seconds(c.Reaper.IntervalSeconds)),
		reaper.WithBatchSize(c.Reaper.BatchSize),
	}
	sc.KafkaWriter = mq.NewKafkaWriter(c.KafkaConf.Broker, c.KafkaConf.EventTopic)
	if sc.KafkaWriter != nil {
		publisher := mq.NewEventPublisher(sc.KafkaWriter)
		coordOpts = append(coordOpts, coordinator.WithEventPublisher(publisher))
		reaperOpts = append(reaperOpts, reaper.WithEventPublisher(publisher))
	}
	if sc.AsynqClient != nil {
		coordOpts = append(coordOpts, coordinator.WithExpiryScheduler(mq.NewExpiryScheduler(sc.AsynqClient)))
	}
	sc.Coordinator = coordinator.New(sc.Ledger, sc.Registry, coordOpts...)

	sc.Orchestrator = orchestrator.New(st.checkouts, sc.Coordinator, sc.Registry,
		orchestrator.WithLocker(st.locker),
	)

	reaperOpts = append(reaperOpts, reaper.WithCheckouts(sc.Orchestrator))
	if st.leader != nil {
		reaperOpts = append(reaperOpts, reaper.WithLeaderLock(st.leader, seconds(c.Reaper.LockSeconds)))
	}
	sc.Reaper = reaper.New(sc.Ledger, sc.Registry, reaperOpts...)

	return sc
}

// Close releases the clients owned by the context.
func (sc *ServiceContext) Close() {
	if sc.KafkaWriter != nil {
		if err := sc.KafkaWriter.Close(); err != nil {
			logx.Errorw("close kafka writer", logx.Field("err", err.Error()))
		}
	}
	if sc.AsynqClient != nil {
		if err := sc.AsynqClient.Close(); err != nil {
			logx.Errorw("close asynq client", logx.Field("err", err.Error()))
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
