package config

import (
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/zero-contrib/zrpc/registry/consul"
)

const (
	StoreMysql  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	rest.RestConf

	Consul consul.Conf `json:",optional"`

	MysqlConf sqlx.SqlConf    `json:",optional"`
	CacheConf cache.CacheConf `json:",optional"`
	RedisConf redis.RedisConf `json:",optional"`

	AsynqConf       AsynqRedisConf  `json:",optional"`
	AsynqServerConf AsynqServerConf `json:",optional"`

	KafkaConf KafkaConf `json:",optional"`

	LogConf logx.LogConf

	Store       StoreConf
	Reservation ReservationConf
	Ledger      LedgerConf
	Reaper      ReaperConf

	// Upper bound for undo work after a caller's deadline has passed
	CompensationTimeoutSeconds int   `json:",default=5"`
	SnowflakeNode              int64 `json:",optional"`
}

type StoreConf struct {
	// mysql keeps state in MySQL and Redis; memory keeps it in process
	Mode string `json:",default=mysql,options=mysql|memory"`
}

type ReservationConf struct {
	DefaultTTLSeconds int `json:",default=900"`
	MaxTTLSeconds     int `json:",default=86400"`
}

type LedgerConf struct {
	MaxAttempts   int `json:",default=5"`
	BackoffMillis int `json:",default=5"`
}

type ReaperConf struct {
	IntervalSeconds int `json:",default=30"`
	BatchSize       int `json:",default=100"`
	// Leader lock lifetime; 0 means one interval
	LockSeconds int `json:",optional"`
}

// Minimal redis client config for Asynq
type AsynqRedisConf struct {
	Addr string `json:",optional"`
}

type AsynqServerConf struct {
	Concurrency int            `json:",default=10"`
	Queues      map[string]int `json:",optional"`
}

type KafkaConf struct {
	Broker      []string `json:",optional"`
	Group       string   `json:",optional"`
	EventTopic  string   `json:",optional"`
	AdjustTopic string   `json:",optional"`
}
