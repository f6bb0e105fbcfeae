package recovery

import (
	"TCCTransaction/pkg"
	"TCCTransaction/redis_lock"
	"TCCTransaction/third_party"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	// 默认轮询间隔
	DefaultMonitorTick = 10 * time.Second
	// 默认超过该时长未更新的事务才会被恢复
	DefaultRecoverDuration = 30 * time.Second
	// 默认最大重试次数
	DefaultMaxRetryCount = 30
	// 默认并发恢复的事务数
	DefaultConcurrency = 8
)

type Options struct {
	MonitorTick     time.Duration
	RecoverDuration time.Duration
	MaxRetryCount   int
	Concurrency     int
	Locker          Locker
	MeterProvider   metric.MeterProvider
}

type Option func(opts *Options)

func WithMonitorTick(tick time.Duration) Option {
	return func(opts *Options) {
		opts.MonitorTick = tick
	}
}

func WithRecoverDuration(d time.Duration) Option {
	return func(opts *Options) {
		opts.RecoverDuration = d
	}
}

func WithMaxRetryCount(n int) Option {
	return func(opts *Options) {
		opts.MaxRetryCount = n
	}
}

func WithConcurrency(n int) Option {
	return func(opts *Options) {
		opts.Concurrency = n
	}
}

func WithLocker(locker Locker) Option {
	return func(opts *Options) {
		opts.Locker = locker
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opts *Options) {
		opts.MeterProvider = mp
	}
}

// WithRedisLock 多个节点通过redis分布式锁选出一个执行恢复
func WithRedisLock(client *third_party.RedisClient, prefix string) Option {
	return func(opts *Options) {
		opts.Locker = redis_lock.NewRedisLock(pkg.BuildRecoveryLockKey(prefix), client)
	}
}

// 检查option参数是否合法
func checkOpt(opts *Options) {
	if opts.MonitorTick <= 0 {
		opts.MonitorTick = DefaultMonitorTick
	}
	if opts.RecoverDuration <= 0 {
		opts.RecoverDuration = DefaultRecoverDuration
	}
	if opts.MaxRetryCount <= 0 {
		opts.MaxRetryCount = DefaultMaxRetryCount
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
}
