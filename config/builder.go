package config

import (
	TCC "TCCTransaction"
	"TCCTransaction/internel"
	"TCCTransaction/model"
	"TCCTransaction/recovery"
	"TCCTransaction/third_party"
	"TCCTransaction/transport"
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Resources 由配置创建出的存储相关资源，使用完毕后调用Close
type Resources struct {
	Repository model.TransactionRepository
	//仅在type为redis或开启了recovery.redis_lock时不为空
	RedisClient *third_party.RedisClient
	//仅在type为mysql时不为空
	DB *gorm.DB
}

func (r *Resources) Close() error {
	if r.RedisClient != nil {
		if err := r.RedisClient.Close(); err != nil {
			return err
		}
	}
	if r.DB != nil {
		sqlDB, err := r.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (c *Config) redisClient() *third_party.RedisClient {
	rc := c.Repository.Redis
	return third_party.NewClient(rc.Network, rc.Address, rc.Password,
		third_party.WithDatabase(rc.Database),
		third_party.WithMaxIdle(rc.MaxIdle),
		third_party.WithMaxConnection(rc.MaxConnection),
		third_party.WithIdleTimeoutSeconds(rc.IdleTimeoutSeconds),
		third_party.WithDialTimeout(rc.DialTimeout),
		third_party.WithReadWriteTimeout(rc.ReadTimeout, rc.WriteTimeout),
		third_party.WithWaitMode(),
	)
}

// OpenResources 按repository.type打开事务存储，redis会先PING确认可用
func (c *Config) OpenResources(ctx context.Context) (*Resources, error) {
	res := &Resources{}
	if c.Repository.Type == RepositoryRedis || c.Recovery.RedisLock {
		res.RedisClient = c.redisClient()
		if err := res.RedisClient.Ping(ctx); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("connect redis %s: %w", c.Repository.Redis.Address, err)
		}
	}

	switch c.Repository.Type {
	case RepositoryMemory:
		res.Repository = internel.NewMemoryTXStore()
	case RepositoryRedis:
		res.Repository = internel.NewRedisTXStore(res.RedisClient, c.Repository.Redis.Prefix)
	case RepositoryMySQL:
		db, err := gorm.Open(mysql.Open(c.Repository.DSN), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		res.DB = db
		res.Repository = internel.NewGormTXStore(db)
	default:
		_ = res.Close()
		return nil, fmt.Errorf("config: unknown repository type %q", c.Repository.Type)
	}
	return res, nil
}

func (c *Config) ManagerOptions() []TCC.Option {
	var opts []TCC.Option
	if c.Async.Workers > 0 {
		opts = append(opts, TCC.WithAsyncWorkers(c.Async.Workers))
	}
	return opts
}

// RecoveryOptions client为nil时不启用分布式锁
func (c *Config) RecoveryOptions(client *third_party.RedisClient) []recovery.Option {
	opts := []recovery.Option{
		recovery.WithMonitorTick(c.Recovery.MonitorTick),
		recovery.WithRecoverDuration(c.Recovery.RecoverDuration),
		recovery.WithMaxRetryCount(c.Recovery.MaxRetryCount),
		recovery.WithConcurrency(c.Recovery.Concurrency),
	}
	if c.Recovery.RedisLock && client != nil {
		opts = append(opts, recovery.WithRedisLock(client, c.Repository.Redis.Prefix))
	}
	return opts
}

func (c *Config) TransportOptions() []transport.ClientOption {
	return []transport.ClientOption{
		transport.WithTimeout(c.Transport.Timeout),
		transport.WithRetry(c.Transport.RetryMax, transport.DefaultRetryWaitMin, transport.DefaultRetryWaitMax),
	}
}

// NewRecovery recovery.enabled为false时返回nil
func (c *Config) NewRecovery(res *Resources, driver recovery.Driver) *recovery.Recovery {
	if !c.Recovery.Enabled {
		return nil
	}
	return recovery.New(res.Repository, driver, c.RecoveryOptions(res.RedisClient)...)
}
