package third_party

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
)

var ErrNil = redis.ErrNil

// LockClient 分布式锁依赖的最小命令集
type LockClient interface {
	SetNXWithEX(ctx context.Context, key, value string, expiration int64) (int64, error)
	Eval(ctx context.Context, src string, keyCount int, keyAndArgs []interface{}) (interface{}, error)
}

type RedisClient struct {
	ClientOptions
	pool *redis.Pool

	//lua脚本按源码缓存，优先走EVALSHA
	scripts sync.Map
}

type scriptKey struct {
	src      string
	keyCount int
}

func NewClient(network, address, password string, opts ...ClientOption) *RedisClient {
	client := &RedisClient{
		ClientOptions: ClientOptions{
			network:  network,
			address:  address,
			password: password,
		},
	}

	for _, opt := range opts {
		opt(&client.ClientOptions)
	}

	repairClientOpt(&client.ClientOptions)

	client.pool = client.getRedisPool()
	return client
}

func (c *RedisClient) getRedisPool() *redis.Pool {
	return &redis.Pool{
		MaxIdle:     c.maxIdle,
		IdleTimeout: time.Duration(c.idleTimeoutSeconds) * time.Second,
		DialContext: c.dial,
		MaxActive:   c.maxConnection,
		Wait:        c.wait,
		TestOnBorrow: func(conn redis.Conn, lastUsed time.Time) error {
			//一分钟内用过的连接不再探活
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := conn.Do("PING")
			return err
		},
	}
}

func (c *RedisClient) dial(ctx context.Context) (redis.Conn, error) {
	if c.address == "" {
		return nil, errors.New("redis address is empty")
	}

	dialOpts := []redis.DialOption{
		redis.DialConnectTimeout(c.dialTimeout),
		redis.DialReadTimeout(c.readTimeout),
		redis.DialWriteTimeout(c.writeTimeout),
	}
	if c.password != "" {
		dialOpts = append(dialOpts, redis.DialPassword(c.password))
	}
	if c.database > 0 {
		dialOpts = append(dialOpts, redis.DialDatabase(c.database))
	}
	return redis.DialContext(ctx, c.network, c.address, dialOpts...)
}

func (c *RedisClient) Close() error {
	return c.pool.Close()
}

// do 从连接池取连接执行一条命令
func (c *RedisClient) do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return redis.DoContext(conn, ctx, cmd, args...)
}

// setReply SET系列命令成功返回1，NX未写入返回0
func setReply(reply interface{}, err error) (int64, error) {
	if err != nil {
		return -1, err
	}
	switch r := reply.(type) {
	case nil:
		return 0, nil
	case string:
		if strings.EqualFold(r, "ok") {
			return 1, nil
		}
	}
	return redis.Int64(reply, err)
}

func (c *RedisClient) Ping(ctx context.Context) error {
	reply, err := redis.String(c.do(ctx, "PING"))
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("PING: unexpected reply %q", reply)
	}
	return nil
}

// Get key不存在时返回 ErrNil
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("GET: redis key can't be empty")
	}
	return redis.String(c.do(ctx, "GET", key))
}

func (c *RedisClient) Set(ctx context.Context, key string, value string) (int64, error) {
	if key == "" || value == "" {
		return -1, errors.New("SET: redis key or value can't be empty")
	}
	return setReply(c.do(ctx, "SET", key, value))
}

func (c *RedisClient) SetNXWithEX(ctx context.Context, key, value string, expirationSeconds int64) (int64, error) {
	if key == "" || value == "" {
		return -1, errors.New("SETNXWithEX: redis key or value can't be empty")
	}
	return setReply(c.do(ctx, "SET", key, value, "EX", expirationSeconds, "NX"))
}

func (c *RedisClient) SetNX(ctx context.Context, key, value string) (int64, error) {
	if key == "" || value == "" {
		return -1, errors.New("SETNX: redis key or value can't be empty")
	}
	return setReply(c.do(ctx, "SET", key, value, "NX"))
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("DEL: redis key can't be empty")
	}
	_, err := c.do(ctx, "DEL", redis.Args{}.AddFlat(keys)...)
	return err
}

// HGetAll key不存在时返回空map
func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if key == "" {
		return nil, errors.New("HGETALL: redis key can't be empty")
	}
	return redis.StringMap(c.do(ctx, "HGETALL", key))
}

func (c *RedisClient) ZRangeByScore(ctx context.Context, key string, min, max string) ([]string, error) {
	if key == "" {
		return nil, errors.New("ZRANGEBYSCORE: redis key can't be empty")
	}
	return redis.Strings(c.do(ctx, "ZRANGEBYSCORE", key, min, max))
}

func (c *RedisClient) ZRem(ctx context.Context, key string, member string) error {
	if key == "" {
		return errors.New("ZREM: redis key can't be empty")
	}
	_, err := c.do(ctx, "ZREM", key, member)
	return err
}

// Eval 先以EVALSHA执行，服务端没有缓存时退回EVAL
func (c *RedisClient) Eval(ctx context.Context, src string, keyCount int, keyAndArgs []interface{}) (interface{}, error) {
	key := scriptKey{src: src, keyCount: keyCount}
	script, ok := c.scripts.Load(key)
	if !ok {
		script, _ = c.scripts.LoadOrStore(key, redis.NewScript(keyCount, src))
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return script.(*redis.Script).Do(conn, keyAndArgs...)
}
