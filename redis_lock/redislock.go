package redis_lock

import (
	"TCCTransaction/log"
	"TCCTransaction/third_party"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LockKeyPrefix 所有锁key的统一前缀
const LockKeyPrefix = "tcc_lock:"

var (
	ErrLockInUse   = errors.New("lock already acquired by other")
	ErrLockNotHeld = errors.New("lock not held by current owner")
	ErrNil         = third_party.ErrNil
)

// RedisLock 基于SET NX EX的分布式锁，未设置过期时间时由看门狗续期
type RedisLock struct {
	key    string
	client third_party.LockClient

	LockOptions

	mux sync.Mutex
	dog *watchDog
}

type watchDog struct {
	stop context.CancelFunc
	done chan struct{}
}

func NewRedisLock(key string, client third_party.LockClient, opts ...LockOption) *RedisLock {
	r := &RedisLock{
		key:    LockKeyPrefix + key,
		client: client,
	}
	for _, opt := range opts {
		opt(&r.LockOptions)
	}
	repairLockOpt(&r.LockOptions)
	return r
}

// Key 锁在redis中的完整key
func (r *RedisLock) Key() string {
	return r.key
}

// Token 锁持有者标识
func (r *RedisLock) Token() string {
	return r.token
}

func (r *RedisLock) Lock(ctx context.Context) error {
	err := r.tryLock(ctx)
	if err != nil && r.isBlock && IsRetryableErr(err) {
		//抢锁失败时轮询等待
		err = r.blockingLock(ctx)
	}
	if err != nil {
		return err
	}
	r.startWatchDog(ctx)
	return nil
}

func (r *RedisLock) tryLock(ctx context.Context) error {
	reply, err := r.client.SetNXWithEX(ctx, r.key, r.token, r.expireSeconds)
	if err != nil {
		return err
	}
	if reply != 1 {
		return fmt.Errorf("key: %s, reply: %d: %w", r.key, reply, ErrLockInUse)
	}
	return nil
}

func (r *RedisLock) blockingLock(ctx context.Context) error {
	timer := time.NewTimer(time.Duration(r.blockWaitingSeconds) * time.Second)
	defer timer.Stop()
	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w", r.key, ctx.Err())
		case <-timer.C:
			return fmt.Errorf("block wait timeout, key: %s: %w", r.key, ErrLockInUse)
		case <-ticker.C:
			err := r.tryLock(ctx)
			if err == nil || !IsRetryableErr(err) {
				return err
			}
		}
	}
}

func (r *RedisLock) startWatchDog(ctx context.Context) {
	if !r.watchDogMode {
		return
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	if r.dog != nil {
		return
	}
	dogCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	dog := &watchDog{stop: stop, done: make(chan struct{})}
	r.dog = dog

	go func() {
		defer close(dog.done)
		ticker := time.NewTicker(WatchDogWorkStepSeconds * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-dogCtx.Done():
				return
			case <-ticker.C:
				//续期时额外多给5s，避免网络抖动导致锁提前过期
				if err := r.DelayExpire(dogCtx, WatchDogWorkStepSeconds+5); err != nil {
					log.Warnf("redis_lock: renew key: %s, err: %v", r.key, err)
				}
			}
		}
	}()
}

// stopWatchDog 停止看门狗并等待其退出
func (r *RedisLock) stopWatchDog() {
	r.mux.Lock()
	dog := r.dog
	r.dog = nil
	r.mux.Unlock()

	if dog != nil {
		dog.stop()
		<-dog.done
	}
}

// DelayExpire 仅在仍持有锁时刷新过期时间
func (r *RedisLock) DelayExpire(ctx context.Context, expireSeconds int64) error {
	reply, err := r.client.Eval(ctx, third_party.LuaCheckAndExpireDistributionLock, 1,
		[]interface{}{r.key, r.token, expireSeconds})
	if err != nil {
		return fmt.Errorf("delay expire key: %s, expire: %d: %w", r.key, expireSeconds, err)
	}
	if ret, _ := reply.(int64); ret != 1 {
		return fmt.Errorf("delay expire key: %s: %w", r.key, ErrLockNotHeld)
	}
	return nil
}

func (r *RedisLock) Unlock(ctx context.Context) error {
	r.stopWatchDog()

	reply, err := r.client.Eval(ctx, third_party.LuaCheckAndDeleteDistributionLock, 1,
		[]interface{}{r.key, r.token})
	if err != nil {
		return fmt.Errorf("unlock key: %s: %w", r.key, err)
	}
	if ret, _ := reply.(int64); ret != 1 {
		return fmt.Errorf("unlock key: %s: %w", r.key, ErrLockNotHeld)
	}
	return nil
}

// IsRetryableErr 锁被其他持有者占用
func IsRetryableErr(err error) bool {
	return errors.Is(err, ErrLockInUse)
}

func newToken() string {
	return uuid.NewString()
}
