package redis_lock

import "time"

const (
	// 默认分布式锁过期时间
	DefaultLockExpireSeconds = 30

	// 看门狗续期间隔
	WatchDogWorkStepSeconds = 10

	// 默认阻塞等待时间
	DefaultBlockWaitingSeconds = 5

	// 阻塞模式下的抢锁间隔
	DefaultRetryInterval = 50 * time.Millisecond
)

type LockOptions struct {
	isBlock             bool
	blockWaitingSeconds int64
	retryInterval       time.Duration
	expireSeconds       int64
	watchDogMode        bool
	token               string
}

type LockOption func(c *LockOptions)

func WithBlock() LockOption {
	return func(c *LockOptions) {
		c.isBlock = true
	}
}

func WithBlockWaitingSeconds(blockWaitingSeconds int64) LockOption {
	return func(c *LockOptions) {
		c.blockWaitingSeconds = blockWaitingSeconds
	}
}

func WithRetryInterval(interval time.Duration) LockOption {
	return func(c *LockOptions) {
		c.retryInterval = interval
	}
}

// WithExpireSeconds 设置了过期时间则不启用看门狗
func WithExpireSeconds(expireSeconds int64) LockOption {
	return func(c *LockOptions) {
		c.expireSeconds = expireSeconds
	}
}

// WithToken 指定持有者标识，多个实例共享同一持有者时使用
func WithToken(token string) LockOption {
	return func(c *LockOptions) {
		c.token = token
	}
}

func repairLockOpt(c *LockOptions) {
	if c.token == "" {
		c.token = newToken()
	}
	if c.isBlock && c.blockWaitingSeconds <= 0 {
		c.blockWaitingSeconds = DefaultBlockWaitingSeconds
	}
	if c.retryInterval <= 0 {
		c.retryInterval = DefaultRetryInterval
	}

	if c.expireSeconds > 0 {
		return
	}
	c.expireSeconds = DefaultLockExpireSeconds
	c.watchDogMode = true
}
