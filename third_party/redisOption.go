package third_party

import "time"

const (
	// 默认连接数超过10s后释放连接
	DefaultIdleTimeoutSeconds = 10
	// 默认最大连接数
	DefaultMaxConnection = 100
	// 默认最大空闲连接数
	DefaultMaxIdleConnection = 20
	// 默认建连超时
	DefaultDialTimeout = 3 * time.Second
)

type ClientOptions struct {
	//基本参数
	network  string
	address  string
	password string
	database int

	//连接池参数
	maxIdle            int
	idleTimeoutSeconds int
	maxConnection      int
	wait               bool

	//超时参数，读写超时为0时不限制
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type ClientOption func(c *ClientOptions)

func WithMaxIdle(maxIdle int) ClientOption {
	return func(c *ClientOptions) {
		c.maxIdle = maxIdle
	}
}

func WithIdleTimeoutSeconds(idleTimeoutSeconds int) ClientOption {
	return func(c *ClientOptions) {
		c.idleTimeoutSeconds = idleTimeoutSeconds
	}
}

func WithMaxConnection(maxConnection int) ClientOption {
	return func(c *ClientOptions) {
		c.maxConnection = maxConnection
	}
}

// WithWaitMode 连接池耗尽时等待而不是立即报错
func WithWaitMode() ClientOption {
	return func(c *ClientOptions) {
		c.wait = true
	}
}

func WithDatabase(db int) ClientOption {
	return func(c *ClientOptions) {
		c.database = db
	}
}

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientOptions) {
		c.dialTimeout = timeout
	}
}

func WithReadWriteTimeout(read, write time.Duration) ClientOption {
	return func(c *ClientOptions) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

func repairClientOpt(c *ClientOptions) {
	if c.network == "" {
		c.network = "tcp"
	}
	if c.maxIdle <= 0 {
		c.maxIdle = DefaultMaxIdleConnection
	}
	if c.maxConnection <= 0 {
		c.maxConnection = DefaultMaxConnection
	}
	if c.idleTimeoutSeconds <= 0 {
		c.idleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = DefaultDialTimeout
	}
	if c.database < 0 {
		c.database = 0
	}
}
