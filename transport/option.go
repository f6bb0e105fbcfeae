package transport

import (
	"time"
)

const (
	// InvokePath 参与方暴露的调用入口
	InvokePath = "/tcc/invoke"

	DefaultTimeout      = 10 * time.Second
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
)

type ClientOptions struct {
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

type ClientOption func(c *ClientOptions)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientOptions) {
		c.timeout = timeout
	}
}

// WithRetry retryMax为0时不重试
func WithRetry(retryMax int, waitMin, waitMax time.Duration) ClientOption {
	return func(c *ClientOptions) {
		c.retryMax = retryMax
		c.retryWaitMin = waitMin
		c.retryWaitMax = waitMax
	}
}

func repairClientOpt(c *ClientOptions) {
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryMax < 0 {
		c.retryMax = DefaultRetryMax
	}
	if c.retryWaitMin <= 0 {
		c.retryWaitMin = DefaultRetryWaitMin
	}
	if c.retryWaitMax < c.retryWaitMin {
		c.retryWaitMax = DefaultRetryWaitMax
	}
}
