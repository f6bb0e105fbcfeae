package TCC

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

const (
	// 默认异步confirm/cancel并发数
	DefaultAsyncWorkers = 16
)

type Options struct {
	//try返回这些错误(errors.Is)时不立即cancel，交给恢复任务
	DelayCancelErrors []error
	//用于按错误类型匹配
	DelayCancelMatchers []func(err error) bool
	AsyncWorkers        int64
	MeterProvider       metric.MeterProvider
}

type Option func(opts *Options)

func WithDelayCancelErrors(errs ...error) Option {
	return func(opts *Options) {
		opts.DelayCancelErrors = append(opts.DelayCancelErrors, errs...)
	}
}

// WithDelayCancelMatcher 例如 func(err error) bool { var e *net.OpError; return errors.As(err, &e) }
func WithDelayCancelMatcher(matcher func(err error) bool) Option {
	return func(opts *Options) {
		if matcher != nil {
			opts.DelayCancelMatchers = append(opts.DelayCancelMatchers, matcher)
		}
	}
}

func WithAsyncWorkers(workers int64) Option {
	return func(opts *Options) {
		opts.AsyncWorkers = workers
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opts *Options) {
		opts.MeterProvider = mp
	}
}

// 检查option参数是否合法
func checkOpt(opts *Options) {
	if opts.AsyncWorkers <= 0 {
		opts.AsyncWorkers = DefaultAsyncWorkers
	}
}

func (o *Options) isDelayCancel(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range o.DelayCancelErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	for _, match := range o.DelayCancelMatchers {
		if match(err) {
			return true
		}
	}
	return false
}
