// Package recovery 定期扫描长时间未更新的事务记录，按已决定的方向重新推进
package recovery

import (
	"TCCTransaction/log"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Locker 保证同一时刻只有一个节点执行恢复，redis_lock.RedisLock满足该接口
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Driver 推进已决定方向的事务，由TransactionManager实现
type Driver interface {
	ConfirmTransaction(ctx context.Context, tx *pkg.Transaction) error
	CancelTransaction(ctx context.Context, tx *pkg.Transaction) error
}

type Recovery struct {
	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}

	opts    *Options
	repo    model.TransactionRepository
	driver  Driver
	metrics *recoveryMetrics
}

func New(repo model.TransactionRepository, driver Driver, opts ...Option) *Recovery {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Recovery{
		ctx:    ctx,
		stop:   cancel,
		done:   make(chan struct{}),
		opts:   &Options{},
		repo:   repo,
		driver: driver,
	}
	for _, opt := range opts {
		opt(r.opts)
	}

	checkOpt(r.opts)
	r.metrics = newMetrics(r.opts.MeterProvider)
	return r
}

// Start 启动后台轮询
func (r *Recovery) Start() {
	go func() {
		defer close(r.done)
		r.polling()
	}()
}

// Stop 停止轮询并等待当前一轮结束，只能在Start之后调用
func (r *Recovery) Stop() {
	r.stop()
	<-r.done
}

// 轮询: 失败时指数退避，保证各个事务的confirm/cancel最终能够执行
func (r *Recovery) polling() {
	var err error
	var tick time.Duration
	for {
		if err == nil {
			tick = r.opts.MonitorTick
		} else {
			tick = r.backOffTick(tick)
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(tick):
			err = r.StartRecover(r.ctx)
			if err != nil {
				log.WarnContextf(r.ctx, "recovery: round failed, next tick: %v, err: %v", r.backOffTick(tick), err)
			}
		}
	}
}

func (r *Recovery) backOffTick(tick time.Duration) time.Duration {
	maxTick := r.opts.MonitorTick << 3
	tick <<= 1
	if tick > maxTick {
		tick = maxTick
	}
	return tick
}

// StartRecover 执行一轮恢复
func (r *Recovery) StartRecover(ctx context.Context) error {
	if locker := r.opts.Locker; locker != nil {
		if err := locker.Lock(ctx); err != nil {
			//其他节点正在恢复
			log.DebugContextf(ctx, "recovery: lock not acquired: %v", err)
			return nil
		}
		defer func() {
			if err := locker.Unlock(ctx); err != nil {
				log.WarnContextf(ctx, "recovery: unlock err: %v", err)
			}
		}()
	}

	r.metrics.recordRound(ctx)
	txs, err := r.repo.FindAllUnmodifiedSince(ctx, pkg.Now().Add(-r.opts.RecoverDuration))
	if err != nil {
		return err
	}
	return r.recoverTransactions(ctx, txs)
}

// 对选中的所有事务进行二阶段推进，单个事务失败不影响其他事务
func (r *Recovery) recoverTransactions(ctx context.Context, txs []*pkg.Transaction) error {
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			return r.recoverTransaction(ctx, tx)
		})
	}
	return g.Wait()
}

func (r *Recovery) recoverTransaction(ctx context.Context, tx *pkg.Transaction) error {
	ctx = log.WithFields(ctx, "xid", tx.Xid.String(), "role", tx.Role.String(), "status", tx.Status().String())

	if tx.RetriedCount > r.opts.MaxRetryCount {
		log.ErrorContextf(ctx, "recovery: retried count %d exceeds max %d, need manual handling", tx.RetriedCount, r.opts.MaxRetryCount)
		r.metrics.recordOutcome(ctx, outcomeExhausted)
		return nil
	}
	//分支事务的方向由根事务决定，给根事务留出足够的重试时间
	if tx.Role == pkg.PROVIDER &&
		pkg.Now().Before(tx.CreateTime.Add(time.Duration(r.opts.MaxRetryCount)*r.opts.RecoverDuration)) {
		r.metrics.recordOutcome(ctx, outcomeSkipped)
		return nil
	}

	var err error
	outcome := outcomeConfirmed
	switch {
	case tx.Status() == pkg.CONFIRMING:
		err = r.redrive(ctx, tx, pkg.CONFIRMING, r.driver.ConfirmTransaction)
	case tx.Status() == pkg.CANCELLING || tx.Role == pkg.ROOT:
		outcome = outcomeCancelled
		err = r.redrive(ctx, tx, pkg.CANCELLING, r.driver.CancelTransaction)
	default:
		r.metrics.recordOutcome(ctx, outcomeSkipped)
		return nil
	}

	switch {
	case pkg.IsOptimisticLock(err):
		log.WarnContextf(ctx, "recovery: transaction changed by others: %v", err)
		r.metrics.recordOutcome(ctx, outcomeConflict)
		return nil
	case err != nil:
		log.ErrorContextf(ctx, "recovery: recover failed: %v", err)
		r.metrics.recordOutcome(ctx, outcomeFailed)
		return err
	}
	r.metrics.recordOutcome(ctx, outcome)
	return nil
}

func (r *Recovery) redrive(ctx context.Context, tx *pkg.Transaction, status pkg.TransactionStatus,
	drive func(ctx context.Context, tx *pkg.Transaction) error) error {
	if err := tx.ChangeStatus(status); err != nil {
		return err
	}
	tx.AddRetriedCount()
	if err := r.repo.Update(ctx, tx); err != nil {
		return err
	}
	return drive(ctx, tx)
}
