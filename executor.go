package TCC

import (
	"TCCTransaction/log"
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var errExecutorClosed = errors.New("tcc: async executor closed")

// 异步confirm/cancel执行器，以信号量限制并发
type executor struct {
	sem *semaphore.Weighted

	mux    sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newExecutor(workers int64) *executor {
	return &executor{sem: semaphore.NewWeighted(workers)}
}

// submit 不阻塞调用方，任务使用脱离调用方取消信号的ctx
func (e *executor) submit(ctx context.Context, task func(ctx context.Context)) error {
	e.mux.RLock()
	defer e.mux.RUnlock()
	if e.closed {
		return errExecutorClosed
	}

	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			log.ErrorContextf(ctx, "tcc: acquire async worker err: %v", err)
			return
		}
		defer e.sem.Release(1)
		task(ctx)
	}()
	return nil
}

// close 拒绝新任务并等待已提交的任务结束
func (e *executor) close() {
	e.mux.Lock()
	e.closed = true
	e.mux.Unlock()
	e.wg.Wait()
}
