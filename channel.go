package TCC

import (
	"TCCTransaction/pkg"
	"context"
	"sync"
)

// 当前执行的事务栈，嵌套调用共享同一个栈，不同请求互不可见
type transactionChannel struct {
	mux   sync.Mutex
	stack []*pkg.Transaction
}

type channelKey struct{}

// WithTransactionChannel ctx中没有事务栈时挂载一个新的
func WithTransactionChannel(ctx context.Context) context.Context {
	if channelFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, channelKey{}, &transactionChannel{})
}

// 重放confirm/cancel时使用独立的事务栈
func withNewTransactionChannel(ctx context.Context) context.Context {
	return context.WithValue(ctx, channelKey{}, &transactionChannel{})
}

func channelFrom(ctx context.Context) *transactionChannel {
	c, _ := ctx.Value(channelKey{}).(*transactionChannel)
	return c
}

func (c *transactionChannel) push(tx *pkg.Transaction) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.stack = append(c.stack, tx)
}

func (c *transactionChannel) current() *pkg.Transaction {
	c.mux.Lock()
	defer c.mux.Unlock()
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// popIf 栈顶是tx时弹出
func (c *transactionChannel) popIf(tx *pkg.Transaction) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	n := len(c.stack)
	if n == 0 || c.stack[n-1] != tx {
		return false
	}
	c.stack[n-1] = nil
	c.stack = c.stack[:n-1]
	return true
}
