package model

import (
	"TCCTransaction/pkg"
	"context"
	"time"
)

// TransactionRepository 事务日志存储，是多个执行之间唯一共享的可变资源
type TransactionRepository interface {
	// Create 插入事务，xid重复时返回 pkg.ErrTransactionExisted
	Create(ctx context.Context, tx *pkg.Transaction) error
	// Update 按版本号乐观更新，版本不一致返回 pkg.ErrOptimisticLock；成功后tx.Version递增
	Update(ctx context.Context, tx *pkg.Transaction) error
	// Delete 按xid删除
	Delete(ctx context.Context, tx *pkg.Transaction) error
	// FindByXid 不存在时返回 nil, nil
	FindByXid(ctx context.Context, xid pkg.TransactionXid) (*pkg.Transaction, error)
	// FindAllUnmodifiedSince 获取最后更新时间早于t的事务，供恢复任务使用
	FindAllUnmodifiedSince(ctx context.Context, t time.Time) ([]*pkg.Transaction, error)
}

// RetryResetter 运维接口，清零重试次数
type RetryResetter interface {
	ResetRetriedCount(ctx context.Context, xid pkg.TransactionXid) error
}
