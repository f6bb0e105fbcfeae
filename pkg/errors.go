package pkg

import "errors"

var (
	// ErrSystem 不变式被破坏、传播属性非法、连接点找不到可补偿方法
	ErrSystem = errors.New("tcc: system error")
	// ErrNoExistedTransaction 按xid找不到事务记录
	ErrNoExistedTransaction = errors.New("tcc: no existed transaction")
	// ErrOptimisticLock 乐观锁版本不一致
	ErrOptimisticLock = errors.New("tcc: optimistic lock conflict")
	// ErrParticipantInvocation 调用参与者的confirm/cancel失败，由恢复任务按原方向重试
	ErrParticipantInvocation = errors.New("tcc: participant invocation failed")
	// ErrTransactionExisted 重复创建同一xid的事务
	ErrTransactionExisted = errors.New("tcc: transaction already existed")
)

func IsNoExistedTransaction(err error) bool {
	return errors.Is(err, ErrNoExistedTransaction)
}

func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}
