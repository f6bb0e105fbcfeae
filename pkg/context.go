package pkg

// TransactionContext 在服务之间传递的事务句柄
type TransactionContext struct {
	Xid    TransactionXid    `json:"xid"`
	Status TransactionStatus `json:"status"`
}

func NewTransactionContext(xid TransactionXid, status TransactionStatus) *TransactionContext {
	return &TransactionContext{Xid: xid, Status: status}
}
