package pkg

import "fmt"

//该文件记录事务状态、事务角色、传播属性等全局枚举

// TransactionStatus 以整数编码持久化与传输，保持线上兼容
type TransactionStatus int

const (
	TRYING     TransactionStatus = 1
	CONFIRMING TransactionStatus = 2
	CANCELLING TransactionStatus = 3
)

func (s TransactionStatus) String() string {
	switch s {
	case TRYING:
		return "TRYING"
	case CONFIRMING:
		return "CONFIRMING"
	case CANCELLING:
		return "CANCELLING"
	default:
		return fmt.Sprintf("TransactionStatus(%d)", int(s))
	}
}

func (s TransactionStatus) Valid() bool {
	return s == TRYING || s == CONFIRMING || s == CANCELLING
}

// TransactionStatusOf 将状态码还原为状态
func TransactionStatusOf(code int) (TransactionStatus, error) {
	s := TransactionStatus(code)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: invalid transaction status code %d", ErrSystem, code)
	}
	return s, nil
}

// TransactionRole ROOT为全局事务发起方，PROVIDER为代表上游加入的参与方
type TransactionRole int

const (
	ROOT     TransactionRole = 1
	PROVIDER TransactionRole = 2
)

func (r TransactionRole) String() string {
	switch r {
	case ROOT:
		return "ROOT"
	case PROVIDER:
		return "PROVIDER"
	default:
		return fmt.Sprintf("TransactionRole(%d)", int(r))
	}
}

func TransactionRoleOf(code int) (TransactionRole, error) {
	r := TransactionRole(code)
	if r != ROOT && r != PROVIDER {
		return 0, fmt.Errorf("%w: invalid transaction role code %d", ErrSystem, code)
	}
	return r, nil
}

// Propagation 上下游调用时下游对全局事务的态度，零值为REQUIRED
type Propagation int

const (
	REQUIRED Propagation = iota
	SUPPORTS
	MANDATORY
)

func (p Propagation) String() string {
	switch p {
	case REQUIRED:
		return "REQUIRED"
	case SUPPORTS:
		return "SUPPORTS"
	case MANDATORY:
		return "MANDATORY"
	default:
		return fmt.Sprintf("Propagation(%d)", int(p))
	}
}

// MethodRole 拦截器对一次可补偿调用的分类结果
type MethodRole int

const (
	MethodNormal MethodRole = iota
	MethodRoot
	MethodProvider
)

func (m MethodRole) String() string {
	switch m {
	case MethodRoot:
		return "ROOT"
	case MethodProvider:
		return "PROVIDER"
	default:
		return "NORMAL"
	}
}
