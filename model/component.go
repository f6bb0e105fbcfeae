package model

import "TCCTransaction/pkg"

//可补偿方法的标记

const (
	DefaultEditor = "default"
	NullEditor    = "null"
)

// Compensable 标记一个try方法，注册时与方法名绑定
type Compensable struct {
	Propagation pkg.Propagation
	//同一目标上的confirm/cancel方法名，参数类型必须与try一致
	ConfirmMethod string
	CancelMethod  string
	AsyncConfirm  bool
	AsyncCancel   bool
	//编辑器ID，空值即DefaultEditor
	TransactionContextEditor string
}

func (c Compensable) EditorID() string {
	if c.TransactionContextEditor == "" {
		return DefaultEditor
	}
	return c.TransactionContextEditor
}
