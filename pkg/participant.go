package pkg

import (
	"encoding/json"
	"fmt"
)

// InvocationContext 重启后重新调用confirm/cancel所需的全部信息
type InvocationContext struct {
	// TargetClass 注册中心中的目标ID
	TargetClass    string            `json:"targetClass"`
	MethodName     string            `json:"methodName"`
	ParameterTypes []string          `json:"parameterTypes"`
	Arguments      []json.RawMessage `json:"arguments"`
}

func NewInvocationContext(targetClass, methodName string, parameterTypes []string, arguments []json.RawMessage) InvocationContext {
	types := make([]string, len(parameterTypes))
	copy(types, parameterTypes)
	args := make([]json.RawMessage, len(arguments))
	for i, arg := range arguments {
		args[i] = append(json.RawMessage(nil), arg...)
	}
	return InvocationContext{
		TargetClass:    targetClass,
		MethodName:     methodName,
		ParameterTypes: types,
		Arguments:      args,
	}
}

// Participant 一次成功try的补偿端点
type Participant struct {
	Xid                      TransactionXid    `json:"xid"`
	ConfirmInvocation        InvocationContext `json:"confirmInvocation"`
	CancelInvocation         InvocationContext `json:"cancelInvocation"`
	TransactionContextEditor string            `json:"transactionContextEditor"`
}

func NewParticipant(xid TransactionXid, confirm, cancel InvocationContext, editor string) *Participant {
	return &Participant{
		Xid:                      xid,
		ConfirmInvocation:        confirm,
		CancelInvocation:         cancel,
		TransactionContextEditor: editor,
	}
}

// InvocationFor 根据二阶段方向选择confirm或cancel调用
func (p *Participant) InvocationFor(status TransactionStatus) (InvocationContext, error) {
	switch status {
	case CONFIRMING:
		return p.ConfirmInvocation, nil
	case CANCELLING:
		return p.CancelInvocation, nil
	default:
		return InvocationContext{}, fmt.Errorf("%w: participant %s cannot be driven in status %s", ErrSystem, p.Xid, status)
	}
}

// EncodeArguments 按位置把参数编码为JSON，入队时即固定try看到的参数
func EncodeArguments(args []any) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		body, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: encode argument #%d: %v", ErrSystem, i, err)
		}
		encoded[i] = body
	}
	return encoded, nil
}
