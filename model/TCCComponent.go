package model

import (
	"TCCTransaction/pkg"
	"context"
	"reflect"
)

// TransactionContextEditor 从参数列表中提取或写入事务上下文
type TransactionContextEditor interface {
	Get(target, method string, parameterTypes []reflect.Type, args []any) *pkg.TransactionContext
	Set(tc *pkg.TransactionContext, target, method string, parameterTypes []reflect.Type, args []any)
}

// RemoteMethod 远程方法签名，不含首个context.Context参数与末尾error
type RemoteMethod struct {
	ParameterTypes []reflect.Type
	//无返回值时为nil
	ReturnType reflect.Type
}

// RemoteTarget 由传输层实现的远程服务桩
type RemoteTarget interface {
	Methods() map[string]RemoteMethod
	Dispatch(ctx context.Context, method string, args []any) (any, error)
}
