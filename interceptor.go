package TCC

import (
	"TCCTransaction/log"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"fmt"
	"reflect"
)

// Invocation 一次经过拦截器的方法调用
type Invocation struct {
	Target         string
	Method         string
	Compensable    *model.Compensable
	ParameterTypes []reflect.Type
	//无返回值时为nil
	ReturnType reflect.Type
	Args       []any
}

type Handler func(ctx context.Context, inv *Invocation) (any, error)

type Interceptor func(ctx context.Context, inv *Invocation, next Handler) (any, error)

// chain 第一个拦截器在最外层
func chain(final Handler, interceptors ...Interceptor) Handler {
	h := final
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor, next := interceptors[i], h
		h = func(ctx context.Context, inv *Invocation) (any, error) {
			return interceptor(ctx, inv, next)
		}
	}
	return h
}

func zeroValue(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}

// CompensableInterceptor 判断可补偿调用的角色并驱动对应的事务生命周期
type CompensableInterceptor struct {
	tm *TransactionManager
}

// classify 根据传播属性、上游上下文与当前事务决定方法角色
func classify(propagation pkg.Propagation, hasContext, active bool) (pkg.MethodRole, error) {
	if propagation == pkg.MANDATORY && !active && !hasContext {
		return pkg.MethodNormal, fmt.Errorf("%w: no active transaction while propagation is MANDATORY", pkg.ErrSystem)
	}
	switch {
	case active:
		//MANDATORY在已有事务内也只参与当前事务，不另开根事务
		return pkg.MethodNormal, nil
	case hasContext:
		return pkg.MethodProvider, nil
	case propagation == pkg.REQUIRED:
		return pkg.MethodRoot, nil
	default:
		return pkg.MethodNormal, nil
	}
}

func (ci *CompensableInterceptor) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	editor, err := ci.tm.editors.Get(inv.Compensable.EditorID())
	if err != nil {
		return nil, err
	}
	tc := editor.Get(inv.Target, inv.Method, inv.ParameterTypes, inv.Args)

	role, err := classify(inv.Compensable.Propagation, tc != nil, ci.tm.IsTransactionActive(ctx))
	if err != nil {
		return zeroValue(inv.ReturnType), fmt.Errorf("%s.%s: %w", inv.Target, inv.Method, err)
	}

	switch role {
	case pkg.MethodRoot:
		return ci.rootMethodProceed(ctx, inv, next)
	case pkg.MethodProvider:
		return ci.providerMethodProceed(ctx, inv, tc, next)
	default:
		return next(ctx, inv)
	}
}

func (ci *CompensableInterceptor) rootMethodProceed(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	tx, err := ci.tm.Begin(ctx)
	if err != nil {
		return zeroValue(inv.ReturnType), err
	}
	defer ci.clean(ctx, tx)

	ret, tryErr := next(ctx, inv)
	if tryErr != nil {
		if ci.tm.opts.isDelayCancel(tryErr) {
			log.WarnContextf(ctx, "tcc: delay cancel, xid: %s, try err: %v", tx.Xid, tryErr)
			return ret, tryErr
		}
		if err := ci.tm.Rollback(ctx, inv.Compensable.AsyncCancel); err != nil {
			log.ErrorContextf(ctx, "tcc: rollback failed, xid: %s, err: %v", tx.Xid, err)
		}
		return ret, tryErr
	}

	if err := ci.tm.Commit(ctx, inv.Compensable.AsyncConfirm); err != nil {
		return ret, err
	}
	return ret, nil
}

func (ci *CompensableInterceptor) providerMethodProceed(ctx context.Context, inv *Invocation, tc *pkg.TransactionContext, next Handler) (any, error) {
	switch tc.Status {
	case pkg.TRYING:
		tx, err := ci.tm.PropagationNewBegin(ctx, tc)
		if err != nil {
			return zeroValue(inv.ReturnType), err
		}
		defer ci.clean(ctx, tx)
		return next(ctx, inv)

	case pkg.CONFIRMING, pkg.CANCELLING:
		tx, err := ci.tm.PropagationExistBegin(ctx, tc)
		if err != nil {
			//记录已被之前的推进删除
			if pkg.IsNoExistedTransaction(err) {
				return zeroValue(inv.ReturnType), nil
			}
			return zeroValue(inv.ReturnType), err
		}
		defer ci.clean(ctx, tx)

		if tc.Status == pkg.CONFIRMING {
			err = ci.tm.Commit(ctx, inv.Compensable.AsyncConfirm)
		} else {
			err = ci.tm.Rollback(ctx, inv.Compensable.AsyncCancel)
		}
		return zeroValue(inv.ReturnType), err

	default:
		return zeroValue(inv.ReturnType), fmt.Errorf("%w: illegal transaction status %s in context, xid: %s", pkg.ErrSystem, tc.Status, tc.Xid)
	}
}

func (ci *CompensableInterceptor) clean(ctx context.Context, tx *pkg.Transaction) {
	if err := ci.tm.CleanAfterCompletion(ctx, tx); err != nil {
		log.ErrorContextf(ctx, "tcc: %v", err)
	}
}
