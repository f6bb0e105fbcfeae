package TCC

import (
	"TCCTransaction/pkg"
	"context"
)

// ResourceCoordinatorInterceptor 当前事务处于TRYING时，把被调用方登记为参与者
type ResourceCoordinatorInterceptor struct {
	tm *TransactionManager
}

func (rc *ResourceCoordinatorInterceptor) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	tx := rc.tm.GetCurrentTransaction(ctx)
	if tx == nil || tx.Status() != pkg.TRYING {
		return next(ctx, inv)
	}
	if err := rc.enlist(ctx, tx, inv); err != nil {
		return zeroValue(inv.ReturnType), err
	}
	return next(ctx, inv)
}

// enlist 登记参与者。参数已携带上下文时沿用其xid，参与方若把收到的上下文原样转发给下游，
// 且两端共用同一仓储，下游开启分支事务时会因xid重复而失败
func (rc *ResourceCoordinatorInterceptor) enlist(ctx context.Context, tx *pkg.Transaction, inv *Invocation) error {
	marker := inv.Compensable
	editor, err := rc.tm.editors.Get(marker.EditorID())
	if err != nil {
		return err
	}

	//参数已携带上下文时沿用其分支，使try与confirm/cancel看到同一个xid
	var xid pkg.TransactionXid
	if tc := editor.Get(inv.Target, inv.Method, inv.ParameterTypes, inv.Args); tc != nil {
		xid = tc.Xid
	} else {
		xid = pkg.NewBranchXid(tx.Xid.GlobalTransactionID)
		editor.Set(pkg.NewTransactionContext(xid, pkg.TRYING), inv.Target, inv.Method, inv.ParameterTypes, inv.Args)
	}

	args, err := pkg.EncodeArguments(inv.Args)
	if err != nil {
		return err
	}
	types := make([]string, len(inv.ParameterTypes))
	for i, t := range inv.ParameterTypes {
		types[i] = t.String()
	}

	//目标ID即声明类型，重启后由注册中心解析
	p := pkg.NewParticipant(xid,
		pkg.NewInvocationContext(inv.Target, marker.ConfirmMethod, types, args),
		pkg.NewInvocationContext(inv.Target, marker.CancelMethod, types, args),
		marker.EditorID())
	return rc.tm.EnlistParticipant(ctx, p)
}
