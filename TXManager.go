package TCC

import (
	"TCCTransaction/internel"
	"TCCTransaction/log"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"
)

// TransactionManager 事务管理器，负责事务的开启、传播、提交与回滚
type TransactionManager struct {
	opts     *Options                    //额外参数
	repo     model.TransactionRepository //事务储存中心
	registry *internel.RegistryCenter    //注册中心
	editors  *internel.EditorRegistry
	executor *executor
	metrics  *tccMetrics

	handler Handler
}

func NewTransactionManager(repo model.TransactionRepository, opts ...Option) *TransactionManager {
	tm := &TransactionManager{
		opts:     &Options{},
		repo:     repo,
		registry: internel.NewRegistryCenter(),
		editors:  internel.NewEditorRegistry(),
	}
	for _, opt := range opts {
		opt(tm.opts)
	}

	checkOpt(tm.opts)

	tm.executor = newExecutor(tm.opts.AsyncWorkers)
	tm.metrics = newMetrics(tm.opts.MeterProvider)
	tm.handler = chain(tm.proceed,
		(&CompensableInterceptor{tm: tm}).Intercept,
		(&ResourceCoordinatorInterceptor{tm: tm}).Intercept,
	)
	return tm
}

// Register 以稳定的目标ID注册本地服务，markers的key为try方法名
func (tm *TransactionManager) Register(id string, rcvr any, markers map[string]model.Compensable) error {
	return tm.registry.Register(id, rcvr, markers)
}

func (tm *TransactionManager) RegisterRemote(id string, remote model.RemoteTarget, markers map[string]model.Compensable) error {
	return tm.registry.RegisterRemote(id, remote, markers)
}

func (tm *TransactionManager) RegisterEditor(id string, editor model.TransactionContextEditor) error {
	return tm.editors.Register(id, editor)
}

// Signature 返回方法的参数与返回值类型，供传输层解码
func (tm *TransactionManager) Signature(target, method string) (model.RemoteMethod, error) {
	m, err := tm.registry.GetMethod(target, method)
	if err != nil {
		return model.RemoteMethod{}, err
	}
	return m.RemoteMethod, nil
}

// Repository 事务储存中心，供恢复任务使用
func (tm *TransactionManager) Repository() model.TransactionRepository {
	return tm.repo
}

// Close 等待异步confirm/cancel结束
func (tm *TransactionManager) Close() {
	tm.executor.close()
}

// Begin 开启根事务
func (tm *TransactionManager) Begin(ctx context.Context) (*pkg.Transaction, error) {
	return tm.begin(ctx, pkg.NewRootTransaction())
}

// PropagationNewBegin 参与方以上游的xid开启分支事务
func (tm *TransactionManager) PropagationNewBegin(ctx context.Context, tc *pkg.TransactionContext) (*pkg.Transaction, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: nil transaction context", pkg.ErrSystem)
	}
	return tm.begin(ctx, pkg.NewBranchTransaction(tc))
}

func (tm *TransactionManager) begin(ctx context.Context, tx *pkg.Transaction) (*pkg.Transaction, error) {
	c, err := mustChannel(ctx)
	if err != nil {
		return nil, err
	}
	if err := tm.repo.Create(ctx, tx); err != nil {
		return nil, err
	}
	c.push(tx)
	tm.metrics.recordBegin(ctx, tx.Role)
	log.DebugContextf(ctx, "tcc: begin %s transaction, xid: %s", tx.Role, tx.Xid)
	return tx, nil
}

// PropagationExistBegin 加载已存在的分支事务，并以上游传来的状态推进
func (tm *TransactionManager) PropagationExistBegin(ctx context.Context, tc *pkg.TransactionContext) (*pkg.Transaction, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: nil transaction context", pkg.ErrSystem)
	}
	c, err := mustChannel(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := tm.repo.FindByXid(ctx, tc.Xid)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w, xid: %s", pkg.ErrNoExistedTransaction, tc.Xid)
	}
	if err := tx.ChangeStatus(tc.Status); err != nil {
		return nil, err
	}
	c.push(tx)
	return tx, nil
}

// Commit 持久化CONFIRMING后按入队顺序调用各参与者的confirm，全部成功后删除记录
func (tm *TransactionManager) Commit(ctx context.Context, async bool) error {
	return tm.complete(ctx, pkg.CONFIRMING, async)
}

// Rollback 持久化CANCELLING后按入队顺序调用各参与者的cancel
func (tm *TransactionManager) Rollback(ctx context.Context, async bool) error {
	return tm.complete(ctx, pkg.CANCELLING, async)
}

func (tm *TransactionManager) complete(ctx context.Context, status pkg.TransactionStatus, async bool) error {
	tx := tm.GetCurrentTransaction(ctx)
	if tx == nil {
		return fmt.Errorf("%w: no active transaction", pkg.ErrSystem)
	}
	if err := tx.ChangeStatus(status); err != nil {
		return err
	}
	if err := tm.repo.Update(ctx, tx); err != nil {
		return err
	}
	tm.metrics.recordDecision(ctx, tx)

	if !async {
		return tm.drive(ctx, tx)
	}
	err := tm.executor.submit(ctx, func(ctx context.Context) {
		if err := tm.drive(ctx, tx); err != nil {
			log.WarnContextf(ctx, "tcc: async %s err: %v", status, err)
		}
	})
	if err != nil {
		//执行器已关闭，状态已持久化，同步推进
		return tm.drive(ctx, tx)
	}
	return nil
}

// ConfirmTransaction 推进一个已处于CONFIRMING的事务，供恢复任务使用
func (tm *TransactionManager) ConfirmTransaction(ctx context.Context, tx *pkg.Transaction) error {
	if tx.Status() != pkg.CONFIRMING {
		return fmt.Errorf("%w: cannot confirm transaction in status %s, xid: %s", pkg.ErrSystem, tx.Status(), tx.Xid)
	}
	return tm.drive(ctx, tx)
}

// CancelTransaction 推进一个已处于CANCELLING的事务
func (tm *TransactionManager) CancelTransaction(ctx context.Context, tx *pkg.Transaction) error {
	if tx.Status() != pkg.CANCELLING {
		return fmt.Errorf("%w: cannot cancel transaction in status %s, xid: %s", pkg.ErrSystem, tx.Status(), tx.Xid)
	}
	return tm.drive(ctx, tx)
}

// 遍历参与者完成第二阶段，失败的参与者不中断遍历，记录保留给恢复任务
func (tm *TransactionManager) drive(ctx context.Context, tx *pkg.Transaction) error {
	start := time.Now()
	status := tx.Status()
	ctx = log.WithFields(ctx, "xid", tx.Xid.String(), "role", tx.Role.String())

	var errs error
	for _, p := range tx.Participants() {
		inv, err := p.InvocationFor(status)
		if err == nil {
			err = tm.invokeParticipant(ctx, p, inv, status)
		}
		if err != nil {
			tm.metrics.recordParticipantFailure(ctx, status, inv.TargetClass)
			errs = multierr.Append(errs, fmt.Errorf("participant %s %s.%s: %w", p.Xid, inv.TargetClass, inv.MethodName, err))
		}
	}
	if errs != nil {
		tm.metrics.recordDrive(ctx, status, time.Since(start), "failed")
		log.ErrorContextf(ctx, "tcc: %s participants failed, record kept for recovery: %v", status, errs)
		return fmt.Errorf("%w: %w", pkg.ErrParticipantInvocation, errs)
	}

	if err := tm.repo.Delete(ctx, tx); err != nil {
		tm.metrics.recordDrive(ctx, status, time.Since(start), "failed")
		return err
	}
	tm.metrics.recordDrive(ctx, status, time.Since(start), "ok")
	log.DebugContextf(ctx, "tcc: %s done", status)
	return nil
}

// 按注册中心中的方法签名解码参数，写入事务上下文后直接调用，不经过拦截器
func (tm *TransactionManager) invokeParticipant(ctx context.Context, p *pkg.Participant, inv pkg.InvocationContext, status pkg.TransactionStatus) error {
	m, err := tm.registry.GetMethod(inv.TargetClass, inv.MethodName)
	if err != nil {
		return err
	}
	if len(inv.Arguments) != len(m.ParameterTypes) {
		return fmt.Errorf("%w: %s.%s expects %d arguments, recorded %d", pkg.ErrSystem,
			inv.TargetClass, inv.MethodName, len(m.ParameterTypes), len(inv.Arguments))
	}
	names := m.ParameterTypeNames()
	args := make([]any, len(inv.Arguments))
	for i, raw := range inv.Arguments {
		if i < len(inv.ParameterTypes) && inv.ParameterTypes[i] != names[i] {
			return fmt.Errorf("%w: %s.%s parameter #%d changed from %s to %s", pkg.ErrSystem,
				inv.TargetClass, inv.MethodName, i, inv.ParameterTypes[i], names[i])
		}
		ptr := reflect.New(m.ParameterTypes[i])
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return fmt.Errorf("%w: decode %s.%s argument #%d: %v", pkg.ErrSystem, inv.TargetClass, inv.MethodName, i, err)
		}
		args[i] = ptr.Elem().Interface()
	}

	editor, err := tm.editors.Get(p.TransactionContextEditor)
	if err != nil {
		return err
	}
	editor.Set(pkg.NewTransactionContext(p.Xid, status), inv.TargetClass, inv.MethodName, m.ParameterTypes, args)

	_, err = tm.registry.Call(withNewTransactionChannel(ctx), inv.TargetClass, inv.MethodName, args)
	return err
}

// EnlistParticipant 加入参与者并重新持久化
func (tm *TransactionManager) EnlistParticipant(ctx context.Context, p *pkg.Participant) error {
	tx := tm.GetCurrentTransaction(ctx)
	if tx == nil {
		return fmt.Errorf("%w: no active transaction", pkg.ErrSystem)
	}
	if err := tx.Enlist(p); err != nil {
		return err
	}
	return tm.repo.Update(ctx, tx)
}

func (tm *TransactionManager) GetCurrentTransaction(ctx context.Context) *pkg.Transaction {
	c := channelFrom(ctx)
	if c == nil {
		return nil
	}
	return c.current()
}

func (tm *TransactionManager) IsTransactionActive(ctx context.Context) bool {
	return tm.GetCurrentTransaction(ctx) != nil
}

// CleanAfterCompletion 弹出当前事务，tx不是当前事务说明事务栈被破坏
func (tm *TransactionManager) CleanAfterCompletion(ctx context.Context, tx *pkg.Transaction) error {
	if tx == nil {
		return nil
	}
	c := channelFrom(ctx)
	if c == nil || !c.popIf(tx) {
		return fmt.Errorf("%w: illegal transaction when clean after completion, xid: %s", pkg.ErrSystem, tx.Xid)
	}
	return nil
}

// Invoke 经过拦截器调用已注册的方法，是业务代码的调用入口
func (tm *TransactionManager) Invoke(ctx context.Context, target, method string, args ...any) (any, error) {
	ctx = WithTransactionChannel(ctx)
	m, err := tm.registry.GetMethod(target, method)
	if err != nil {
		return nil, err
	}
	if len(args) != len(m.ParameterTypes) {
		return nil, fmt.Errorf("%w: %s.%s expects %d arguments, got %d", pkg.ErrSystem, target, method, len(m.ParameterTypes), len(args))
	}

	inv := &Invocation{
		Target:         target,
		Method:         method,
		Compensable:    m.Compensable,
		ParameterTypes: m.ParameterTypes,
		ReturnType:     m.ReturnType,
		Args:           append([]any(nil), args...),
	}
	if inv.Compensable == nil {
		return tm.proceed(ctx, inv)
	}
	return tm.handler(ctx, inv)
}

func (tm *TransactionManager) proceed(ctx context.Context, inv *Invocation) (any, error) {
	return tm.registry.Call(ctx, inv.Target, inv.Method, inv.Args)
}

func mustChannel(ctx context.Context) (*transactionChannel, error) {
	c := channelFrom(ctx)
	if c == nil {
		return nil, fmt.Errorf("%w: no transaction channel in context", pkg.ErrSystem)
	}
	return c, nil
}
