package recovery

import (
	TCC "TCCTransaction"
	"TCCTransaction/internel"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"TCCTransaction/redis_lock"
	"TCCTransaction/third_party"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stockService struct {
	mux        sync.Mutex
	calls      []string
	confirmErr error
}

func (s *stockService) add(call string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stockService) Calls() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stockService) Deduct(ctx context.Context, tc *pkg.TransactionContext, sku string) error {
	s.add("Deduct:" + sku)
	return nil
}

func (s *stockService) ConfirmDeduct(ctx context.Context, tc *pkg.TransactionContext, sku string) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.add("ConfirmDeduct:" + sku + ":" + tc.Status.String())
	return nil
}

func (s *stockService) CancelDeduct(ctx context.Context, tc *pkg.TransactionContext, sku string) error {
	s.add("CancelDeduct:" + sku + ":" + tc.Status.String())
	return nil
}

type env struct {
	repo  *internel.MemoryTXStore
	tm    *TCC.TransactionManager
	stock *stockService
}

func newEnv(t *testing.T) *env {
	repo := internel.NewMemoryTXStore()
	tm := TCC.NewTransactionManager(repo)
	stock := &stockService{}
	require.NoError(t, tm.Register("stock", stock, map[string]model.Compensable{
		"Deduct": {ConfirmMethod: "ConfirmDeduct", CancelMethod: "CancelDeduct"},
	}))
	t.Cleanup(tm.Close)
	return &env{repo: repo, tm: tm, stock: stock}
}

// 构造一条age之前最后更新的事务记录
func (e *env) seed(t *testing.T, tx *pkg.Transaction, status pkg.TransactionStatus, age time.Duration) *pkg.Transaction {
	args, err := pkg.EncodeArguments([]any{nil, "sku-1"})
	require.NoError(t, err)
	types := []string{"*pkg.TransactionContext", "string"}
	p := pkg.NewParticipant(pkg.NewBranchXid(tx.Xid.GlobalTransactionID),
		pkg.NewInvocationContext("stock", "ConfirmDeduct", types, args),
		pkg.NewInvocationContext("stock", "CancelDeduct", types, args),
		model.DefaultEditor)
	require.NoError(t, tx.Enlist(p))
	require.NoError(t, tx.ChangeStatus(status))
	tx.CreateTime = tx.CreateTime.Add(-age)
	tx.LastUpdateTime = tx.LastUpdateTime.Add(-age)
	require.NoError(t, e.repo.Create(context.Background(), tx))
	return tx
}

func (e *env) newRecovery(opts ...Option) *Recovery {
	opts = append([]Option{WithRecoverDuration(time.Second), WithMaxRetryCount(3)}, opts...)
	return New(e.repo, e.tm, opts...)
}

func Test_recover_confirming(t *testing.T) {
	e := newEnv(t)
	e.seed(t, pkg.NewRootTransaction(), pkg.CONFIRMING, time.Minute)
	//未超过恢复时长的记录不处理
	fresh := e.seed(t, pkg.NewRootTransaction(), pkg.CONFIRMING, 0)

	require.NoError(t, e.newRecovery().StartRecover(context.Background()))
	assert.Equal(t, []string{"ConfirmDeduct:sku-1:CONFIRMING"}, e.stock.Calls())
	assert.Equal(t, 1, e.repo.Len())

	found, err := e.repo.FindByXid(context.Background(), fresh.Xid)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func Test_recover_root_trying(t *testing.T) {
	e := newEnv(t)
	tx := e.seed(t, pkg.NewRootTransaction(), pkg.TRYING, time.Minute)

	require.NoError(t, e.newRecovery().StartRecover(context.Background()))
	assert.Equal(t, []string{"CancelDeduct:sku-1:CANCELLING"}, e.stock.Calls())

	found, err := e.repo.FindByXid(context.Background(), tx.Xid)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func Test_recover_provider(t *testing.T) {
	e := newEnv(t)
	newProvider := func() *pkg.Transaction {
		return pkg.NewBranchTransaction(pkg.NewTransactionContext(pkg.NewBranchXid(pkg.NewRootXid().GlobalTransactionID), pkg.TRYING))
	}
	//分支事务TRYING由根事务决定方向
	e.seed(t, newProvider(), pkg.TRYING, time.Hour)
	//创建时间未超过 MaxRetryCount*RecoverDuration
	e.seed(t, newProvider(), pkg.CANCELLING, 2*time.Second)
	e.seed(t, newProvider(), pkg.CANCELLING, time.Minute)

	require.NoError(t, e.newRecovery().StartRecover(context.Background()))
	assert.Equal(t, []string{"CancelDeduct:sku-1:CANCELLING"}, e.stock.Calls())
	assert.Equal(t, 2, e.repo.Len())
}

func Test_recover_max_retry(t *testing.T) {
	e := newEnv(t)
	tx := pkg.NewRootTransaction()
	tx.RetriedCount = 4
	e.seed(t, tx, pkg.CANCELLING, time.Minute)

	require.NoError(t, e.newRecovery().StartRecover(context.Background()))
	assert.Empty(t, e.stock.Calls())
	assert.Equal(t, 1, e.repo.Len())
}

func Test_recover_failure(t *testing.T) {
	e := newEnv(t)
	e.stock.confirmErr = errors.New("stock unavailable")
	tx := e.seed(t, pkg.NewRootTransaction(), pkg.CONFIRMING, time.Minute)

	err := e.newRecovery().StartRecover(context.Background())
	assert.ErrorIs(t, err, pkg.ErrParticipantInvocation)

	found, err := e.repo.FindByXid(context.Background(), tx.Xid)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, pkg.CONFIRMING, found.Status())
	assert.Equal(t, 1, found.RetriedCount)
}

func Test_recover_optimistic_lock(t *testing.T) {
	e := newEnv(t)
	tx := e.seed(t, pkg.NewRootTransaction(), pkg.CONFIRMING, time.Minute)

	stale, err := e.repo.FindByXid(context.Background(), tx.Xid)
	require.NoError(t, err)
	//其他节点先推进了该记录
	require.NoError(t, e.repo.Update(context.Background(), tx))

	r := e.newRecovery()
	require.NoError(t, r.recoverTransaction(context.Background(), stale))
	assert.Empty(t, e.stock.Calls())
}

func Test_recover_with_lock(t *testing.T) {
	e := newEnv(t)
	e.seed(t, pkg.NewRootTransaction(), pkg.CONFIRMING, time.Minute)

	mr := miniredis.RunT(t)
	client := third_party.NewClient("tcp", mr.Addr(), "")
	defer client.Close()

	//其他节点持有恢复锁
	other := redis_lock.NewRedisLock(pkg.BuildRecoveryLockKey("tcc:"), client,
		redis_lock.WithToken("other"), redis_lock.WithExpireSeconds(30))
	require.NoError(t, other.Lock(context.Background()))

	r := e.newRecovery(WithRedisLock(client, "tcc:"))
	require.NoError(t, r.StartRecover(context.Background()))
	assert.Empty(t, e.stock.Calls())

	require.NoError(t, other.Unlock(context.Background()))
	require.NoError(t, r.StartRecover(context.Background()))
	assert.Equal(t, []string{"ConfirmDeduct:sku-1:CONFIRMING"}, e.stock.Calls())
	assert.Equal(t, 0, e.repo.Len())
}

func Test_polling(t *testing.T) {
	e := newEnv(t)
	e.seed(t, pkg.NewRootTransaction(), pkg.TRYING, time.Minute)

	r := e.newRecovery(WithMonitorTick(20 * time.Millisecond))
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return e.repo.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"CancelDeduct:sku-1:CANCELLING"}, e.stock.Calls())
}

func Test_back_off_tick(t *testing.T) {
	r := New(internel.NewMemoryTXStore(), nil, WithMonitorTick(time.Second))
	assert.Equal(t, 2*time.Second, r.backOffTick(time.Second))
	assert.Equal(t, 8*time.Second, r.backOffTick(6*time.Second))
}
