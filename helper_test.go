package TCC

import (
	"TCCTransaction/internel"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"context"
	"fmt"
	"reflect"
	"sync"
)

// 记录仓储写操作顺序
type recordingRepository struct {
	*internel.MemoryTXStore

	mux sync.Mutex
	ops []string
	//非空时对应的写操作失败
	createErr error
	updateErr map[pkg.TransactionStatus]error
}

func newRecordingRepository() *recordingRepository {
	return &recordingRepository{MemoryTXStore: internel.NewMemoryTXStore()}
}

func (r *recordingRepository) record(op string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingRepository) failCreate(err error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.createErr = err
}

func (r *recordingRepository) failUpdate(status pkg.TransactionStatus, err error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.updateErr == nil {
		r.updateErr = make(map[pkg.TransactionStatus]error)
	}
	r.updateErr[status] = err
}

func (r *recordingRepository) Ops() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recordingRepository) Create(ctx context.Context, tx *pkg.Transaction) error {
	r.record("create:" + tx.Status().String())
	r.mux.Lock()
	err := r.createErr
	r.mux.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryTXStore.Create(ctx, tx)
}

func (r *recordingRepository) Update(ctx context.Context, tx *pkg.Transaction) error {
	r.record("update:" + tx.Status().String())
	r.mux.Lock()
	err := r.updateErr[tx.Status()]
	r.mux.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryTXStore.Update(ctx, tx)
}

func (r *recordingRepository) Delete(ctx context.Context, tx *pkg.Transaction) error {
	r.record("delete")
	return r.MemoryTXStore.Delete(ctx, tx)
}

// 多个服务共享的调用日志
type journal struct {
	mux     sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mux.Lock()
	defer j.mux.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) Entries() []string {
	j.mux.Lock()
	defer j.mux.Unlock()
	return append([]string(nil), j.entries...)
}

// accountService 参与方，confirm/cancel签名与try一致
type accountService struct {
	name    string
	journal *journal

	mux        sync.Mutex
	tryErr     error
	confirmErr error
	//非空时confirm/cancel等待其关闭
	gate chan struct{}
	//confirm/cancel收到的上下文
	contexts []*pkg.TransactionContext
}

func newAccountService(name string, j *journal) *accountService {
	return &accountService{name: name, journal: j}
}

func accountMarkers(marker model.Compensable) map[string]model.Compensable {
	marker.ConfirmMethod, marker.CancelMethod = "Confirm", "Cancel"
	return map[string]model.Compensable{"Try": marker}
}

func (s *accountService) setConfirmErr(err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.confirmErr = err
}

func (s *accountService) Contexts() []*pkg.TransactionContext {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]*pkg.TransactionContext(nil), s.contexts...)
}

func (s *accountService) Try(ctx context.Context, tc *pkg.TransactionContext, arg string) (int, error) {
	s.journal.add("%s.Try:%s", s.name, arg)
	if s.tryErr != nil {
		return 0, s.tryErr
	}
	return 1, nil
}

func (s *accountService) Confirm(ctx context.Context, tc *pkg.TransactionContext, arg string) (int, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mux.Lock()
	s.contexts = append(s.contexts, tc)
	err := s.confirmErr
	s.mux.Unlock()
	if err != nil {
		return 0, err
	}
	s.journal.add("%s.Confirm:%s", s.name, arg)
	return 2, nil
}

func (s *accountService) Cancel(ctx context.Context, tc *pkg.TransactionContext, arg string) (int, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mux.Lock()
	s.contexts = append(s.contexts, tc)
	s.mux.Unlock()
	s.journal.add("%s.Cancel:%s", s.name, arg)
	return 3, nil
}

// shopService 根事务发起方，try中调用A、B两个参与方
type shopService struct {
	tm       *TransactionManager
	journal  *journal
	localErr error
}

func (s *shopService) Buy(ctx context.Context, tc *pkg.TransactionContext, a, b string) (string, error) {
	if _, err := s.tm.Invoke(ctx, "A", "Try", nil, a); err != nil {
		return "", err
	}
	if b != "" {
		if _, err := s.tm.Invoke(ctx, "B", "Try", nil, b); err != nil {
			return "", err
		}
	}
	if s.localErr != nil {
		return "", s.localErr
	}
	return "ok", nil
}

func (s *shopService) ConfirmBuy(ctx context.Context, tc *pkg.TransactionContext, a, b string) (string, error) {
	s.journal.add("shop.ConfirmBuy")
	return "", nil
}

func (s *shopService) CancelBuy(ctx context.Context, tc *pkg.TransactionContext, a, b string) (string, error) {
	s.journal.add("shop.CancelBuy")
	return "", nil
}

type fixture struct {
	tm      *TransactionManager
	repo    *recordingRepository
	journal *journal
	shop    *shopService
	a, b    *accountService
}

func newFixture(shopMarker model.Compensable, opts ...Option) (*fixture, error) {
	repo := newRecordingRepository()
	j := &journal{}
	tm := NewTransactionManager(repo, opts...)
	f := &fixture{
		tm:      tm,
		repo:    repo,
		journal: j,
		shop:    &shopService{tm: tm, journal: j},
		a:       newAccountService("A", j),
		b:       newAccountService("B", j),
	}

	shopMarker.ConfirmMethod, shopMarker.CancelMethod = "ConfirmBuy", "CancelBuy"
	if err := tm.Register("shop", f.shop, map[string]model.Compensable{"Buy": shopMarker}); err != nil {
		return nil, err
	}
	if err := tm.Register("A", f.a, accountMarkers(model.Compensable{})); err != nil {
		return nil, err
	}
	if err := tm.Register("B", f.b, accountMarkers(model.Compensable{})); err != nil {
		return nil, err
	}
	return f, nil
}

// walletRequest 事务上下文放在请求体内，由requestEditor读写
type walletRequest struct {
	TC     *pkg.TransactionContext `json:"tc"`
	Amount int64                   `json:"amount"`
}

type requestEditor struct{}

func (requestEditor) Get(_, _ string, _ []reflect.Type, args []any) *pkg.TransactionContext {
	if len(args) == 0 {
		return nil
	}
	req, ok := args[0].(*walletRequest)
	if !ok || req == nil {
		return nil
	}
	return req.TC
}

func (requestEditor) Set(tc *pkg.TransactionContext, _, _ string, _ []reflect.Type, args []any) {
	if len(args) == 0 {
		return
	}
	if req, ok := args[0].(*walletRequest); ok && req != nil {
		req.TC = tc
	}
}

type walletService struct {
	journal *journal

	mux sync.Mutex
	//各阶段收到的上下文
	seen []*pkg.TransactionContext
}

func (w *walletService) observe(phase string, req *walletRequest) {
	w.mux.Lock()
	w.seen = append(w.seen, req.TC)
	w.mux.Unlock()
	w.journal.add("wallet.%s:%d", phase, req.Amount)
}

func (w *walletService) Seen() []*pkg.TransactionContext {
	w.mux.Lock()
	defer w.mux.Unlock()
	return append([]*pkg.TransactionContext(nil), w.seen...)
}

func (w *walletService) Freeze(ctx context.Context, req *walletRequest) error {
	w.observe("Freeze", req)
	return nil
}

func (w *walletService) Deduct(ctx context.Context, req *walletRequest) error {
	w.observe("Deduct", req)
	return nil
}

func (w *walletService) Unfreeze(ctx context.Context, req *walletRequest) error {
	w.observe("Unfreeze", req)
	return nil
}
