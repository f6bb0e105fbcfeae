package internel

import (
	"TCCTransaction/pkg"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryTXStore 进程内事务存储，保存编码后的记录，每次读取都得到独立的聚合
type MemoryTXStore struct {
	mux     sync.Mutex
	records map[string][]byte
}

func NewMemoryTXStore() *MemoryTXStore {
	return &MemoryTXStore{
		records: make(map[string][]byte),
	}
}

func (m *MemoryTXStore) Create(ctx context.Context, tx *pkg.Transaction) error {
	data, err := pkg.MarshalTransaction(tx)
	if err != nil {
		return err
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	key := tx.Xid.String()
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("%w, xid: %s", pkg.ErrTransactionExisted, key)
	}
	m.records[key] = data
	return nil
}

func (m *MemoryTXStore) Update(ctx context.Context, tx *pkg.Transaction) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	key := tx.Xid.String()
	data, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: record not found, xid: %s", pkg.ErrOptimisticLock, key)
	}
	stored, err := pkg.UnmarshalTransaction(data)
	if err != nil {
		return err
	}
	if stored.Version != tx.Version {
		return fmt.Errorf("%w: expect version %d, actual %d, xid: %s", pkg.ErrOptimisticLock, tx.Version, stored.Version, key)
	}

	next := *tx
	next.Version++
	next.UpdateTime()
	if data, err = pkg.MarshalTransaction(&next); err != nil {
		return err
	}
	m.records[key] = data
	tx.Version, tx.LastUpdateTime = next.Version, next.LastUpdateTime
	return nil
}

func (m *MemoryTXStore) Delete(ctx context.Context, tx *pkg.Transaction) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.records, tx.Xid.String())
	return nil
}

func (m *MemoryTXStore) FindByXid(ctx context.Context, xid pkg.TransactionXid) (*pkg.Transaction, error) {
	m.mux.Lock()
	data, ok := m.records[xid.String()]
	m.mux.Unlock()
	if !ok {
		return nil, nil
	}
	return pkg.UnmarshalTransaction(data)
}

func (m *MemoryTXStore) FindAllUnmodifiedSince(ctx context.Context, t time.Time) ([]*pkg.Transaction, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	txs := make([]*pkg.Transaction, 0)
	for _, data := range m.records {
		tx, err := pkg.UnmarshalTransaction(data)
		if err != nil {
			return nil, err
		}
		if tx.LastUpdateTime.Before(t) {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].LastUpdateTime.Before(txs[j].LastUpdateTime)
	})
	return txs, nil
}

// Len 当前记录数
func (m *MemoryTXStore) Len() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return len(m.records)
}

// ResetRetriedCount 清零重试次数，使超出重试上限的事务重新进入恢复
func (m *MemoryTXStore) ResetRetriedCount(ctx context.Context, xid pkg.TransactionXid) error {
	tx, err := m.FindByXid(ctx, xid)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w, xid: %s", pkg.ErrNoExistedTransaction, xid)
	}
	tx.RetriedCount = 0
	return m.Update(ctx, tx)
}
