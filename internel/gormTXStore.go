package internel

import (
	"TCCTransaction/DAO"
	"TCCTransaction/pkg"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormTXStore 基于GORM的事务存储，生产环境使用mysql
type GormTXStore struct {
	dao DAO.TransactionRecordDAOInterface
}

func NewGormTXStore(db *gorm.DB) *GormTXStore {
	return &GormTXStore{dao: DAO.NewTransactionRecordDAO(db)}
}

// AutoMigrate 建表
func (g *GormTXStore) AutoMigrate(ctx context.Context) error {
	return g.dao.AutoMigrate(ctx)
}

func (g *GormTXStore) Create(ctx context.Context, tx *pkg.Transaction) error {
	record, err := toRecordPO(tx)
	if err != nil {
		return err
	}
	if err := g.dao.CreateTransactionRecord(ctx, record); err != nil {
		return fmt.Errorf("create transaction %s: %w", tx.Xid, err)
	}
	return nil
}

func (g *GormTXStore) Update(ctx context.Context, tx *pkg.Transaction) error {
	record, err := toRecordPO(tx)
	if err != nil {
		return err
	}
	record.Version = tx.Version + 1
	record.LastUpdateTime = pkg.Now()

	affected, err := g.dao.UpdateTransactionRecord(ctx, record, tx.Version)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.Xid, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: expect version %d, xid: %s", pkg.ErrOptimisticLock, tx.Version, tx.Xid)
	}
	tx.Version, tx.LastUpdateTime = record.Version, record.LastUpdateTime
	return nil
}

func (g *GormTXStore) Delete(ctx context.Context, tx *pkg.Transaction) error {
	return g.dao.DeleteTransactionRecord(ctx, tx.Xid.GlobalHex(), tx.Xid.BranchHex())
}

func (g *GormTXStore) FindByXid(ctx context.Context, xid pkg.TransactionXid) (*pkg.Transaction, error) {
	records, err := g.dao.GetTransactionRecords(ctx, DAO.WithXid(xid.GlobalHex(), xid.BranchHex()))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return toTransaction(records[0])
}

func (g *GormTXStore) FindAllUnmodifiedSince(ctx context.Context, t time.Time) ([]*pkg.Transaction, error) {
	records, err := g.dao.GetTransactionRecords(ctx, DAO.WithUnmodifiedSince(t.UTC()), DAO.WithOrderByLastUpdate())
	if err != nil {
		return nil, err
	}

	txs := make([]*pkg.Transaction, 0, len(records))
	for _, record := range records {
		tx, err := toTransaction(record)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func toRecordPO(tx *pkg.Transaction) (*DAO.TransactionRecordPO, error) {
	content, err := pkg.EncodeContent(tx.Participants())
	if err != nil {
		return nil, err
	}
	return &DAO.TransactionRecordPO{
		GlobalTxID:      tx.Xid.GlobalHex(),
		BranchQualifier: tx.Xid.BranchHex(),
		Status:          int(tx.Status()),
		Role:            int(tx.Role),
		RetriedCount:    tx.RetriedCount,
		Version:         tx.Version,
		CreateTime:      tx.CreateTime,
		LastUpdateTime:  tx.LastUpdateTime,
		Content:         content,
	}, nil
}

func toTransaction(record *DAO.TransactionRecordPO) (*pkg.Transaction, error) {
	xid, err := pkg.XidFromHex(record.GlobalTxID, record.BranchQualifier)
	if err != nil {
		return nil, err
	}
	status, err := pkg.TransactionStatusOf(record.Status)
	if err != nil {
		return nil, err
	}
	role, err := pkg.TransactionRoleOf(record.Role)
	if err != nil {
		return nil, err
	}
	participants, err := pkg.DecodeContent(record.Content)
	if err != nil {
		return nil, err
	}
	return pkg.RestoreTransaction(xid, status, role, participants, record.RetriedCount, record.Version,
		record.CreateTime.UTC(), record.LastUpdateTime.UTC()), nil
}

// ResetRetriedCount 锁定记录并清零重试次数，使超出重试上限的事务重新进入恢复
func (g *GormTXStore) ResetRetriedCount(ctx context.Context, xid pkg.TransactionXid) error {
	do := func(ctx context.Context, dao *DAO.TransactionRecordDAO, record *DAO.TransactionRecordPO) error {
		expect := record.Version
		record.RetriedCount = 0
		record.Version++
		record.LastUpdateTime = pkg.Now()
		affected, err := dao.UpdateTransactionRecord(ctx, record, expect)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: xid: %s", pkg.ErrOptimisticLock, xid)
		}
		return nil
	}
	err := g.dao.LockAndDo(ctx, xid.GlobalHex(), xid.BranchHex(), do)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: xid: %s", pkg.ErrNoExistedTransaction, xid)
	}
	return err
}
