package DAO

import (
	"TCCTransaction/pkg"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type TransactionRecordDAOInterface interface {
	AutoMigrate(ctx context.Context) error
	GetTransactionRecords(ctx context.Context, opts ...QueryOption) ([]*TransactionRecordPO, error)
	CreateTransactionRecord(ctx context.Context, record *TransactionRecordPO) error
	UpdateTransactionRecord(ctx context.Context, record *TransactionRecordPO, expectVersion int64) (int64, error)
	DeleteTransactionRecord(ctx context.Context, globalTxID, branchQualifier string) error
	LockAndDo(ctx context.Context, globalTxID, branchQualifier string, do func(ctx context.Context, dao *TransactionRecordDAO, record *TransactionRecordPO) error) error
}

// TransactionRecordPO 持久化的事务记录
type TransactionRecordPO struct {
	ID              uint      `gorm:"primarykey"`
	GlobalTxID      string    `gorm:"column:global_tx_id;size:64;not null;uniqueIndex:uk_tcc_xid"`
	BranchQualifier string    `gorm:"column:branch_qualifier;size:64;not null;uniqueIndex:uk_tcc_xid"`
	Status          int       `gorm:"column:status;not null"`
	Role            int       `gorm:"column:role;not null"`
	RetriedCount    int       `gorm:"column:retried_count;not null;default:0"`
	Version         int64     `gorm:"column:version;not null"`
	CreateTime      time.Time `gorm:"column:create_time;not null"`
	LastUpdateTime  time.Time `gorm:"column:last_update_time;not null;index:idx_tcc_last_update_time"`
	Content         []byte    `gorm:"column:content"`
}

func (t TransactionRecordPO) TableName() string {
	return "tcc_transaction"
}

type TransactionRecordDAO struct {
	db *gorm.DB
}

func NewTransactionRecordDAO(db *gorm.DB) *TransactionRecordDAO {
	return &TransactionRecordDAO{
		db: db,
	}
}

// AutoMigrate 建表，生产环境一般由DBA提前建好
func (dao *TransactionRecordDAO) AutoMigrate(ctx context.Context) error {
	return dao.db.WithContext(ctx).AutoMigrate(&TransactionRecordPO{})
}

func (dao *TransactionRecordDAO) GetTransactionRecords(ctx context.Context, opts ...QueryOption) ([]*TransactionRecordPO, error) {
	var records []*TransactionRecordPO
	db := dao.db.WithContext(ctx).Model(&TransactionRecordPO{})

	for _, opt := range opts {
		db = opt(db)
	}

	return records, db.Find(&records).Error
}

// CreateTransactionRecord 同一xid已存在时返回pkg.ErrTransactionExisted
func (dao *TransactionRecordDAO) CreateTransactionRecord(ctx context.Context, record *TransactionRecordPO) error {
	return dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&TransactionRecordPO{}).
			Where("global_tx_id = ? AND branch_qualifier = ?", record.GlobalTxID, record.BranchQualifier).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return pkg.ErrTransactionExisted
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return pkg.ErrTransactionExisted
			}
			return err
		}
		return nil
	})
}

// UpdateTransactionRecord 按版本号更新，返回受影响行数，为0说明版本已变化
func (dao *TransactionRecordDAO) UpdateTransactionRecord(ctx context.Context, record *TransactionRecordPO, expectVersion int64) (int64, error) {
	res := dao.db.WithContext(ctx).Model(&TransactionRecordPO{}).
		Where("global_tx_id = ? AND branch_qualifier = ? AND version = ?", record.GlobalTxID, record.BranchQualifier, expectVersion).
		Updates(map[string]interface{}{
			"status":           record.Status,
			"retried_count":    record.RetriedCount,
			"version":          record.Version,
			"last_update_time": record.LastUpdateTime,
			"content":          record.Content,
		})
	return res.RowsAffected, res.Error
}

func (dao *TransactionRecordDAO) DeleteTransactionRecord(ctx context.Context, globalTxID, branchQualifier string) error {
	return dao.db.WithContext(ctx).
		Where("global_tx_id = ? AND branch_qualifier = ?", globalTxID, branchQualifier).
		Delete(&TransactionRecordPO{}).Error
}

// 开启事务，并根据xid查询对应的记录，然后根据记录执行do函数操作
func (dao *TransactionRecordDAO) LockAndDo(ctx context.Context, globalTxID, branchQualifier string, do func(ctx context.Context, dao *TransactionRecordDAO, record *TransactionRecordPO) error) error {
	return dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &TransactionRecordPO{}

		if err := WithLocking()(tx).
			Where("global_tx_id = ? AND branch_qualifier = ?", globalTxID, branchQualifier).
			First(record).Error; err != nil {
			return err
		}

		return do(ctx, NewTransactionRecordDAO(tx), record)
	})
}
