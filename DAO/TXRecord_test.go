package DAO

import (
	"TCCTransaction/pkg"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDAO(t *testing.T) *TransactionRecordDAO {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	dao := NewTransactionRecordDAO(db)
	require.NoError(t, dao.AutoMigrate(context.Background()))
	return dao
}

func newRecord(global string, status int, lastUpdate time.Time) *TransactionRecordPO {
	return &TransactionRecordPO{
		GlobalTxID:      global,
		BranchQualifier: global,
		Status:          status,
		Role:            int(pkg.ROOT),
		Version:         1,
		CreateTime:      lastUpdate,
		LastUpdateTime:  lastUpdate,
		Content:         []byte(`{"v":1,"participants":[]}`),
	}
}

func Test_create_duplicate(t *testing.T) {
	dao := newDAO(t)
	ctx := context.Background()

	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("aa", 1, time.Now().UTC())))
	err := dao.CreateTransactionRecord(ctx, newRecord("aa", 1, time.Now().UTC()))
	assert.ErrorIs(t, err, pkg.ErrTransactionExisted)
}

func Test_update_with_version(t *testing.T) {
	dao := newDAO(t)
	ctx := context.Background()
	record := newRecord("bb", 1, time.Now().UTC())
	require.NoError(t, dao.CreateTransactionRecord(ctx, record))

	record.Status, record.Version = 2, 2
	affected, err := dao.UpdateTransactionRecord(ctx, record, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	//旧版本号不再匹配
	affected, err = dao.UpdateTransactionRecord(ctx, record, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	records, err := dao.GetTransactionRecords(ctx, WithXid("bb", "bb"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Status)
	assert.EqualValues(t, 2, records[0].Version)
}

func Test_query_options(t *testing.T) {
	dao := newDAO(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("c1", 2, now.Add(-3*time.Minute))))
	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("c2", 2, now.Add(-2*time.Minute))))
	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("c3", 3, now.Add(-time.Minute))))
	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("c4", 2, now)))

	records, err := dao.GetTransactionRecords(ctx,
		WithUnmodifiedSince(now.Add(-30*time.Second)), WithOrderByLastUpdate())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{records[0].GlobalTxID, records[1].GlobalTxID, records[2].GlobalTxID})

	records, err = dao.GetTransactionRecords(ctx, WithStatus(2), WithOrderByLastUpdate(), WithLimit(2))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0].GlobalTxID)
	assert.Equal(t, "c2", records[1].GlobalTxID)
}

func Test_lock_and_do(t *testing.T) {
	dao := newDAO(t)
	ctx := context.Background()
	require.NoError(t, dao.CreateTransactionRecord(ctx, newRecord("dd", 1, time.Now().UTC())))

	err := dao.LockAndDo(ctx, "dd", "dd", func(ctx context.Context, dao *TransactionRecordDAO, record *TransactionRecordPO) error {
		record.RetriedCount = 7
		_, err := dao.UpdateTransactionRecord(ctx, record, record.Version)
		return err
	})
	require.NoError(t, err)
	records, err := dao.GetTransactionRecords(ctx, WithXid("dd", "dd"))
	require.NoError(t, err)
	assert.Equal(t, 7, records[0].RetriedCount)

	//do返回错误时整体回滚
	errAbort := errors.New("abort")
	err = dao.LockAndDo(ctx, "dd", "dd", func(ctx context.Context, dao *TransactionRecordDAO, record *TransactionRecordPO) error {
		if err := dao.DeleteTransactionRecord(ctx, record.GlobalTxID, record.BranchQualifier); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	records, err = dao.GetTransactionRecords(ctx, WithXid("dd", "dd"))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	err = dao.LockAndDo(ctx, "ee", "ee", func(context.Context, *TransactionRecordDAO, *TransactionRecordPO) error {
		return nil
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
