package internel

import (
	"TCCTransaction/log"
	"TCCTransaction/pkg"
	"TCCTransaction/third_party"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/demdxx/gocast"
)

const DefaultRedisKeyPrefix = "tcc:"

// RedisTXStore 每个事务一个hash，另以最后更新时间(毫秒)为分数维护有序集合索引
type RedisTXStore struct {
	client *third_party.RedisClient
	prefix string
}

func NewRedisTXStore(client *third_party.RedisClient, prefix string) *RedisTXStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisTXStore{client: client, prefix: prefix}
}

func (r *RedisTXStore) Create(ctx context.Context, tx *pkg.Transaction) error {
	content, err := pkg.EncodeContent(tx.Participants())
	if err != nil {
		return err
	}

	keysAndArgs := []interface{}{
		pkg.BuildTXKey(r.prefix, tx.Xid), pkg.BuildTXIndexKey(r.prefix),
		tx.Xid.GlobalHex(),
		tx.Xid.BranchHex(),
		int(tx.Status()),
		int(tx.Role),
		tx.RetriedCount,
		strconv.FormatInt(tx.Version, 10),
		formatTime(tx.CreateTime),
		formatTime(tx.LastUpdateTime),
		content,
		tx.LastUpdateTime.UnixMilli(),
	}
	reply, err := r.client.Eval(ctx, third_party.LuaCreateTransaction, 2, keysAndArgs)
	if err != nil {
		return fmt.Errorf("create transaction %s: %w", tx.Xid, err)
	}
	if ret, _ := reply.(int64); ret != 1 {
		return fmt.Errorf("%w, xid: %s", pkg.ErrTransactionExisted, tx.Xid)
	}
	return nil
}

func (r *RedisTXStore) Update(ctx context.Context, tx *pkg.Transaction) error {
	content, err := pkg.EncodeContent(tx.Participants())
	if err != nil {
		return err
	}
	version := tx.Version + 1
	now := pkg.Now()

	keysAndArgs := []interface{}{
		pkg.BuildTXKey(r.prefix, tx.Xid), pkg.BuildTXIndexKey(r.prefix),
		strconv.FormatInt(tx.Version, 10),
		int(tx.Status()),
		tx.RetriedCount,
		strconv.FormatInt(version, 10),
		formatTime(now),
		content,
		now.UnixMilli(),
	}
	reply, err := r.client.Eval(ctx, third_party.LuaUpdateTransaction, 2, keysAndArgs)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.Xid, err)
	}
	if ret, _ := reply.(int64); ret != 1 {
		return fmt.Errorf("%w: expect version %d, xid: %s", pkg.ErrOptimisticLock, tx.Version, tx.Xid)
	}
	tx.Version, tx.LastUpdateTime = version, now
	return nil
}

func (r *RedisTXStore) Delete(ctx context.Context, tx *pkg.Transaction) error {
	keysAndArgs := []interface{}{pkg.BuildTXKey(r.prefix, tx.Xid), pkg.BuildTXIndexKey(r.prefix)}
	_, err := r.client.Eval(ctx, third_party.LuaDeleteTransaction, 2, keysAndArgs)
	return err
}

func (r *RedisTXStore) FindByXid(ctx context.Context, xid pkg.TransactionXid) (*pkg.Transaction, error) {
	return r.findByKey(ctx, pkg.BuildTXKey(r.prefix, xid))
}

func (r *RedisTXStore) findByKey(ctx context.Context, key string) (*pkg.Transaction, error) {
	fields, err := r.client.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fromHash(fields)
}

func (r *RedisTXStore) FindAllUnmodifiedSince(ctx context.Context, t time.Time) ([]*pkg.Transaction, error) {
	keys, err := r.client.ZRangeByScore(ctx, pkg.BuildTXIndexKey(r.prefix), "-inf", strconv.FormatInt(t.UnixMilli(), 10))
	if err != nil {
		return nil, err
	}

	txs := make([]*pkg.Transaction, 0, len(keys))
	for _, key := range keys {
		tx, err := r.findByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		//索引与记录之间存在删除竞争，记录已不存在则清理索引
		if tx == nil {
			if err := r.client.ZRem(ctx, pkg.BuildTXIndexKey(r.prefix), key); err != nil {
				log.WarnContextf(ctx, "tcc: remove stale index %s err: %v", key, err)
			}
			continue
		}
		if tx.LastUpdateTime.Before(t) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// ResetRetriedCount 清零重试次数，使超出重试上限的事务重新进入恢复
func (r *RedisTXStore) ResetRetriedCount(ctx context.Context, xid pkg.TransactionXid) error {
	tx, err := r.FindByXid(ctx, xid)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w: xid: %s", pkg.ErrNoExistedTransaction, xid)
	}
	tx.RetriedCount = 0
	return r.Update(ctx, tx)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) time.Time {
	return time.Unix(0, gocast.ToInt64(s)).UTC()
}

func fromHash(fields map[string]string) (*pkg.Transaction, error) {
	xid, err := pkg.XidFromHex(fields["global_tx_id"], fields["branch_qualifier"])
	if err != nil {
		return nil, err
	}
	status, err := pkg.TransactionStatusOf(gocast.ToInt(fields["status"]))
	if err != nil {
		return nil, err
	}
	role, err := pkg.TransactionRoleOf(gocast.ToInt(fields["role"]))
	if err != nil {
		return nil, err
	}
	participants, err := pkg.DecodeContent([]byte(fields["content"]))
	if err != nil {
		return nil, err
	}
	return pkg.RestoreTransaction(xid, status, role, participants,
		gocast.ToInt(fields["retried_count"]),
		gocast.ToInt64(fields["version"]),
		parseTime(fields["create_time"]),
		parseTime(fields["last_update_time"])), nil
}
