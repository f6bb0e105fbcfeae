package internel

import (
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"TCCTransaction/redis_lock"
	"TCCTransaction/third_party"
	"context"
	"errors"
	"fmt"
)

type BranchStatus string

func (c BranchStatus) String() string {
	return string(c)
}

const (
	TryStatus     BranchStatus = "Try"
	ConfirmStatus BranchStatus = "Confirm"
	CancelStatus  BranchStatus = "Cancel"
)

type DataStatus string

func (ds DataStatus) String() string {
	return string(ds)
}

const (
	DataFrozen  DataStatus = "冻结态"
	DataSuccess DataStatus = "成功态"
)

var (
	// ErrResourceOccupied 业务数据已被其他事务冻结
	ErrResourceOccupied = errors.New("reservation: resource occupied")
	// ErrBranchCancelled 分支已被cancel(空回滚)，拒绝迟到的try
	ErrBranchCancelled = errors.New("reservation: branch already cancelled")
	// ErrBranchConfirmed 分支已confirm，不能再cancel
	ErrBranchConfirmed = errors.New("reservation: branch already confirmed")
)

// ReservationComponent 基于redis的资源预留参与方，try冻结数据，confirm转为成功态，cancel释放
// 三个方法均以分支xid幂等
type ReservationComponent struct {
	//资源的唯一标识id
	id string

	client *third_party.RedisClient
}

func NewReservationComponent(id string, client *third_party.RedisClient) *ReservationComponent {
	return &ReservationComponent{id: id, client: client}
}

func (rc *ReservationComponent) ID() string {
	return rc.id
}

// Markers 注册时使用的可补偿标记
func (rc *ReservationComponent) Markers() map[string]model.Compensable {
	return map[string]model.Compensable{
		"Reserve": {ConfirmMethod: "ConfirmReserve", CancelMethod: "CancelReserve"},
	}
}

func (rc *ReservationComponent) lock(ctx context.Context, tc *pkg.TransactionContext) (*redis_lock.RedisLock, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: reservation %s called without transaction context", pkg.ErrSystem, rc.id)
	}
	lock := redis_lock.NewRedisLock(pkg.BuildBranchLockKey(rc.id, tc.Xid), rc.client,
		redis_lock.WithBlock(), redis_lock.WithExpireSeconds(redis_lock.DefaultLockExpireSeconds))
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock, nil
}

func (rc *ReservationComponent) branchStatus(ctx context.Context, xid pkg.TransactionXid) (string, error) {
	status, err := rc.client.Get(ctx, pkg.BuildBranchKey(rc.id, xid))
	if err != nil && !errors.Is(err, redis_lock.ErrNil) {
		return "", err
	}
	return status, nil
}

func (rc *ReservationComponent) Reserve(ctx context.Context, tc *pkg.TransactionContext, bizID string) (bool, error) {
	lock, err := rc.lock(ctx, tc)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	//幂等性获取分支状态
	status, err := rc.branchStatus(ctx, tc.Xid)
	if err != nil {
		return false, err
	}
	switch status {
	case TryStatus.String(), ConfirmStatus.String():
		return true, nil
	case CancelStatus.String():
		return false, fmt.Errorf("%w, resource: %s, xid: %s", ErrBranchCancelled, rc.id, tc.Xid)
	default:
	}

	if _, err := rc.client.Set(ctx, pkg.BuildBranchDetailKey(rc.id, tc.Xid), bizID); err != nil {
		return false, err
	}

	reply, err := rc.client.SetNX(ctx, pkg.BuildDataKey(rc.id, bizID), DataFrozen.String())
	if err != nil {
		return false, err
	}
	if reply != 1 {
		return false, fmt.Errorf("%w, resource: %s, biz_id: %s", ErrResourceOccupied, rc.id, bizID)
	}

	if _, err := rc.client.Set(ctx, pkg.BuildBranchKey(rc.id, tc.Xid), TryStatus.String()); err != nil {
		return false, err
	}
	return true, nil
}

func (rc *ReservationComponent) ConfirmReserve(ctx context.Context, tc *pkg.TransactionContext, bizID string) (bool, error) {
	lock, err := rc.lock(ctx, tc)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	status, err := rc.branchStatus(ctx, tc.Xid)
	if err != nil {
		return false, err
	}
	switch status {
	case ConfirmStatus.String():
		return true, nil
	case TryStatus.String():
	default:
		return false, fmt.Errorf("%w: invalid branch status %q, resource: %s, xid: %s", pkg.ErrSystem, status, rc.id, tc.Xid)
	}

	bizID, err = rc.client.Get(ctx, pkg.BuildBranchDetailKey(rc.id, tc.Xid))
	if err != nil {
		return false, err
	}

	dataStatus, err := rc.client.Get(ctx, pkg.BuildDataKey(rc.id, bizID))
	if err != nil {
		return false, err
	}
	if dataStatus == DataFrozen.String() {
		if _, err := rc.client.Set(ctx, pkg.BuildDataKey(rc.id, bizID), DataSuccess.String()); err != nil {
			return false, err
		}
	}

	if _, err := rc.client.Set(ctx, pkg.BuildBranchKey(rc.id, tc.Xid), ConfirmStatus.String()); err != nil {
		return false, err
	}
	return true, nil
}

func (rc *ReservationComponent) CancelReserve(ctx context.Context, tc *pkg.TransactionContext, bizID string) (bool, error) {
	lock, err := rc.lock(ctx, tc)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	status, err := rc.branchStatus(ctx, tc.Xid)
	if err != nil {
		return false, err
	}
	switch status {
	case ConfirmStatus.String():
		return false, fmt.Errorf("%w, resource: %s, xid: %s", ErrBranchConfirmed, rc.id, tc.Xid)
	case CancelStatus.String():
		return true, nil
	case TryStatus.String():
		bizID, err = rc.client.Get(ctx, pkg.BuildBranchDetailKey(rc.id, tc.Xid))
		if err != nil {
			return false, err
		}
		if err := rc.client.Del(ctx, pkg.BuildDataKey(rc.id, bizID)); err != nil {
			return false, err
		}
	default:
		//try未执行过，记录cancel防止悬挂
	}

	if _, err := rc.client.Set(ctx, pkg.BuildBranchKey(rc.id, tc.Xid), CancelStatus.String()); err != nil {
		return false, err
	}
	return true, nil
}

// DataStatusOf 查询业务数据状态，不存在时返回空串
func (rc *ReservationComponent) DataStatusOf(ctx context.Context, bizID string) (string, error) {
	status, err := rc.client.Get(ctx, pkg.BuildDataKey(rc.id, bizID))
	if errors.Is(err, redis_lock.ErrNil) {
		return "", nil
	}
	return status, err
}
