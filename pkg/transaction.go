package pkg

import (
	"fmt"
	"time"
)

// Transaction 事务聚合，同一时刻只属于一次执行
type Transaction struct {
	Xid            TransactionXid
	Role           TransactionRole
	RetriedCount   int
	Version        int64
	CreateTime     time.Time
	LastUpdateTime time.Time

	status       TransactionStatus
	participants []*Participant
}

// Now 持久化使用的时间，去掉单调时钟读数
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// NewRootTransaction 以新的全局事务ID创建根事务
func NewRootTransaction() *Transaction {
	now := Now()
	return &Transaction{
		Xid:            NewRootXid(),
		Role:           ROOT,
		Version:        1,
		CreateTime:     now,
		LastUpdateTime: now,
		status:         TRYING,
	}
}

// NewBranchTransaction 参与方按上游传来的xid创建分支事务
func NewBranchTransaction(tc *TransactionContext) *Transaction {
	now := Now()
	return &Transaction{
		Xid:            tc.Xid,
		Role:           PROVIDER,
		Version:        1,
		CreateTime:     now,
		LastUpdateTime: now,
		status:         TRYING,
	}
}

// RestoreTransaction 由仓储从持久化记录还原聚合
func RestoreTransaction(xid TransactionXid, status TransactionStatus, role TransactionRole, participants []*Participant,
	retriedCount int, version int64, createTime, lastUpdateTime time.Time) *Transaction {
	return &Transaction{
		Xid:            xid,
		Role:           role,
		RetriedCount:   retriedCount,
		Version:        version,
		CreateTime:     createTime,
		LastUpdateTime: lastUpdateTime,
		status:         status,
		participants:   participants,
	}
}

func (t *Transaction) Status() TransactionStatus {
	return t.status
}

// ChangeStatus 状态只能从TRYING推进一次；重复设置同一状态用于重新推进
func (t *Transaction) ChangeStatus(status TransactionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid status %d", ErrSystem, int(status))
	}
	if t.status == status {
		return nil
	}
	if t.status != TRYING || status == TRYING {
		return fmt.Errorf("%w: illegal status transition %s -> %s, xid: %s", ErrSystem, t.status, status, t.Xid)
	}
	t.status = status
	return nil
}

// Enlist 只有TRYING阶段允许加入参与者
func (t *Transaction) Enlist(p *Participant) error {
	if p == nil {
		return fmt.Errorf("%w: nil participant", ErrSystem)
	}
	if t.status != TRYING {
		return fmt.Errorf("%w: cannot enlist participant in status %s, xid: %s", ErrSystem, t.status, t.Xid)
	}
	t.participants = append(t.participants, p)
	return nil
}

// Participants 按入队顺序返回参与者
func (t *Transaction) Participants() []*Participant {
	participants := make([]*Participant, len(t.participants))
	copy(participants, t.participants)
	return participants
}

func (t *Transaction) AddRetriedCount() {
	t.RetriedCount++
}

func (t *Transaction) UpdateTime() {
	t.LastUpdateTime = Now()
}
