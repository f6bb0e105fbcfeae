package pkg

import "fmt"

func BuildTXKey(prefix string, xid TransactionXid) string {
	return fmt.Sprintf("%sTX_key:%s_%s", prefix, xid.GlobalHex(), xid.BranchHex())
}

// BuildTXIndexKey 按最后更新时间排序的事务索引
func BuildTXIndexKey(prefix string) string {
	return fmt.Sprintf("%sTX_index", prefix)
}

func BuildRecoveryLockKey(prefix string) string {
	return fmt.Sprintf("%sTX_recovery_lock", prefix)
}

func BuildBranchKey(resourceID string, xid TransactionXid) string {
	return fmt.Sprintf("TX_branch_key:%s_%s", xid.String(), resourceID)
}

func BuildBranchDetailKey(resourceID string, xid TransactionXid) string {
	return fmt.Sprintf("TX_detail_key:%s_%s", resourceID, xid.String())
}

func BuildBranchLockKey(resourceID string, xid TransactionXid) string {
	return fmt.Sprintf("TX_lock_key:%s_%s", xid.String(), resourceID)
}

func BuildDataKey(resourceID, bizID string) string {
	return fmt.Sprintf("DATA_key:%s_%s", resourceID, bizID)
}
