package pkg

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TransactionXid 标识全局事务中的一个分支
type TransactionXid struct {
	GlobalTransactionID []byte `json:"globalTransactionId"`
	BranchQualifier     []byte `json:"branchQualifier"`
}

// NewRootXid 根事务的分支标识沿用全局事务ID
func NewRootXid() TransactionXid {
	global := newUUIDBytes()
	branch := make([]byte, len(global))
	copy(branch, global)
	return TransactionXid{GlobalTransactionID: global, BranchQualifier: branch}
}

// NewBranchXid 派生出共享全局事务ID的新分支
func NewBranchXid(globalTransactionID []byte) TransactionXid {
	global := make([]byte, len(globalTransactionID))
	copy(global, globalTransactionID)
	return TransactionXid{GlobalTransactionID: global, BranchQualifier: newUUIDBytes()}
}

func newUUIDBytes() []byte {
	id := uuid.New()
	return id[:]
}

func (x TransactionXid) Equal(other TransactionXid) bool {
	return bytes.Equal(x.GlobalTransactionID, other.GlobalTransactionID) &&
		bytes.Equal(x.BranchQualifier, other.BranchQualifier)
}

func (x TransactionXid) IsRoot() bool {
	return bytes.Equal(x.GlobalTransactionID, x.BranchQualifier)
}

func (x TransactionXid) GlobalHex() string {
	return hex.EncodeToString(x.GlobalTransactionID)
}

func (x TransactionXid) BranchHex() string {
	return hex.EncodeToString(x.BranchQualifier)
}

// String 格式为 global:branch，可由ParseXid还原
func (x TransactionXid) String() string {
	return x.GlobalHex() + ":" + x.BranchHex()
}

func ParseXid(s string) (TransactionXid, error) {
	global, branch, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TransactionXid{}, fmt.Errorf("%w: malformed xid %q", ErrSystem, s)
	}
	return XidFromHex(global, branch)
}

func XidFromHex(global, branch string) (TransactionXid, error) {
	g, err := hex.DecodeString(global)
	if err != nil {
		return TransactionXid{}, fmt.Errorf("%w: malformed global transaction id %q", ErrSystem, global)
	}
	b, err := hex.DecodeString(branch)
	if err != nil {
		return TransactionXid{}, fmt.Errorf("%w: malformed branch qualifier %q", ErrSystem, branch)
	}
	if len(g) == 0 || len(b) == 0 {
		return TransactionXid{}, fmt.Errorf("%w: empty xid", ErrSystem)
	}
	return TransactionXid{GlobalTransactionID: g, BranchQualifier: b}, nil
}
