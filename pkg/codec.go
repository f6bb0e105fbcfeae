package pkg

import (
	"encoding/json"
	"fmt"
	"time"
)

// 持久化内容的编码版本，升级格式时递增
const contentVersion = 1

type content struct {
	V            int            `json:"v"`
	Participants []*Participant `json:"participants"`
}

// EncodeContent 编码参与者列表，对应持久化记录中的content列
func EncodeContent(participants []*Participant) ([]byte, error) {
	if participants == nil {
		participants = []*Participant{}
	}
	body, err := json.Marshal(content{V: contentVersion, Participants: participants})
	if err != nil {
		return nil, fmt.Errorf("%w: encode participants: %v", ErrSystem, err)
	}
	return body, nil
}

func DecodeContent(data []byte) ([]*Participant, error) {
	if len(data) == 0 {
		return []*Participant{}, nil
	}
	var c content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode participants: %v", ErrSystem, err)
	}
	if c.V != contentVersion {
		return nil, fmt.Errorf("%w: unsupported content version %d", ErrSystem, c.V)
	}
	if c.Participants == nil {
		c.Participants = []*Participant{}
	}
	return c.Participants, nil
}

type record struct {
	Xid            TransactionXid `json:"xid"`
	Status         int            `json:"status"`
	Role           int            `json:"role"`
	RetriedCount   int            `json:"retriedCount"`
	Version        int64          `json:"version"`
	CreateTime     time.Time      `json:"createTime"`
	LastUpdateTime time.Time      `json:"lastUpdateTime"`
	Content        []byte         `json:"content"`
}

// MarshalTransaction 编码完整事务记录
func MarshalTransaction(t *Transaction) ([]byte, error) {
	body, err := EncodeContent(t.participants)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(record{
		Xid:            t.Xid,
		Status:         int(t.status),
		Role:           int(t.Role),
		RetriedCount:   t.RetriedCount,
		Version:        t.Version,
		CreateTime:     t.CreateTime,
		LastUpdateTime: t.LastUpdateTime,
		Content:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode transaction %s: %v", ErrSystem, t.Xid, err)
	}
	return data, nil
}

func UnmarshalTransaction(data []byte) (*Transaction, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrSystem, err)
	}
	status, err := TransactionStatusOf(r.Status)
	if err != nil {
		return nil, err
	}
	role, err := TransactionRoleOf(r.Role)
	if err != nil {
		return nil, err
	}
	participants, err := DecodeContent(r.Content)
	if err != nil {
		return nil, err
	}
	return RestoreTransaction(r.Xid, status, role, participants, r.RetriedCount, r.Version, r.CreateTime, r.LastUpdateTime), nil
}
