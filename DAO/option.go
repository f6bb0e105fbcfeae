package DAO

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueryOption func(db *gorm.DB) *gorm.DB

func WithXid(globalTxID, branchQualifier string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("global_tx_id = ? AND branch_qualifier = ?", globalTxID, branchQualifier)
	}
}

func WithStatus(status int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	}
}

func WithUnmodifiedSince(t time.Time) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("last_update_time < ?", t)
	}
}

func WithOrderByLastUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("last_update_time ASC").Order("id ASC")
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(limit)
	}
}

// WithLocking SELECT ... FOR UPDATE，只在事务内有意义
func WithLocking() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}
