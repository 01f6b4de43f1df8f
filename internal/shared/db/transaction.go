// Package db provides database utilities shared by the repositories:
// transaction propagation and deadlock retry.
package db

import (
	"context"

	"gorm.io/gorm"
)

// txKey is the context key carrying an open transaction.
type txKey struct{}

// TransactionManager starts transactions and threads them through
// context so repositories join the caller's transaction transparently.
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// RunInTransaction executes fn inside a transaction. The transaction
// handle rides in the derived context; repository calls made with that
// context write through it. An error from fn rolls everything back.
func (tm *TransactionManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// GetTxFromContext returns the transaction carried by ctx, or defaultDB
// bound to ctx when the caller is not inside one.
func GetTxFromContext(ctx context.Context, defaultDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return defaultDB.WithContext(ctx)
}
