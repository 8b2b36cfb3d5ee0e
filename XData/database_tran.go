// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eframework-org/GO.UTIL/XLog"
)

var (
	// ErrTransactionNotBegun 表示没有开启的事务。
	ErrTransactionNotBegun = errors.New("XData: transaction not begun")
)

// BeginTransaction 在主库上开启事务，事务中的所有命令（包括读操作）均在主库上执行。
// 重复调用会增加嵌套层数，仅最外层的 CommitTransaction 会提交事务。
// 事务的生命周期不受 ctx 取消的影响。
func (db *Database) BeginTransaction(ctx context.Context, opts *sql.TxOptions) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if db.tx != nil {
		db.depth++
		return nil
	}
	group, err := Lookup(db.name)
	if err != nil {
		return err
	}
	tx, err := group.Master.DB().BeginTx(context.WithoutCancel(ctx), opts)
	if err != nil {
		XLog.Error("XData.Database.BeginTransaction(%v): %v", db.name, err)
		return fmt.Errorf("XData.Database.BeginTransaction(%v): %w", db.name, err)
	}
	db.tx, db.txSource, db.depth = tx, group.Master, 1
	return nil
}

// CommitTransaction 结束一层事务，最外层时提交事务并推进分组的同步标记。
func (db *Database) CommitTransaction() error {
	db.mu.Lock()
	if db.tx == nil {
		db.mu.Unlock()
		return ErrTransactionNotBegun
	}
	db.depth--
	if db.depth > 0 {
		db.mu.Unlock()
		return nil
	}
	tx, src := db.tx, db.txSource
	db.tx, db.txSource = nil, nil
	db.mu.Unlock()

	if err := tx.Commit(); err != nil {
		XLog.Error("XData.Database.CommitTransaction(%v): %v", db.name, err)
		return fmt.Errorf("XData.Database.CommitTransaction(%v): %w", db.name, err)
	}
	stampGroup(context.Background(), src)
	return nil
}

// RollbackTransaction 立即回滚事务，无论嵌套了多少层。
// 之后外层的 CommitTransaction 将返回 ErrTransactionNotBegun。
func (db *Database) RollbackTransaction() error {
	db.mu.Lock()
	tx := db.tx
	db.tx, db.txSource, db.depth = nil, nil, 0
	db.mu.Unlock()
	if tx == nil {
		return ErrTransactionNotBegun
	}
	if err := tx.Rollback(); err != nil {
		XLog.Error("XData.Database.RollbackTransaction(%v): %v", db.name, err)
		return fmt.Errorf("XData.Database.RollbackTransaction(%v): %w", db.name, err)
	}
	return nil
}

// InTransaction 判断是否处于显式事务中。
func (db *Database) InTransaction() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tx != nil
}
