// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"
)

var (
	// ErrDatabaseClosed 表示数据库已关闭。
	ErrDatabaseClosed = errors.New("XData: database is closed")
)

// Option 是 Database 的可选参数。
type Option func(db *Database)

// WithConnectionManager 设置连接管理器，默认使用 DefaultDistributedConnectionManager。
func WithConnectionManager(cm ConnectionManager) Option {
	return func(db *Database) {
		if cm != nil {
			db.manager = cm
		}
	}
}

// WithTimeout 设置命令的超时时间，ExecuteReader 不受此限制。
func WithTimeout(timeout time.Duration) Option {
	return func(db *Database) { db.timeout = timeout }
}

// Database 是分组的数据访问入口，负责路由、事务及命令执行。
//
// 连接的选择顺序：
//  1. 显式事务（BeginTransaction）中的命令使用该事务；
//  2. 当前 goroutine 存在事务范围（Scope）时，使用范围内主库的事务；
//  3. 其余情况由 ConnectionManager 按读写模式选择主库或从库。
type Database struct {
	name    string
	manager ConnectionManager
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	tx       *sql.Tx
	txSource *Source
	depth    int
}

// Open 打开指定分组的数据库。
func Open(group string, opts ...Option) (*Database, error) {
	if _, err := Lookup(group); err != nil {
		return nil, err
	}
	db := &Database{name: group, manager: defaultConnectionManager}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Group 返回数据库的分组。
func (db *Database) Group() (*Group, error) { return Lookup(db.name) }

// Provider 返回主库的方言。
func (db *Database) Provider() Provider {
	if g, err := Lookup(db.name); err == nil {
		return g.Master.Provider()
	}
	return ProviderMySQL
}

// Close 关闭数据库，未结束的事务将被回滚，关闭后的操作返回 ErrDatabaseClosed。
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.tx != nil {
		err := db.tx.Rollback()
		db.tx, db.txSource, db.depth = nil, nil, 0
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("XData.Database.Close(%v): %w", db.name, err)
		}
	}
	return nil
}

// executor 是 *sql.DB 和 *sql.Tx 的公共方法。
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// conn 是路由的结果。
type conn struct {
	exec   executor // 执行命令的连接或事务
	source *Source  // 数据源
	tx     bool     // 是否处于事务中
}

// connection 按读写模式选择连接。
func (db *Database) connection(ctx context.Context, mode DistributedMode) (*conn, error) {
	db.mu.Lock()
	closed, tx, txSource := db.closed, db.tx, db.txSource
	db.mu.Unlock()
	if closed {
		return nil, ErrDatabaseClosed
	}
	if tx != nil {
		return &conn{exec: tx, source: txSource, tx: true}, nil
	}

	group, err := Lookup(db.name)
	if err != nil {
		return nil, err
	}
	if scope := CurrentScope(); scope != nil {
		tx, err := scope.conns.enlist(ctx, group.Master)
		if err != nil {
			return nil, err
		}
		return &conn{exec: tx, source: group.Master, tx: true}, nil
	}
	if src, ok := ctx.Value(pinKey{}).(*Source); ok && mode == ModeRead && src.Group == group.Name {
		return &conn{exec: src.DB(), source: src}, nil
	}
	src := db.manager.Route(ctx, group, mode)
	return &conn{exec: src.DB(), source: src}, nil
}

// pinKey 是 ctx 中固定的读数据源的键。
type pinKey struct{}

// pin 为 ctx 选定读数据源，之后使用该 ctx 的读操作均路由至同一数据源。
// 处于事务或事务范围中时原样返回。
func (db *Database) pin(ctx context.Context) (context.Context, error) {
	if db.InTransaction() || CurrentScope() != nil {
		return ctx, nil
	}
	if src, ok := ctx.Value(pinKey{}).(*Source); ok && src.Group == db.name {
		return ctx, nil
	}
	group, err := Lookup(db.name)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, pinKey{}, db.manager.Route(ctx, group, ModeRead)), nil
}

// withTimeout 为 ctx 设置命令的超时时间。
func (db *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.timeout > 0 {
		return context.WithTimeout(ctx, db.timeout)
	}
	return ctx, func() {}
}

const (
	kindQuery  = "query"
	kindExec   = "exec"
	kindScalar = "scalar"
	kindBatch  = "batch"
)

// trace 记录命令的耗时及指标。
func (db *Database) trace(kind string, src *Source, query string, start int, err error) {
	Metrics().CommandTotal.WithLabelValues(db.name, kind).Inc()
	cost := float64(XTime.GetMicrosecond()-start) / 1e3
	name := "-"
	if src != nil {
		name = src.Name
	}
	if err != nil {
		Metrics().CommandFailed.WithLabelValues(db.name, kind).Inc()
		XLog.Error("XData.Database(%v): [%v] [Cost:%.2fms] %v failed: %v", name, kind, cost, query, err)
	} else if XLog.Able(XLog.LevelInfo) {
		XLog.Info("XData.Database(%v): [%v] [Cost:%.2fms] %v", name, kind, cost, query)
	}
}
