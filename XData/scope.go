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
	"sync/atomic"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XString"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/petermattis/goid"
)

var (
	// ErrScopeNotFound 表示当前 goroutine 没有事务范围。
	ErrScopeNotFound = errors.New("XData: transaction scope not found")

	// ErrScopeCompleted 表示事务范围的当前层级已经调用过 Complete。
	ErrScopeCompleted = errors.New("XData: transaction scope already completed")

	// ErrScopeAborted 表示内层的事务范围未完成，整个事务范围已回滚。
	ErrScopeAborted = errors.New("XData: transaction scope aborted by inner level")
)

var (
	// scopeID 是事务范围 ID 的原子计数器。
	scopeID int64

	// scopeMap 存储了事务范围，键为 goroutine ID，值为 *TransactionScope。
	scopeMap sync.Map

	// scopePool 是事务范围的对象池。
	scopePool = sync.Pool{New: func() any { return new(TransactionScope) }}
)

// TransactionScope 是绑定至 goroutine 的环境事务。
// 范围内的 Database 操作会在首次访问某个连接串时开启事务并登记，
// 最外层的 Defer 统一提交或回滚所有登记的事务。
type TransactionScope struct {
	id     int                          // 事务范围 ID
	time   int                          // 开始时间（微秒）
	levels []bool                       // 各层级是否已完成
	doomed bool                         // 是否有层级未完成
	conns  *TransactionScopeConnections // 登记的事务
}

// reset 重置事务范围状态。
func (s *TransactionScope) reset() {
	s.id = 0
	s.time = 0
	s.levels = s.levels[:0]
	s.doomed = false
	s.conns = nil
}

// ID 返回事务范围 ID。
func (s *TransactionScope) ID() int { return s.id }

// Depth 返回嵌套的层数。
func (s *TransactionScope) Depth() int { return len(s.levels) }

// Connections 返回登记的事务。
func (s *TransactionScope) Connections() *TransactionScopeConnections { return s.conns }

// CurrentScope 返回当前 goroutine 的事务范围，不存在时返回 nil。
func CurrentScope() *TransactionScope {
	if v, ok := scopeMap.Load(goid.Get()); ok {
		return v.(*TransactionScope)
	}
	return nil
}

// Scope 开始事务范围并返回其 ID，已存在时嵌套一层，opts 仅对最外层有效。
// 事务范围仅对当前 goroutine 有效。
//
// 使用示例：
//
//	XData.Scope()
//	defer XData.Defer()
//	// 数据操作 ...
//	XData.Complete()
func Scope(opts ...*sql.TxOptions) int {
	gid := goid.Get()
	if v, ok := scopeMap.Load(gid); ok {
		s := v.(*TransactionScope)
		s.levels = append(s.levels, false)
		return s.id
	}

	s := scopePool.Get().(*TransactionScope)
	s.id = int(atomic.AddInt64(&scopeID, 1))
	s.time = XTime.GetMicrosecond()
	s.levels = append(s.levels[:0], false)
	s.conns = newScopeConnections(nil)
	if len(opts) > 0 {
		s.conns.opts = opts[0]
	}
	scopeMap.Store(gid, s)
	Metrics().ScopeActive.Inc()

	tag := XLog.Tag()
	if tag != nil { // 设置日志标签
		tag.Set("Go", XString.ToString(int(gid)))
		tag.Set("Scope", XString.ToString(s.id))
	}

	XLog.Info("XData.Scope: scope has been started.")
	return s.id
}

// Complete 标记当前层级的事务范围为已完成。
func Complete() error {
	s := CurrentScope()
	if s == nil {
		return ErrScopeNotFound
	}
	top := len(s.levels) - 1
	if s.levels[top] {
		return ErrScopeCompleted
	}
	s.levels[top] = true
	return nil
}

// Defer 结束当前层级的事务范围。
// 未调用 Complete 的层级会使整个范围回滚；最外层结束时，
// 若所有层级均已完成则提交所有登记的事务，否则全部回滚。
// 最外层已完成但内层未完成时返回 ErrScopeAborted。
//
// 此函数应通过 defer 调用，确保每个 Scope 都有对应的 Defer。
func Defer() error {
	gid := goid.Get()
	v, ok := scopeMap.Load(gid)
	if !ok {
		XLog.Error("XData.Defer: scope was not found.")
		return ErrScopeNotFound
	}
	s := v.(*TransactionScope)
	top := len(s.levels) - 1
	completed := s.levels[top]
	s.levels = s.levels[:top]
	if !completed {
		s.doomed = true
	}
	if len(s.levels) > 0 {
		return nil
	}

	scopeMap.Delete(gid)
	Metrics().ScopeActive.Dec()
	defer func() {
		s.reset()
		scopePool.Put(s)
	}()

	count := s.conns.Len()
	var err error
	if s.doomed {
		err = s.conns.rollback()
		if completed && err == nil {
			err = ErrScopeAborted
		}
	} else {
		err = s.conns.commit()
		if err == nil {
			s.conns.stamp()
		}
	}

	if err != nil && !errors.Is(err, ErrScopeAborted) {
		XLog.Error("XData.Defer: [Cost:%.2fms] scope of %v connection(s) failed: %v", float64(XTime.GetMicrosecond()-s.time)/1e3, count, err)
	} else {
		state := "committed"
		if s.doomed {
			state = "rolled back"
		}
		XLog.Info("XData.Defer: [Cost:%.2fms] scope of %v connection(s) has been %v.", float64(XTime.GetMicrosecond()-s.time)/1e3, count, state)
	}
	return err
}

// TransactionScopeConnections 是事务范围内按连接串缓存的事务。
// 驱动类型和地址相同的数据源共享同一个事务，提交后各数据源所在的分组均会推进同步标记。
type TransactionScopeConnections struct {
	mu      sync.Mutex
	opts    *sql.TxOptions
	txs     map[string]*sql.Tx
	sources map[string]*Source
	order   []string
	groups  map[string]*Source // 分组名称 → 登记过的数据源
	stamps  []string           // 按登记顺序排列的分组名称
}

// newScopeConnections 创建事务缓存。
func newScopeConnections(opts *sql.TxOptions) *TransactionScopeConnections {
	return &TransactionScopeConnections{
		opts:    opts,
		txs:     make(map[string]*sql.Tx),
		sources: make(map[string]*Source),
		groups:  make(map[string]*Source),
	}
}

// Len 返回登记的事务数量。
func (c *TransactionScopeConnections) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// get 返回数据源已登记的事务，未登记时返回 nil。
func (c *TransactionScopeConnections) get(src *Source) *sql.Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs[src.identity()]
}

// enlist 返回数据源已登记的事务，未登记时开启并登记。
// 事务的生命周期由事务范围管理，不受 ctx 取消的影响。
func (c *TransactionScopeConnections) enlist(ctx context.Context, src *Source) (*sql.Tx, error) {
	key := src.identity()
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := c.txs[key]
	if tx == nil {
		var err error
		if tx, err = src.DB().BeginTx(context.WithoutCancel(ctx), c.opts); err != nil {
			return nil, fmt.Errorf("XData.Scope.Enlist(%v): %w", src.Name, err)
		}
		c.txs[key] = tx
		c.sources[key] = src
		c.order = append(c.order, key)
		XLog.Info("XData.Scope.Enlist(%v): transaction has been enlisted.", src.Name)
	}
	if _, ok := c.groups[src.Group]; !ok {
		c.groups[src.Group] = src
		c.stamps = append(c.stamps, src.Group)
	}
	return tx, nil
}

// commit 按登记顺序提交事务，某个事务提交失败时回滚其余的事务。
func (c *TransactionScopeConnections) commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, key := range c.order {
		if err := c.txs[key].Commit(); err != nil {
			errs := []error{fmt.Errorf("XData.Scope.Commit(%v): %w", c.sources[key].Name, err)}
			for _, rest := range c.order[i+1:] {
				if rerr := c.txs[rest].Rollback(); rerr != nil {
					errs = append(errs, fmt.Errorf("XData.Scope.Rollback(%v): %w", c.sources[rest].Name, rerr))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// rollback 回滚所有登记的事务。
func (c *TransactionScopeConnections) rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, key := range c.order {
		if err := c.txs[key].Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("XData.Scope.Rollback(%v): %w", c.sources[key].Name, err))
		}
	}
	return errors.Join(errs...)
}

// stamp 推进登记过的所有分组的同步标记。
func (c *TransactionScopeConnections) stamp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, group := range c.stamps {
		stampGroup(context.Background(), c.groups[group])
	}
}
