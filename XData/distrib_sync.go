// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSyncTable 是同步标记表的默认名称。
	DefaultSyncTable = "sys_sync_marker"

	// DefaultSyncColumn 是同步标记列的默认名称。
	DefaultSyncColumn = "version"

	// DefaultSyncInterval 是同步判定结果的默认缓存时长。
	DefaultSyncInterval = time.Second
)

// Synchronizer 定义了主从同步状态的判定。
type Synchronizer interface {
	// CatchUp 判断从库是否已追上主库。
	CatchUp(ctx context.Context, master, slave *Source) (bool, error)

	// Stamp 在主库上推进同步标记，通常在写操作成功后调用。
	Stamp(ctx context.Context, master *Source) error
}

// verdict 是缓存的同步判定结果。
type verdict struct {
	caught bool
	at     time.Time
}

// DistributedSynchronizerBase 基于同步标记表判定从库是否已追上主库。
//
// 标记表仅包含一个整型列，主库每次写入后将其加一，
// 从库的标记值不小于主库时视为已同步。主库没有标记行时视为已同步，从库没有标记行时视为落后。
// 判定结果按从库缓存 Interval 时长，Stamp 会清除所有缓存的判定。
type DistributedSynchronizerBase struct {
	Table    string        // 标记表名称
	Column   string        // 标记列名称
	Interval time.Duration // 判定结果的缓存时长，<= 0 时不缓存

	verdicts sync.Map // 从库别名 → verdict
}

// NewSynchronizer 创建同步器，空的参数使用默认值。
func NewSynchronizer(table, column string, interval time.Duration) *DistributedSynchronizerBase {
	if table == "" {
		table = DefaultSyncTable
	}
	if column == "" {
		column = DefaultSyncColumn
	}
	return &DistributedSynchronizerBase{Table: table, Column: column, Interval: interval}
}

// Bootstrap 在数据源上创建标记表（若不存在）。
func (s *DistributedSynchronizerBase) Bootstrap(ctx context.Context, src *Source) error {
	p := src.Provider()
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGINT NOT NULL)", p.Quote(s.Table), p.Quote(s.Column))
	if _, err := src.DB().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("XData.Synchronizer.Bootstrap(%v): %w", src.Name, err)
	}
	return nil
}

// CatchUp 并发读取主库和从库的标记值并进行比较。
func (s *DistributedSynchronizerBase) CatchUp(ctx context.Context, master, slave *Source) (bool, error) {
	if s.Interval > 0 {
		if v, ok := s.verdicts.Load(slave.Name); ok {
			if vv := v.(verdict); time.Since(vv.at) < s.Interval {
				return vv.caught, nil
			}
		}
	}

	var mv, sv any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { mv, err = s.version(gctx, master); return })
	g.Go(func() (err error) { sv, err = s.version(gctx, slave); return })
	if err := g.Wait(); err != nil {
		s.verdicts.Delete(slave.Name)
		return false, err
	}

	caught := mv == nil || (sv != nil && compareVersion(sv, mv) >= 0)
	if !caught {
		Metrics().SyncStale.WithLabelValues(slave.Group).Inc()
		XLog.Warn("XData.Synchronizer.CatchUp(%v): slave is behind master %v, version %v < %v.", slave.Name, master.Name, sv, mv)
	}
	s.verdicts.Store(slave.Name, verdict{caught: caught, at: time.Now()})
	return caught, nil
}

// version 读取数据源上的标记值，没有标记行时返回 nil。
func (s *DistributedSynchronizerBase) version(ctx context.Context, src *Source) (any, error) {
	p := src.Provider()
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", p.Quote(s.Column), p.Quote(s.Table))
	var v any
	if err := src.DB().QueryRowContext(ctx, query).Scan(&v); err != nil {
		return nil, fmt.Errorf("XData.Synchronizer.Version(%v): %w", src.Name, err)
	}
	return normalizeValue(v), nil
}

// Stamp 将主库的标记值加一，没有标记行时插入值为 1 的标记行。
func (s *DistributedSynchronizerBase) Stamp(ctx context.Context, master *Source) error {
	p := master.Provider()
	table, column := p.Quote(s.Table), p.Quote(s.Column)
	result, err := master.DB().ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = %s + 1", table, column, column))
	if err != nil {
		return fmt.Errorf("XData.Synchronizer.Stamp(%v): %w", master.Name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := master.DB().ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (1)", table, column)); err != nil {
			return fmt.Errorf("XData.Synchronizer.Stamp(%v): %w", master.Name, err)
		}
	}
	s.verdicts.Clear()
	return nil
}

// Invalidate 清除从库缓存的判定结果。
func (s *DistributedSynchronizerBase) Invalidate(slave *Source) {
	s.verdicts.Delete(slave.Name)
}

// Refresh 重新判定分组中所有从库的同步状态。
func (s *DistributedSynchronizerBase) Refresh(ctx context.Context, group *Group) error {
	var g errgroup.Group
	for _, slave := range group.Slaves {
		s.Invalidate(slave)
		g.Go(func() error {
			_, err := s.CatchUp(ctx, group.Master, slave)
			return err
		})
	}
	return g.Wait()
}

// compareVersion 比较两个标记值，时间按时间比较，整数和浮点数按数值比较，其余按字符串比较。
func compareVersion(a, b any) int {
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return strings.Compare(toString(a), toString(b))
}

var (
	// syncMap 存储了分组的同步器，键为分组名称，值为 Synchronizer。
	syncMap sync.Map
)

// SetSynchronizer 设置分组的同步器，s 为 nil 时移除。
func SetSynchronizer(group string, s Synchronizer) {
	if s == nil {
		syncMap.Delete(group)
		return
	}
	syncMap.Store(group, s)
}

// synchronizerOf 获取分组的同步器，未设置时返回 nil。
func synchronizerOf(group string) Synchronizer {
	if v, ok := syncMap.Load(group); ok {
		return v.(Synchronizer)
	}
	return nil
}

// stampGroup 推进主库所在分组的同步标记，失败时仅记录警告。
func stampGroup(ctx context.Context, src *Source) {
	if src == nil || src.Role != RoleMaster {
		return
	}
	if s := synchronizerOf(src.Group); s != nil {
		if err := s.Stamp(ctx, src); err != nil {
			XLog.Warn("XData.Stamp(%v): %v", src.Group, err)
		}
	}
}
