// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/eframework-org/GO.UTIL/XLog"
)

// DistributedMode 是路由时的读写模式。
type DistributedMode int

const (
	// ModeRead 表示只读操作，可由从库提供服务。
	ModeRead DistributedMode = iota

	// ModeWrite 表示写操作，总是由主库提供服务。
	ModeWrite
)

// String 返回模式名称。
func (m DistributedMode) String() string {
	if m == ModeWrite {
		return "Write"
	}
	return "Read"
}

// ConnectionManager 定义了分组内数据源的路由。
type ConnectionManager interface {
	// Route 根据读写模式选择数据源，返回值不得为 nil。
	Route(ctx context.Context, group *Group, mode DistributedMode) *Source
}

// DefaultDistributedConnectionManager 是 ConnectionManager 的默认实现。
//
// 写操作及没有可用从库的分组总是路由至主库；
// 读操作按权重在 Weight > 0 的从库中随机选择，分组设置了同步器时，
// 落后于主库或判定失败的从库会被排除并重新选择，所有从库均被排除时路由至主库。
type DefaultDistributedConnectionManager struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewConnectionManager 创建默认的连接管理器，seed 用于固定随机序列。
func NewConnectionManager(seed ...uint64) *DefaultDistributedConnectionManager {
	cm := &DefaultDistributedConnectionManager{}
	if len(seed) > 0 {
		cm.rnd = rand.New(rand.NewPCG(seed[0], seed[0]))
	}
	return cm
}

// defaultConnectionManager 是未指定连接管理器时使用的实例。
var defaultConnectionManager = NewConnectionManager()

// intN 返回 [0, n) 之间的随机数。
func (cm *DefaultDistributedConnectionManager) intN(n int) int {
	if cm.rnd == nil {
		return rand.IntN(n)
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.rnd.IntN(n)
}

// Route 选择数据源。
func (cm *DefaultDistributedConnectionManager) Route(ctx context.Context, group *Group, mode DistributedMode) *Source {
	src := cm.route(ctx, group, mode)
	Metrics().RouteTotal.WithLabelValues(group.Name, src.Role.String()).Inc()
	return src
}

func (cm *DefaultDistributedConnectionManager) route(ctx context.Context, group *Group, mode DistributedMode) *Source {
	if mode == ModeWrite || len(group.Slaves) == 0 {
		return group.Master
	}

	candidates := make([]*Source, 0, len(group.Slaves))
	total := 0
	for _, slave := range group.Slaves {
		if slave.Weight > 0 {
			candidates = append(candidates, slave)
			total += slave.Weight
		}
	}
	syncer := synchronizerOf(group.Name)

	for len(candidates) > 0 {
		i := cm.pick(candidates, total)
		slave := candidates[i]
		if syncer == nil {
			return slave
		}
		caught, err := syncer.CatchUp(ctx, group.Master, slave)
		if err != nil {
			XLog.Warn("XData.Route(%v): probe slave %v failed: %v", group.Name, slave.Name, err)
		} else if caught {
			return slave
		}
		total -= slave.Weight
		candidates = append(candidates[:i], candidates[i+1:]...)
	}
	return group.Master
}

// pick 按权重选择候选项的下标。
func (cm *DefaultDistributedConnectionManager) pick(candidates []*Source, total int) int {
	n := cm.intN(total)
	for i, c := range candidates {
		if n < c.Weight {
			return i
		}
		n -= c.Weight
	}
	return len(candidates) - 1
}
