// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsInfo 定义了全局的统计信息。
type metricsInfo struct {
	// CommandTotal 统计已执行的命令数量，标签为分组名称和命令类型（query、exec、scalar、batch）。
	CommandTotal *prometheus.CounterVec

	// CommandFailed 统计执行失败的命令数量，标签同 CommandTotal。
	CommandFailed *prometheus.CounterVec

	// RouteTotal 统计分布式路由的结果，标签为分组名称和被选中的角色（Master、Slave）。
	RouteTotal *prometheus.CounterVec

	// SyncStale 统计从库落后于主库的次数，标签为分组名称。
	SyncStale *prometheus.CounterVec

	// ScopeActive 记录当前存活的环境事务数量。
	ScopeActive prometheus.Gauge
}

var sharedMetrics = &metricsInfo{
	CommandTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdata_command_total",
		Help: "The total number of executed commands.",
	}, []string{"group", "kind"}),
	CommandFailed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdata_command_failed_total",
		Help: "The total number of failed commands.",
	}, []string{"group", "kind"}),
	RouteTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdata_route_total",
		Help: "The total number of distributed routing decisions.",
	}, []string{"group", "role"}),
	SyncStale: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdata_sync_stale_total",
		Help: "The total number of times a slave was found behind its master.",
	}, []string{"group"}),
	ScopeActive: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xdata_scope_active",
		Help: "The number of live ambient transaction scopes.",
	}),
}

// 提供了统计信息的全局访问点。
func Metrics() *metricsInfo {
	return sharedMetrics
}
