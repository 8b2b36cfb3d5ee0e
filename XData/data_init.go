// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"strings"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
)

const (
	prefsSourcePrefix = "Data/Source/"
	prefsSyncPrefix   = "Data/Sync/"
	prefsMonitor      = "Data/Monitor/Interval"

	prefsSourceAddr   = "Addr"
	prefsSourcePool   = "Pool"
	prefsSourceConn   = "Conn"
	prefsSourceGroup  = "Group"
	prefsSourceRole   = "Role"
	prefsSourceWeight = "Weight"

	prefsSyncTable    = "Table"
	prefsSyncColumn   = "Column"
	prefsSyncInterval = "Interval"
)

func init() {
	initData(XPrefs.Asset())
}

// initData 根据首选项注册数据源、同步器并启动监控线程。
// 数据源先于同步器注册，同步器引用的分组必须存在。
func initData(prefs XPrefs.IBase) {
	if prefs == nil {
		XLog.Panic("XData.Init: prefs is nil.")
		return
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, prefsSourcePrefix) {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) != 4 || parts[2] == "" || parts[3] == "" {
			XLog.Panic("XData.Init: invalid prefs key %v.", key)
			return
		}

		base, ok := prefs.Get(key).(XPrefs.IBase)
		if !ok || base == nil {
			XLog.Error("XData.Init: invalid config for %v", key)
			continue
		}
		role, err := parseRole(base.GetString(prefsSourceRole))
		if err != nil {
			XLog.Panic("XData.Init: invalid config for %v, err: %v", key, err)
			return
		}
		src := Source{
			Name:   parts[3],
			Type:   parts[2],
			Addr:   base.GetString(prefsSourceAddr),
			Group:  base.GetString(prefsSourceGroup),
			Role:   role,
			Weight: base.GetInt(prefsSourceWeight, 1),
			Pool:   base.GetInt(prefsSourcePool),
			Conn:   base.GetInt(prefsSourceConn),
		}
		if err := Register(src); err != nil {
			XLog.Panic("XData.Init: register source %v failed, err: %v", src.Name, err)
			return
		}
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, prefsSyncPrefix) {
			continue
		}
		group := strings.TrimPrefix(key, prefsSyncPrefix)
		if group == "" || strings.Contains(group, "/") {
			XLog.Panic("XData.Init: invalid prefs key %v.", key)
			return
		}
		if _, err := Lookup(group); err != nil {
			XLog.Panic("XData.Init: synchronizer of %v failed, err: %v", group, err)
			return
		}
		base, ok := prefs.Get(key).(XPrefs.IBase)
		if !ok || base == nil {
			XLog.Error("XData.Init: invalid config for %v", key)
			continue
		}
		interval := time.Duration(base.GetInt(prefsSyncInterval, int(DefaultSyncInterval/time.Millisecond))) * time.Millisecond
		SetSynchronizer(group, NewSynchronizer(base.GetString(prefsSyncTable), base.GetString(prefsSyncColumn), interval))
		XLog.Notice("XData.Init: synchronizer of %v has been set.", group)
	}

	if interval := prefs.GetInt(prefsMonitor, 0); interval > 0 {
		StartMonitor(time.Duration(interval) * time.Millisecond)
	}
}
