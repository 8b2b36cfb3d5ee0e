// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XLoom"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/illumitacit/gostd/quit"
)

// refresher 是支持批量刷新同步状态的同步器。
type refresher interface {
	Refresh(ctx context.Context, group *Group) error
}

var (
	// monitorMu 保护 monitorStop。
	monitorMu sync.Mutex

	// monitorStop 是监控线程的退出信号。
	monitorStop chan struct{}

	// monitorWait 用于等待监控线程退出。
	monitorWait sync.WaitGroup
)

// StartMonitor 启动同步状态的监控线程，按 interval 周期刷新所有分组从库的同步判定。
// 已启动的监控线程会先被停止，interval <= 0 时仅停止。
// 监控线程在收到 SIGTERM、SIGINT 或 quit 信号时退出。
func StartMonitor(interval time.Duration) {
	StopMonitor()
	if interval <= 0 {
		return
	}

	monitorMu.Lock()
	defer monitorMu.Unlock()
	stop := make(chan struct{})
	monitorStop = stop

	wg := sync.WaitGroup{}
	wg.Add(1)
	XLoom.RunAsyncT2(func(stop chan struct{}, doneOnce *sync.Once) {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)

		quit.GetWaiter().Add(1)
		monitorWait.Add(1)
		doneOnce.Do(func() { // 确保只调用一次，否则recover后会重复调用
			wg.Done()
		})
		defer func() {
			signal.Stop(sig)
			quit.GetWaiter().Done()
			monitorWait.Done()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshGroups(interval)
			case <-stop:
				return
			case s, ok := <-sig:
				if ok {
					XLog.Notice("XData.Monitor: receive signal of %v.", s.String())
				}
				return
			case <-quit.GetQuitChannel():
				XLog.Notice("XData.Monitor: receive signal of QUIT.")
				return
			}
		}
	}, stop, &sync.Once{}, true)
	wg.Wait()

	XLog.Notice("XData.Monitor: monitor has been started, interval is %v.", interval)
}

// StopMonitor 停止监控线程并等待其退出。
func StopMonitor() {
	monitorMu.Lock()
	stop := monitorStop
	monitorStop = nil
	monitorMu.Unlock()
	if stop != nil {
		close(stop)
		monitorWait.Wait()
		XLog.Notice("XData.Monitor: monitor has been stopped.")
	}
}

// refreshGroups 刷新所有设置了同步器的分组。
func refreshGroups(timeout time.Duration) {
	start := XTime.GetMicrosecond()
	count := 0
	for _, name := range Groups() {
		r, ok := synchronizerOf(name).(refresher)
		if !ok {
			continue
		}
		group, err := Lookup(name)
		if err != nil || len(group.Slaves) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := r.Refresh(ctx, group); err != nil {
			XLog.Warn("XData.Monitor.Refresh(%v): %v", name, err)
		}
		cancel()
		count++
	}
	if count > 0 && XLog.Able(XLog.LevelInfo) {
		XLog.Info("XData.Monitor: [Cost:%.2fms] refreshed %v group(s).", float64(XTime.GetMicrosecond()-start)/1e3, count)
	}
}
