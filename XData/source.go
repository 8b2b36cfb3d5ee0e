// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrSourceNotFound 表示数据源或分组不存在。
	ErrSourceNotFound = errors.New("XData: source not found")

	// ErrNoMaster 表示分组中没有主库。
	ErrNoMaster = errors.New("XData: group has no master")
)

// Role 是数据源在分组中的角色。
type Role int

const (
	// RoleMaster 表示主库，负责所有写操作及事务。
	RoleMaster Role = iota

	// RoleSlave 表示从库，仅负责读操作。
	RoleSlave
)

// String 返回角色名称。
func (r Role) String() string {
	if r == RoleSlave {
		return "Slave"
	}
	return "Master"
}

// parseRole 解析角色名称，忽略大小写，空字符串视为主库。
func parseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "master":
		return RoleMaster, nil
	case "slave":
		return RoleSlave, nil
	default:
		return RoleMaster, fmt.Errorf("XData.parseRole: invalid role %q", s)
	}
}

// Source 是带有分组、角色和权重的数据源，即分布式连接串。
type Source struct {
	Name   string // 数据源别名，全局唯一
	Type   string // 驱动类型，如 MySQL、PostgreSQL、SQLite3
	Addr   string // 数据源地址
	Group  string // 所属分组，默认为 Name
	Role   Role   // 分组中的角色
	Weight int    // 从库的选择权重，<= 0 时不参与路由
	Pool   int    // 最大空闲连接数
	Conn   int    // 最大打开连接数

	db       *sql.DB
	provider Provider
}

// DB 返回数据源的连接池。
func (s *Source) DB() *sql.DB { return s.db }

// Provider 返回数据源的方言。
func (s *Source) Provider() Provider { return s.provider }

// identity 返回连接串的标识，相同驱动和地址的数据源视为同一连接串。
func (s *Source) identity() string { return strings.ToLower(s.Type) + "|" + s.Addr }

// Group 是一组数据源：一个主库和零个或多个从库。
// 注册后的 Group 不会被修改，新的注册会替换为新的 Group 实例。
type Group struct {
	Name   string    // 分组名称
	Master *Source   // 主库
	Slaves []*Source // 从库，按注册顺序排列
}

// Sources 返回分组中的所有数据源，主库在前。
func (g *Group) Sources() []*Source {
	sources := make([]*Source, 0, len(g.Slaves)+1)
	if g.Master != nil {
		sources = append(sources, g.Master)
	}
	return append(sources, g.Slaves...)
}

var (
	// sourceMu 保护 sourceMap 和 groupMap。
	sourceMu sync.RWMutex

	// sourceMap 存储了已注册的数据源，键为别名。
	sourceMap = make(map[string]*Source)

	// groupMap 存储了已注册的分组，键为分组名称。
	groupMap = make(map[string]*Group)
)

// driverNameOf 将驱动类型转换为 database/sql 及 Beego ORM 使用的驱动名称。
func driverNameOf(driverType string) string {
	switch t := strings.ToLower(driverType); t {
	case "mysql":
		return "mysql"
	case "tidb":
		return "tidb"
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return t
	}
}

// Register 注册数据源。
// 数据源通过 Beego ORM 的别名注册表打开，重复的别名或同一分组中的第二个主库将返回错误。
func Register(src Source) error {
	if err := checkSource(&src); err != nil {
		return err
	}
	var opts []orm.DBOption
	if src.Pool > 0 {
		opts = append(opts, orm.MaxIdleConnections(src.Pool))
	}
	if src.Conn > 0 {
		opts = append(opts, orm.MaxOpenConnections(src.Conn))
	}
	if err := orm.RegisterDataBase(src.Name, driverNameOf(src.Type), src.Addr, opts...); err != nil {
		return fmt.Errorf("XData.Register(%v): %w", src.Name, err)
	}
	db, err := orm.GetDB(src.Name)
	if err != nil {
		return fmt.Errorf("XData.Register(%v): %w", src.Name, err)
	}
	return addSource(&src, db)
}

// Attach 注册已打开的数据源，db 由调用方创建，别名同样注册至 Beego ORM。
func Attach(src Source, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("XData.Attach(%v): db is nil", src.Name)
	}
	if err := checkSource(&src); err != nil {
		return err
	}
	if err := orm.AddAliasWthDB(src.Name, driverNameOf(src.Type), db); err != nil {
		return fmt.Errorf("XData.Attach(%v): %w", src.Name, err)
	}
	return addSource(&src, db)
}

// checkSource 校验并补全数据源的参数。
func checkSource(src *Source) error {
	if src.Name == "" {
		return errors.New("XData.Register: source name is empty")
	}
	if src.Type == "" {
		return fmt.Errorf("XData.Register(%v): source type is empty", src.Name)
	}
	if src.Group == "" {
		src.Group = src.Name
	}
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	if _, ok := sourceMap[src.Name]; ok {
		return fmt.Errorf("XData.Register(%v): source was already registered", src.Name)
	}
	if src.Role == RoleMaster {
		if g := groupMap[src.Group]; g != nil && g.Master != nil {
			return fmt.Errorf("XData.Register(%v): group %v already has master %v", src.Name, src.Group, g.Master.Name)
		}
	}
	return nil
}

// addSource 将数据源加入分组，分组以写时复制的方式更新。
func addSource(src *Source, db *sql.DB) error {
	src.db = db
	src.provider = ProviderFor(src.Type)

	sourceMu.Lock()
	defer sourceMu.Unlock()
	if _, ok := sourceMap[src.Name]; ok {
		return fmt.Errorf("XData.Register(%v): source was already registered", src.Name)
	}
	next := &Group{Name: src.Group}
	if g := groupMap[src.Group]; g != nil {
		next.Master = g.Master
		next.Slaves = append(next.Slaves, g.Slaves...)
	}
	if src.Role == RoleMaster {
		if next.Master != nil {
			return fmt.Errorf("XData.Register(%v): group %v already has master %v", src.Name, src.Group, next.Master.Name)
		}
		next.Master = src
	} else {
		next.Slaves = append(next.Slaves, src)
	}
	sourceMap[src.Name] = src
	groupMap[src.Group] = next

	XLog.Notice("XData.Register(%v): source of %v has been registered as %v of group %v.", src.Name, src.Type, src.Role, src.Group)
	return nil
}

// Lookup 获取指定名称的分组。
func Lookup(group string) (*Group, error) {
	sourceMu.RLock()
	g := groupMap[group]
	sourceMu.RUnlock()
	if g == nil {
		return nil, fmt.Errorf("XData.Lookup(%v): %w", group, ErrSourceNotFound)
	}
	if g.Master == nil {
		return nil, fmt.Errorf("XData.Lookup(%v): %w", group, ErrNoMaster)
	}
	return g, nil
}

// SourceOf 获取指定别名的数据源。
func SourceOf(name string) (*Source, error) {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	if src := sourceMap[name]; src != nil {
		return src, nil
	}
	return nil, fmt.Errorf("XData.SourceOf(%v): %w", name, ErrSourceNotFound)
}

// Groups 返回所有分组的名称，按字典序排列。
func Groups() []string {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	names := make([]string, 0, len(groupMap))
	for name := range groupMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cleanup 清除所有分组及同步器的登记信息。
// Beego ORM 的别名无法注销，连接池不会被关闭。
func Cleanup() {
	sourceMu.Lock()
	sourceMap = make(map[string]*Source)
	groupMap = make(map[string]*Group)
	sourceMu.Unlock()
	syncMap.Clear()
}
