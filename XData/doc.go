// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
XData 是基于 database/sql 的数据访问层，提供了多源配置、参数化查询、行映射、分页、读写分离路由以及环境事务等功能。

功能特性

  - 多源配置：通过解析首选项中的配置自动注册数据源，数据源按分组组织为一主多从
  - 命令执行：支持 ? 位置参数和 @name、:name 命名参数，切片参数自动展开
  - 行映射：按类型和列集合缓存映射计划，支持结构体、单值、map 和无类型的数据行
  - 分页查询：支持 COUNT 统计和探测下一页两种分页计算方式
  - 读写分离：写操作路由至主库，读操作按权重路由至已同步的从库
  - 环境事务：基于 goroutine 的事务范围，统一提交或回滚范围内的所有操作

使用手册

1. 多源配置

配置说明：
  - 配置键名：Data/Source/<数据库类型>/<数据源别名>
  - 支持 MySQL、PostgreSQL、SQLite3 等（Beego ORM 支持的类型）
  - 配置参数：
  - Addr：数据源地址
  - Pool：最大空闲连接数
  - Conn：最大打开连接数
  - Group：所属分组，默认为数据源别名
  - Role：分组中的角色，Master（默认）或 Slave
  - Weight：从库的选择权重，默认为 1，<= 0 时不参与路由

同步配置：
  - 配置键名：Data/Sync/<分组名称>
  - Table：同步标记表，默认为 sys_sync_marker
  - Column：同步标记列，默认为 version
  - Interval：同步判定的缓存时长（毫秒），默认为 1000

监控配置：
  - 配置键名：Data/Monitor/Interval，周期刷新从库同步判定的间隔（毫秒），0 表示不启用

配置示例：

	{
	    "Data/Source/MySQL/Main": {
	        "Addr": "root:123456@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&loc=Local",
	        "Pool": 2,
	        "Conn": 10
	    },
	    "Data/Source/MySQL/Replica": {
	        "Addr": "root:123456@tcp(127.0.0.2:3306)/dbname?charset=utf8mb4&loc=Local",
	        "Group": "Main",
	        "Role": "Slave",
	        "Weight": 2
	    },
	    "Data/Sync/Main": {
	        "Table": "sys_sync_marker",
	        "Column": "version",
	        "Interval": 1000
	    },
	    "Data/Monitor/Interval": 5000
	}

2. 命令执行

	db, err := XData.Open("Main")

	// 写操作
	n, err := db.ExecuteNonQuery(ctx, "UPDATE users SET age = ? WHERE id = ?", 18, 1)

	// 命名参数
	n, err = db.ExecuteNonQuery(ctx, "DELETE FROM users WHERE id IN (@ids)", XData.Params("ids", []int{1, 2, 3}))

	// 单值查询
	count, err := XData.Scalar[int64](ctx, db, "SELECT COUNT(*) FROM users")

3. 行映射

	type User struct {
	    ID   int64  `db:"id"`
	    Name string `db:"user_name"`
	    Age  int
	}

	users, err := XData.ExecuteEnumerable[User](ctx, db, "SELECT * FROM users", nil)
	user, err := XData.Get[*User](ctx, db, "SELECT * FROM users WHERE id = ?", nil, 1)

结构体的指针实现了 OnDecode 方法时，会在每行映射完成后被调用。

4. 分页查询

	pager := XData.NewPager(20, 0)
	users, err := XData.ExecutePage[User](ctx, db, "SELECT * FROM users ORDER BY id", pager, nil)
	// pager.RecordCount、pager.PageCount 已更新

5. 事务

显式事务：

	db.BeginTransaction(ctx, nil)
	defer db.RollbackTransaction()
	// 数据操作 ...
	db.CommitTransaction()

环境事务：

	XData.Scope()
	defer XData.Defer()
	// 任意 Database 的数据操作 ...
	XData.Complete()

更多信息请参考模块文档。
*/
package XData
