// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"fmt"
	"strconv"
	"strings"
)

// Provider 定义了数据库方言，负责占位符、标识符引用、分页和计数语句的生成。
type Provider interface {
	// Name 返回方言名称。
	Name() string

	// Placeholder 返回第 index 个参数（从 1 开始）的占位符。
	Placeholder(index int) string

	// Quote 返回引用后的标识符。
	Quote(ident string) string

	// Segment 返回限定了偏移量和数量的查询语句，limit <= 0 表示不限制数量，
	// 此时 offset <= 0 原样返回，否则仅跳过 offset 行。
	Segment(query string, offset, limit int) string

	// Count 返回统计查询结果总数的语句。
	Count(query string) string
}

// dialect 是占位符及分页语法的类别。
type dialect int

const (
	dialectQuestion dialect = iota // ? + LIMIT/OFFSET
	dialectDollar                  // $n + LIMIT/OFFSET
	dialectAtP                     // @pn + OFFSET/FETCH
	dialectColon                   // :n + ROWNUM
)

// sqlProvider 是 Provider 的默认实现。
type sqlProvider struct {
	name      string
	dialect   dialect
	quoteL    string
	quoteR    string
	unbounded string // 仅有偏移量时 LIMIT/OFFSET 方言使用的 LIMIT 子句
	backslash bool   // 字符串常量中的 \ 是否为转义符
}

var (
	// ProviderMySQL 是 MySQL（及 TiDB）的方言。
	ProviderMySQL Provider = &sqlProvider{name: "mysql", dialect: dialectQuestion, quoteL: "`", quoteR: "`", unbounded: "LIMIT 18446744073709551615 ", backslash: true}

	// ProviderSQLite 是 SQLite3 的方言。
	ProviderSQLite Provider = &sqlProvider{name: "sqlite3", dialect: dialectQuestion, quoteL: `"`, quoteR: `"`, unbounded: "LIMIT -1 "}

	// ProviderPostgres 是 PostgreSQL 的方言。
	ProviderPostgres Provider = &sqlProvider{name: "postgres", dialect: dialectDollar, quoteL: `"`, quoteR: `"`}

	// ProviderSQLServer 是 SQL Server 的方言。
	ProviderSQLServer Provider = &sqlProvider{name: "sqlserver", dialect: dialectAtP, quoteL: "[", quoteR: "]"}

	// ProviderOracle 是 Oracle 的方言。
	ProviderOracle Provider = &sqlProvider{name: "oracle", dialect: dialectColon, quoteL: `"`, quoteR: `"`}
)

// ProviderFor 根据驱动类型返回对应的方言，忽略大小写，未知类型使用 MySQL 方言（? 占位符）。
func ProviderFor(driverType string) Provider {
	switch strings.ToLower(driverType) {
	case "sqlite", "sqlite3":
		return ProviderSQLite
	case "postgres", "postgresql", "pgx", "pg":
		return ProviderPostgres
	case "sqlserver", "mssql":
		return ProviderSQLServer
	case "oracle", "oci8", "ora", "godror":
		return ProviderOracle
	default:
		return ProviderMySQL
	}
}

func (p *sqlProvider) Name() string { return p.name }

// backslashEscapes 判断方言的字符串常量是否使用 \ 转义。
func backslashEscapes(p Provider) bool {
	sp, ok := p.(*sqlProvider)
	return ok && sp.backslash
}

func (p *sqlProvider) Placeholder(index int) string {
	switch p.dialect {
	case dialectDollar:
		return "$" + strconv.Itoa(index)
	case dialectAtP:
		return "@p" + strconv.Itoa(index)
	case dialectColon:
		return ":" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// Quote 引用标识符，带有 . 的标识符会逐段引用，已引用的标识符原样返回。
func (p *sqlProvider) Quote(ident string) string {
	if ident == "" || strings.HasPrefix(ident, p.quoteL) {
		return ident
	}
	parts := strings.Split(ident, ".")
	for i, part := range parts {
		if p.quoteR == p.quoteL {
			part = strings.ReplaceAll(part, p.quoteR, p.quoteR+p.quoteR)
		}
		parts[i] = p.quoteL + part + p.quoteR
	}
	return strings.Join(parts, ".")
}

func (p *sqlProvider) Segment(query string, offset, limit int) string {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 && offset == 0 {
		return query
	}
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	switch p.dialect {
	case dialectAtP:
		if findTopLevel(query, p.backslash, "ORDER", "BY") == -1 {
			query += " ORDER BY (SELECT NULL)"
		}
		if limit <= 0 {
			return fmt.Sprintf("%s OFFSET %d ROWS", query, offset)
		}
		return fmt.Sprintf("%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", query, offset, limit)
	case dialectColon:
		if limit <= 0 {
			return fmt.Sprintf("SELECT * FROM (SELECT t_.*, ROWNUM rn_ FROM (%s) t_) WHERE rn_ > %d", query, offset)
		}
		if offset == 0 {
			return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", query, limit)
		}
		return fmt.Sprintf("SELECT * FROM (SELECT t_.*, ROWNUM rn_ FROM (%s) t_ WHERE ROWNUM <= %d) WHERE rn_ > %d", query, offset+limit, offset)
	default:
		if limit <= 0 {
			return fmt.Sprintf("%s %sOFFSET %d", query, p.unbounded, offset)
		}
		if offset == 0 {
			return fmt.Sprintf("%s LIMIT %d", query, limit)
		}
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
	}
}

// Count 去除顶层的 ORDER BY 及其后的子句，再包装为子查询进行计数。
func (p *sqlProvider) Count(query string) string {
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	if idx := findTopLevel(query, p.backslash, "ORDER", "BY"); idx != -1 {
		query = strings.TrimSpace(query[:idx])
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) t_count", query)
}
