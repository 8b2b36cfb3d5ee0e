// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestProviderFor 测试驱动类型到方言的映射。
func TestProviderFor(t *testing.T) {
	tests := []struct {
		driver string
		want   Provider
	}{
		{"MySQL", ProviderMySQL},
		{"tidb", ProviderMySQL},
		{"SQLite3", ProviderSQLite},
		{"PostgreSQL", ProviderPostgres},
		{"pgx", ProviderPostgres},
		{"mssql", ProviderSQLServer},
		{"Oracle", ProviderOracle},
		{"unknown", ProviderMySQL},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, ProviderFor(tt.driver), "驱动 %v 的方言不正确。", tt.driver)
		})
	}
}

// TestProviderPlaceholder 测试各方言的占位符。
func TestProviderPlaceholder(t *testing.T) {
	assert.Equal(t, "?", ProviderMySQL.Placeholder(3))
	assert.Equal(t, "?", ProviderSQLite.Placeholder(1))
	assert.Equal(t, "$3", ProviderPostgres.Placeholder(3))
	assert.Equal(t, "@p2", ProviderSQLServer.Placeholder(2))
	assert.Equal(t, ":1", ProviderOracle.Placeholder(1))
}

// TestProviderQuote 测试标识符引用。
func TestProviderQuote(t *testing.T) {
	assert.Equal(t, "`user`", ProviderMySQL.Quote("user"))
	assert.Equal(t, "`db`.`user`", ProviderMySQL.Quote("db.user"))
	assert.Equal(t, `"user"`, ProviderPostgres.Quote("user"))
	assert.Equal(t, `"a""b"`, ProviderSQLite.Quote(`a"b`))
	assert.Equal(t, "[user]", ProviderSQLServer.Quote("user"))
	assert.Equal(t, "[user]", ProviderSQLServer.Quote("[user]"), "已引用的标识符应当原样返回。")
	assert.Equal(t, "", ProviderMySQL.Quote(""))
}

// TestProviderSegment 测试各方言的分页语句。
func TestProviderSegment(t *testing.T) {
	query := "SELECT id FROM users ORDER BY id"
	tests := []struct {
		name     string
		provider Provider
		offset   int
		limit    int
		want     string
	}{
		{"NoLimit", ProviderMySQL, 0, 0, query},
		{"MySQLOffset", ProviderMySQL, 10, 0, query + " LIMIT 18446744073709551615 OFFSET 10"},
		{"SQLiteOffset", ProviderSQLite, 10, -1, query + " LIMIT -1 OFFSET 10"},
		{"PostgresOffset", ProviderPostgres, 10, 0, query + " OFFSET 10"},
		{"SQLServerOffset", ProviderSQLServer, 10, 0, query + " OFFSET 10 ROWS"},
		{"OracleOffset", ProviderOracle, 10, 0, "SELECT * FROM (SELECT t_.*, ROWNUM rn_ FROM (" + query + ") t_) WHERE rn_ > 10"},
		{"MySQLFirst", ProviderMySQL, 0, 10, query + " LIMIT 10"},
		{"MySQL", ProviderMySQL, 20, 10, query + " LIMIT 10 OFFSET 20"},
		{"Postgres", ProviderPostgres, 20, 10, query + " LIMIT 10 OFFSET 20"},
		{"SQLServer", ProviderSQLServer, 20, 10, query + " OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY"},
		{"SQLServerNoOrder", ProviderSQLServer, 0, 5, "SELECT id FROM users ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY"},
		{"OracleFirst", ProviderOracle, 0, 10, "SELECT * FROM (" + query + ") WHERE ROWNUM <= 10"},
		{"Oracle", ProviderOracle, 20, 10, "SELECT * FROM (SELECT t_.*, ROWNUM rn_ FROM (" + query + ") t_ WHERE ROWNUM <= 30) WHERE rn_ > 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := query
			if tt.name == "SQLServerNoOrder" {
				q = "SELECT id FROM users;"
			}
			assert.Equal(t, tt.want, tt.provider.Segment(q, tt.offset, tt.limit))
		})
	}
}

// TestProviderCount 测试计数语句的生成。
func TestProviderCount(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"Plain", "SELECT * FROM users", "SELECT COUNT(*) FROM (SELECT * FROM users) t_count"},
		{"OrderBy", "SELECT * FROM users ORDER  BY id DESC", "SELECT COUNT(*) FROM (SELECT * FROM users) t_count"},
		{"NestedOrderBy", "SELECT * FROM (SELECT * FROM users ORDER BY id) u", "SELECT COUNT(*) FROM (SELECT * FROM (SELECT * FROM users ORDER BY id) u) t_count"},
		{"QuotedOrderBy", "SELECT 'order by' AS s FROM users", "SELECT COUNT(*) FROM (SELECT 'order by' AS s FROM users) t_count"},
		{"Identifier", "SELECT reorder_by FROM users", "SELECT COUNT(*) FROM (SELECT reorder_by FROM users) t_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProviderMySQL.Count(tt.query))
		})
	}
}

// TestSkipLiteral 测试常量及注释的跳过。
func TestSkipLiteral(t *testing.T) {
	tests := []struct {
		query     string
		start     int
		backslash bool
		want      int
	}{
		{"'it''s' x", 0, false, 7},
		{`"a" x`, 0, false, 3},
		{"-- c\nx", 0, false, 5},
		{"/* c */x", 0, false, 7},
		{"$tag$ a $tag$x", 0, false, 13},
		{"$1", 0, false, 0},
		{"x", 0, false, 0},
		{"'open", 0, false, 5},
		{`'it\'s' x`, 0, true, 7},
		{`'a\\' x`, 0, true, 5},
		{`"a\"b" x`, 0, true, 6},
		{`'it\'s' x`, 0, false, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, skipLiteral(tt.query, tt.start, tt.backslash), "%q", tt.query)
	}
}
