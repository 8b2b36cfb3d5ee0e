// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestParams 测试参数集合。
func TestParams(t *testing.T) {
	ps := Params("id", 1, "@Name", "a")
	assert.Equal(t, 2, ps.Len(), "参数数量应当为 2。")
	assert.Equal(t, []string{"id", "Name"}, ps.Names(), "参数名称应当去除 @ 前缀。")

	v, ok := ps.Get(":NAME")
	assert.True(t, ok, "参数名称应当忽略大小写。")
	assert.Equal(t, "a", v)

	ps = ps.Add("ID", 2)
	assert.Equal(t, 2, ps.Len(), "同名参数应当被替换。")
	v, _ = ps.Get("id")
	assert.Equal(t, 2, v)

	_, ok = ps.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, Params("id", 1, "dangling").Len(), "奇数个参数时应当丢弃最后一个。")
}

// TestParamsOf 测试从结构体和 map 创建参数集合。
func TestParamsOf(t *testing.T) {
	type filter struct {
		testProfile
		ID     int64 `db:"id"`
		Name   string
		Skip   string `db:"-"`
		hidden int
	}

	ps, err := ParamsOf(&filter{testProfile: testProfile{City: "x"}, ID: 1, Name: "a", hidden: 1})
	assert.NoError(t, err)
	assert.Equal(t, []string{"city", "id", "Name"}, ps.Names(), "应当按字段顺序展开嵌入结构体并忽略 db:\"-\" 和未导出的字段。")
	v, _ := ps.Get("city")
	assert.Equal(t, "x", v)

	ps, err = ParamsOf(map[string]any{"a": 1})
	assert.NoError(t, err)
	v, _ = ps.Get("A")
	assert.Equal(t, 1, v)

	_, err = ParamsOf(nil)
	assert.ErrorIs(t, err, ErrNilParams)
	_, err = ParamsOf((*filter)(nil))
	assert.ErrorIs(t, err, ErrNilParams)
	_, err = ParamsOf(map[int]any{})
	assert.Error(t, err, "非字符串键的 map 应当返回错误。")
	_, err = ParamsOf(1)
	assert.Error(t, err, "基础类型应当返回错误。")
}

// TestBind 测试参数的绑定及占位符的改写。
func TestBind(t *testing.T) {
	tests := []struct {
		name      string
		provider  Provider
		query     string
		args      []any
		wantQuery string
		wantArgs  []any
		wantErr   error
	}{
		{
			name:      "Passthrough",
			provider:  ProviderPostgres,
			query:     "SELECT * FROM t WHERE id = $1",
			args:      []any{1},
			wantQuery: "SELECT * FROM t WHERE id = $1",
			wantArgs:  []any{1},
		},
		{
			name:      "Positional",
			provider:  ProviderPostgres,
			query:     "SELECT * FROM t WHERE a = ? AND b = ?",
			args:      []any{1, "x"},
			wantQuery: "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantArgs:  []any{1, "x"},
		},
		{
			name:      "PositionalSlice",
			provider:  ProviderMySQL,
			query:     "SELECT * FROM t WHERE id IN (?) AND b = ?",
			args:      []any{[]int{1, 2, 3}, []byte("raw")},
			wantQuery: "SELECT * FROM t WHERE id IN (?,?,?) AND b = ?",
			wantArgs:  []any{1, 2, 3, []byte("raw")},
		},
		{
			name:      "EmptySlice",
			provider:  ProviderMySQL,
			query:     "SELECT * FROM t WHERE id IN (?)",
			args:      []any{[]string{}},
			wantQuery: "SELECT * FROM t WHERE id IN (NULL)",
			wantArgs:  []any{},
		},
		{
			name:      "Literal",
			provider:  ProviderPostgres,
			query:     "SELECT '?', \"?\" FROM t -- ?\nWHERE a = ?",
			args:      []any{1},
			wantQuery: "SELECT '?', \"?\" FROM t -- ?\nWHERE a = $1",
			wantArgs:  []any{1},
		},
		{
			name:      "BackslashEscape",
			provider:  ProviderMySQL,
			query:     `SELECT 'it\'s :name', "say \":name\"" FROM t WHERE a = :name`,
			args:      []any{Params("name", 1)},
			wantQuery: `SELECT 'it\'s :name', "say \":name\"" FROM t WHERE a = ?`,
			wantArgs:  []any{1},
		},
		{
			name:      "BackslashLiteral",
			provider:  ProviderSQLite,
			query:     `SELECT 'a\', ? FROM t`,
			args:      []any{1},
			wantQuery: `SELECT 'a\', ? FROM t`,
			wantArgs:  []any{1},
		},
		{
			name:      "Named",
			provider:  ProviderSQLServer,
			query:     "SELECT * FROM t WHERE a = @a OR b = :b OR c = @A",
			args:      []any{Params("a", 1, "b", 2)},
			wantQuery: "SELECT * FROM t WHERE a = @p1 OR b = @p2 OR c = @p3",
			wantArgs:  []any{1, 2, 1},
		},
		{
			name:      "NamedSkip",
			provider:  ProviderPostgres,
			query:     "SELECT a::text, @@version, ':x', 'a@b' FROM t WHERE id IN (:ids) AND x=:id",
			args:      []any{map[string]any{"ids": []int64{4, 5}, "id": 6}},
			wantQuery: "SELECT a::text, @@version, ':x', 'a@b' FROM t WHERE id IN ($1,$2) AND x=$3",
			wantArgs:  []any{int64(4), int64(5), 6},
		},
		{
			name:      "NamedStruct",
			provider:  ProviderOracle,
			query:     "UPDATE t SET city = :city WHERE 1 = 1",
			args:      []any{testProfile{City: "x"}},
			wantQuery: "UPDATE t SET city = :1 WHERE 1 = 1",
			wantArgs:  []any{"x"},
		},
		{
			name:     "NamedMissing",
			provider: ProviderMySQL,
			query:    "SELECT * FROM t WHERE a = @a",
			args:     []any{Params("b", 1)},
			wantErr:  ErrMissingParam,
		},
		{
			name:     "PositionalMissing",
			provider: ProviderMySQL,
			query:    "SELECT * FROM t WHERE a = ? AND b = ?",
			args:     []any{1},
			wantErr:  ErrMissingParam,
		},
		{
			name:     "NilParams",
			provider: ProviderMySQL,
			query:    "SELECT * FROM t WHERE a = @a",
			args:     []any{(*Parameters)(nil)},
			wantErr:  ErrNilParams,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := bind(tt.provider, tt.query, tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr, "应当返回 %v。", tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantQuery, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	t.Run("TooManyArgs", func(t *testing.T) {
		_, _, err := bind(ProviderMySQL, "SELECT ?", []any{1, 2})
		assert.Error(t, err, "参数多于占位符时应当返回错误。")
	})

	t.Run("ValueStruct", func(t *testing.T) {
		now := time.Now()
		q, args, err := bind(ProviderPostgres, "SELECT ?", []any{now})
		assert.NoError(t, err)
		assert.Equal(t, "SELECT $1", q, "time.Time 应当作为普通值绑定。")
		assert.Equal(t, []any{now}, args)

		_, args, err = bind(ProviderPostgres, "SELECT ?", []any{sql.NullString{String: "a", Valid: true}})
		assert.NoError(t, err)
		assert.Len(t, args, 1, "sql.NullString 应当作为普通值绑定。")
	})
}
