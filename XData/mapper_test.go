// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeConnector 是仅用于行映射测试的内存驱动，每次查询返回固定的结果集。
type fakeConnector struct {
	cols []string
	data [][]driver.Value
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{c: c}, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakeDriver.Open should not be called")
}

type fakeConn struct{ c *fakeConnector }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *fakeConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &fakeRows{cols: c.c.cols, data: c.c.data}, nil
}

type fakeRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *fakeRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}

// mapRows 使用 mapper 映射内存结果集的所有行。
func mapRows[T any](t *testing.T, mapper RowMapper[T], cols []string, data ...[]driver.Value) ([]T, error) {
	t.Helper()
	db := sql.OpenDB(&fakeConnector{cols: cols, data: data})
	defer db.Close()
	rows, err := db.Query("SELECT")
	if err != nil {
		t.Fatalf("query fake rows failed: %v", err)
	}
	return collect(rows, mapper, -1)
}

type testAudit struct {
	Created time.Time `db:"created_at"`
	Remark  *string
}

type testProfile struct {
	City string `db:"city"`
}

type testUser struct {
	testAudit
	ID       int64          `db:"id"`
	UserName string         // 匹配 user_name
	Age      int8           `db:"age"`
	Score    float32        `db:"score"`
	Active   bool           `db:"active"`
	Nick     sql.NullString `db:"nick"`
	Profile  *testProfile   `db:",inline"`
	Ignored  string         `db:"-"`
	decoded  bool
}

func (u *testUser) OnDecode() { u.decoded = true }

// TestDefaultRowMapper 测试结构体的映射。
func TestDefaultRowMapper(t *testing.T) {
	cols := []string{"id", "user_name", "AGE", "score", "active", "nick", "city", "created_at", "remark", "Ignored", "extra"}
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

	t.Run("Value", func(t *testing.T) {
		users, err := mapRows(t, MapperFor[testUser](), cols,
			[]driver.Value{int64(1), []byte("alice"), int64(18), float64(9.5), int64(1), "ali", "Shanghai", "2025-01-02 03:04:05", []byte("vip"), "x", "dropped"},
			[]driver.Value{int64(2), "bob", int64(20), nil, false, nil, nil, created, nil, nil, nil})
		assert.NoError(t, err, "映射结构体不应当返回错误。")
		assert.Len(t, users, 2, "应当映射 2 行。")

		u := users[0]
		assert.Equal(t, int64(1), u.ID, "ID 应当为 1。")
		assert.Equal(t, "alice", u.UserName, "下划线列名应当匹配字段名。")
		assert.Equal(t, int8(18), u.Age, "列名应当忽略大小写。")
		assert.Equal(t, float32(9.5), u.Score)
		assert.True(t, u.Active, "整数 1 应当转换为 true。")
		assert.Equal(t, sql.NullString{String: "ali", Valid: true}, u.Nick, "sql.Scanner 字段应当通过 Scan 赋值。")
		if assert.NotNil(t, u.Profile, "inline 的指针字段应当被分配。") {
			assert.Equal(t, "Shanghai", u.Profile.City)
		}
		assert.Equal(t, created, u.Created, "嵌入结构体的时间字段应当从字符串解析。")
		if assert.NotNil(t, u.Remark) {
			assert.Equal(t, "vip", *u.Remark, "[]byte 应当转换为 string。")
		}
		assert.Empty(t, u.Ignored, "db:\"-\" 字段应当被忽略。")
		assert.True(t, u.decoded, "映射完成后应当调用 OnDecode。")

		u = users[1]
		assert.Equal(t, float32(0), u.Score, "NULL 应当映射为零值。")
		assert.False(t, u.Nick.Valid, "NULL 应当映射为无效的 NullString。")
		assert.Nil(t, u.Remark, "NULL 应当映射为 nil 指针。")
		assert.Equal(t, created, u.Created)
	})

	t.Run("Pointer", func(t *testing.T) {
		users, err := mapRows(t, MapperFor[*testUser](), []string{"id"}, []driver.Value{int64(7)})
		assert.NoError(t, err)
		if assert.Len(t, users, 1) {
			assert.Equal(t, int64(7), users[0].ID)
			assert.True(t, users[0].decoded, "指针类型同样应当调用 OnDecode。")
			assert.Nil(t, users[0].Profile, "缺失的列不应当分配 inline 指针。")
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := mapRows[testUser](t, DefaultRowMapper[testUser]{}, []string{"age"}, []driver.Value{int64(300)})
		assert.Error(t, err, "超出 int8 范围的值应当返回错误。")
	})

	t.Run("NotStruct", func(t *testing.T) {
		_, err := mapRows[int](t, DefaultRowMapper[int]{}, []string{"id"}, []driver.Value{int64(1)})
		assert.Error(t, err, "非结构体类型应当返回错误。")
	})

	t.Run("ZeroColumns", func(t *testing.T) {
		_, err := mapRows[testUser](t, DefaultRowMapper[testUser]{}, []string{}, []driver.Value{})
		assert.ErrorIs(t, err, ErrZeroColumns, "没有列时应当返回 ErrZeroColumns。")
	})

	t.Run("PlanCache", func(t *testing.T) {
		st := reflect.TypeOf(testUser{})
		p1 := planOf(st, []string{"id", "age"})
		p2 := planOf(st, []string{"ID", "`age`"})
		p3 := planOf(st, []string{"age", "id"})
		assert.Same(t, p1, p2, "归一化后相同的列集合应当复用映射计划。")
		assert.NotSame(t, p1, p3, "列顺序不同时应当使用不同的映射计划。")
		assert.Equal(t, []int{1}, p1.paths[0], "id 列应当映射至 ID 字段。")
	})
}

// TestSingleValueRowMapper 测试单值映射。
func TestSingleValueRowMapper(t *testing.T) {
	cols := []string{"v", "extra"}

	ints, err := mapRows(t, MapperFor[int](), cols, []driver.Value{int64(3), "x"}, []driver.Value{[]byte("4"), nil})
	assert.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ints, "多余的列应当被忽略。")

	strs, err := mapRows(t, MapperFor[string](), cols, []driver.Value{[]byte("a"), nil}, []driver.Value{int64(5), nil})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "5"}, strs)

	ptrs, err := mapRows(t, MapperFor[*int64](), cols, []driver.Value{nil, nil}, []driver.Value{int64(9), nil})
	assert.NoError(t, err)
	if assert.Len(t, ptrs, 2) {
		assert.Nil(t, ptrs[0], "NULL 应当映射为 nil。")
		assert.Equal(t, int64(9), *ptrs[1])
	}

	type level int
	levels, err := mapRows(t, MapperFor[level](), cols, []driver.Value{int64(2), nil})
	assert.NoError(t, err)
	assert.Equal(t, []level{2}, levels, "命名的基础类型应当被支持。")

	times, err := mapRows(t, MapperFor[time.Time](), cols, []driver.Value{"2025-03-04", nil})
	assert.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2025, 3, 4, 0, 0, 0, 0, time.Local)}, times)

	nulls, err := mapRows(t, MapperFor[sql.NullInt64](), cols, []driver.Value{int64(1), nil})
	assert.NoError(t, err)
	assert.Equal(t, []sql.NullInt64{{Int64: 1, Valid: true}}, nulls, "sql.Scanner 类型应当作为单值映射。")

	_, err = mapRows(t, MapperFor[bool](), cols, []driver.Value{"maybe", nil})
	assert.Error(t, err, "无法转换的值应当返回错误。")
}

// TestAnonymousRowMapper 测试 map 映射。
func TestAnonymousRowMapper(t *testing.T) {
	items, err := mapRows(t, MapperFor[map[string]any](), []string{"id", "name"}, []driver.Value{int64(1), []byte("a")})
	assert.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "a"}}, items, "[]byte 应当转换为 string。")
}

// TestRecord 测试无类型数据行。
func TestRecord(t *testing.T) {
	recs, err := mapRows(t, MapperFor[Record](), []string{"ID", "name", "score", "ok", "at", "none"},
		[]driver.Value{int64(1), []byte("a"), "2.5", int64(1), "2025-01-02", nil})
	assert.NoError(t, err)
	if !assert.Len(t, recs, 1) {
		return
	}
	rec := recs[0]
	assert.Equal(t, 6, rec.Len())
	assert.Equal(t, []string{"ID", "name", "score", "ok", "at", "none"}, rec.Columns())
	assert.Equal(t, int64(1), rec.Int64("id"), "列名应当忽略大小写。")
	assert.Equal(t, "a", rec.String("NAME"))
	assert.Equal(t, 2.5, rec.Float64("score"))
	assert.True(t, rec.Bool("ok"))
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.Local), rec.Time("at"))
	assert.True(t, rec.IsNull("none"))
	assert.True(t, rec.IsNull("missing"), "不存在的列应当视为 NULL。")
	assert.Equal(t, "", rec.String("none"))
	assert.Equal(t, "a", rec.At(1))
	assert.Nil(t, rec.At(10))

	v, ok := rec.Value("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
}

// TestFuncRowMapper 测试自定义函数映射。
func TestFuncRowMapper(t *testing.T) {
	mapper := FuncRowMapper[testProfile](func(rec Record) (testProfile, error) {
		if rec.IsNull("city") {
			return testProfile{}, errors.New("city is null")
		}
		return testProfile{City: rec.String("city")}, nil
	})

	items, err := mapRows[testProfile](t, mapper, []string{"city"}, []driver.Value{"Beijing"})
	assert.NoError(t, err)
	assert.Equal(t, []testProfile{{City: "Beijing"}}, items)

	_, err = mapRows[testProfile](t, mapper, []string{"city"}, []driver.Value{nil})
	assert.EqualError(t, err, "city is null", "自定义函数的错误应当原样返回。")
}

// TestMapperFor 测试默认映射器的选择。
func TestMapperFor(t *testing.T) {
	assert.IsType(t, AnonymousRowMapper{}, MapperFor[map[string]any]())
	assert.IsType(t, recordMapper{}, MapperFor[Record]())
	assert.IsType(t, DefaultRowMapper[testUser]{}, MapperFor[testUser]())
	assert.IsType(t, DefaultRowMapper[*testUser]{}, MapperFor[*testUser]())
	assert.IsType(t, SingleValueRowMapper[time.Time]{}, MapperFor[time.Time]())
	assert.IsType(t, SingleValueRowMapper[sql.NullString]{}, MapperFor[sql.NullString]())
	assert.IsType(t, SingleValueRowMapper[int]{}, MapperFor[int]())
	assert.IsType(t, SingleValueRowMapper[[]byte]{}, MapperFor[[]byte]())
}
