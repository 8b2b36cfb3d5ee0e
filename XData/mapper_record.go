// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"strings"
	"time"
)

// Record 是无类型的数据行，由列名和列值组成，列名忽略大小写。
// 驱动返回的 []byte 列值会被转换为 string。
type Record struct {
	columns []string
	values  []any
	index   map[string]int
}

// NewRecord 根据列名和列值创建数据行，两者长度不一致时以较短者为准。
func NewRecord(columns []string, values []any) Record {
	n := min(len(columns), len(values))
	rec := Record{columns: columns[:n], values: make([]any, n), index: make(map[string]int, n)}
	for i := 0; i < n; i++ {
		rec.values[i] = normalizeValue(values[i])
		key := strings.ToLower(columns[i])
		if _, ok := rec.index[key]; !ok {
			rec.index[key] = i
		}
	}
	return rec
}

// Columns 返回列名。
func (r Record) Columns() []string { return r.columns }

// Len 返回列数。
func (r Record) Len() int { return len(r.values) }

// At 返回第 i 列的值，越界时返回 nil。
func (r Record) At(i int) any {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Value 返回指定列的值，重名的列返回第一个。
func (r Record) Value(name string) (any, bool) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// IsNull 判断指定列是否为 NULL，列不存在时也返回 true。
func (r Record) IsNull(name string) bool {
	v, _ := r.Value(name)
	return v == nil
}

// String 返回指定列的字符串值，列不存在或为 NULL 时返回空字符串。
func (r Record) String(name string) string {
	v, ok := r.Value(name)
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

// Int64 返回指定列的整数值，无法转换时返回 0。
func (r Record) Int64(name string) int64 {
	v, _ := r.Value(name)
	n, _ := toInt64(v)
	return n
}

// Float64 返回指定列的浮点值，无法转换时返回 0。
func (r Record) Float64(name string) float64 {
	v, _ := r.Value(name)
	f, _ := toFloat64(v)
	return f
}

// Bool 返回指定列的布尔值，无法转换时返回 false。
func (r Record) Bool(name string) bool {
	v, _ := r.Value(name)
	b, _ := toBool(v)
	return b
}

// Time 返回指定列的时间值，无法转换时返回零值。
func (r Record) Time(name string) time.Time {
	v, _ := r.Value(name)
	t, _ := toTime(v)
	return t
}

// Map 将数据行转换为 map，重名的列以后者为准。
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// readRecord 读取当前行为 Record。
func readRecord(rows *sql.Rows) (Record, error) {
	cols, values, err := scanValues(rows)
	if err != nil {
		return Record{}, err
	}
	return NewRecord(cols, values), nil
}

// recordMapper 将当前行映射为 Record。
type recordMapper struct{}

func (recordMapper) Map(rows *sql.Rows) (Record, error) { return readRecord(rows) }

// AnonymousRowMapper 将当前行映射为 map[string]any，键为列名，[]byte 列值转换为 string。
type AnonymousRowMapper struct{}

// Map 映射当前行。
func (AnonymousRowMapper) Map(rows *sql.Rows) (map[string]any, error) {
	rec, err := readRecord(rows)
	if err != nil {
		return nil, err
	}
	return rec.Map(), nil
}

// FuncRowMapper 使用自定义函数映射当前行。
//
//	mapper := XData.FuncRowMapper[User](func(rec XData.Record) (User, error) {
//	    return User{ID: rec.Int64("id"), Name: rec.String("name")}, nil
//	})
type FuncRowMapper[T any] func(rec Record) (T, error)

// Map 映射当前行。
func (f FuncRowMapper[T]) Map(rows *sql.Rows) (T, error) {
	rec, err := readRecord(rows)
	if err != nil {
		var zero T
		return zero, err
	}
	return f(rec)
}
