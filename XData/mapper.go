// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrZeroColumns 表示查询结果不包含任何列。
	ErrZeroColumns = errors.New("XData: query returned zero columns")
)

// RowMapper 定义了行映射器，将结果集的当前行转换为 T 类型的值。
// 实现不得调用 rows.Next，行的迭代由调用方负责。
type RowMapper[T any] interface {
	Map(rows *sql.Rows) (T, error)
}

// Initializer 定义了映射完成后的回调，与数据模型的 OnDecode 保持一致。
// 结构体的指针实现此接口时，DefaultRowMapper 在每行映射完成后调用 OnDecode。
type Initializer interface {
	OnDecode()
}

// MapperFor 根据 T 的类型选择默认的行映射器：
//
//	map[string]any        → AnonymousRowMapper
//	Record                → 记录映射
//	结构体及其指针          → DefaultRowMapper（time.Time、sql.Scanner、driver.Valuer 除外）
//	其他类型               → SingleValueRowMapper
func MapperFor[T any]() RowMapper[T] {
	rt := reflect.TypeFor[T]()
	switch rt {
	case reflect.TypeFor[map[string]any]():
		return any(AnonymousRowMapper{}).(RowMapper[T])
	case reflect.TypeFor[Record]():
		return any(recordMapper{}).(RowMapper[T])
	}
	if isEntityType(rt) {
		return DefaultRowMapper[T]{}
	}
	return SingleValueRowMapper[T]{}
}

// DefaultRowMapper 将行映射为结构体（或结构体指针）。
//
// 列与字段的匹配规则：
//   - 优先匹配 `db:"name"` 标签，其次匹配字段名，均忽略大小写；
//   - 未匹配时去除列名中的下划线再次匹配，如 user_name 匹配 UserName；
//   - 匿名嵌入或带有 `db:",inline"` 的结构体字段会被展开，nil 指针会被分配；
//   - 多余的列被忽略，缺失的列保持零值。
//
// 每种类型和列集合的组合只编译一次映射计划，后续复用。
type DefaultRowMapper[T any] struct{}

// Map 映射当前行。
func (DefaultRowMapper[T]) Map(rows *sql.Rows) (T, error) {
	var zero T
	rt := reflect.TypeFor[T]()
	st := rt
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return zero, fmt.Errorf("XData.DefaultRowMapper: %v is not a struct", rt)
	}

	cols, values, err := scanValues(rows)
	if err != nil {
		return zero, err
	}
	plan := planOf(st, cols)

	target := reflect.New(st).Elem()
	for i, path := range plan.paths {
		if path == nil {
			continue
		}
		if err := assignValue(fieldByPathAlloc(target, path), values[i]); err != nil {
			return zero, fmt.Errorf("XData.DefaultRowMapper(%v): column %v: %w", st, cols[i], err)
		}
	}
	if init, ok := target.Addr().Interface().(Initializer); ok {
		init.OnDecode()
	}
	if rt.Kind() == reflect.Pointer {
		return target.Addr().Interface().(T), nil
	}
	return target.Interface().(T), nil
}

// scanValues 读取当前行的所有列。
func scanValues(rows *sql.Rows) ([]string, []any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		return nil, nil, ErrZeroColumns
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, err
	}
	return cols, values, nil
}

// planKey 是映射计划的缓存键。
type planKey struct {
	rt    reflect.Type // 目标结构体类型
	hash  uint64       // 归一化列名的 FNV-1a 哈希
	ncols int          // 列数
}

// rowPlan 是编译后的映射计划，paths[i] 为第 i 列对应的字段索引路径，nil 表示丢弃。
type rowPlan struct {
	paths [][]int
}

// structIndex 是结构体字段的索引。
type structIndex struct {
	byName map[string][]int // 小写名称 → 字段索引路径
	names  []string         // 按字段顺序排列的名称（标签名或字段名）
	paths  [][]int          // 与 names 对应的字段索引路径
}

var (
	// planCache 缓存映射计划，键为 planKey，值为 *rowPlan。
	planCache sync.Map

	// indexCache 缓存结构体索引，键为 reflect.Type，值为 *structIndex。
	indexCache sync.Map
)

// planOf 获取或编译映射计划。
func planOf(st reflect.Type, cols []string) *rowPlan {
	normalized := make([]string, len(cols))
	h := fnv.New64a()
	for i, c := range cols {
		normalized[i] = normalizeColumn(c)
		_, _ = h.Write([]byte(normalized[i]))
		_, _ = h.Write([]byte{0})
	}
	key := planKey{rt: st, hash: h.Sum64(), ncols: len(cols)}
	if v, ok := planCache.Load(key); ok {
		return v.(*rowPlan)
	}

	index := structIndexOf(st)
	plan := &rowPlan{paths: make([][]int, len(cols))}
	for i, c := range normalized {
		if path, ok := index.byName[c]; ok {
			plan.paths[i] = path
		} else if path, ok := index.byName[strings.ReplaceAll(c, "_", "")]; ok {
			plan.paths[i] = path
		}
	}
	v, _ := planCache.LoadOrStore(key, plan)
	return v.(*rowPlan)
}

// structIndexOf 获取或构建结构体索引。
func structIndexOf(st reflect.Type) *structIndex {
	if v, ok := indexCache.Load(st); ok {
		return v.(*structIndex)
	}
	index := &structIndex{byName: make(map[string][]int)}

	var walk func(t reflect.Type, base []int)
	walk = func(t reflect.Type, base []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() && (!sf.Anonymous || sf.Type.Kind() == reflect.Pointer) {
				continue
			}
			name, inline, omit := parseTag(sf.Tag.Get("db"))
			if omit {
				continue
			}
			path := append(append([]int(nil), base...), i)
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if (inline || (sf.Anonymous && name == "")) && ft.Kind() == reflect.Struct && !isValueStruct(ft) {
				walk(ft, path)
				continue
			}
			if !sf.IsExported() {
				continue
			}
			if name == "" {
				name = sf.Name
			}
			key := strings.ToLower(name)
			if _, ok := index.byName[key]; ok {
				continue
			}
			index.byName[key] = path
			index.names = append(index.names, name)
			index.paths = append(index.paths, path)
		}
	}
	walk(st, nil)

	v, _ := indexCache.LoadOrStore(st, index)
	return v.(*structIndex)
}

// parseTag 解析 db 标签，支持 "-"、"col"、",inline"、"col,inline"。
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "inline" {
			inline = true
		} else if part != "" && name == "" {
			name = part
		}
	}
	return name, inline, false
}

// fieldByPathAlloc 沿索引路径获取字段，途经的 nil 指针会被分配。
func fieldByPathAlloc(v reflect.Value, path []int) reflect.Value {
	for _, i := range path {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// fieldByPath 沿索引路径获取字段，途经 nil 指针时返回 false。
func fieldByPath(v reflect.Value, path []int) (reflect.Value, bool) {
	for _, i := range path {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// normalizeColumn 去除列名两侧的引号并转换为小写。
func normalizeColumn(s string) string {
	if l := len(s); l >= 2 {
		switch {
		case s[0] == '"' && s[l-1] == '"', s[0] == '`' && s[l-1] == '`', s[0] == '[' && s[l-1] == ']':
			s = s[1 : l-1]
		}
	}
	return strings.ToLower(s)
}

// isEntityType 判断 t（或其指向的类型）是否为按字段映射的结构体。
func isEntityType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && !isValueStruct(t)
}

// isValueStruct 判断结构体是否作为单个值处理，如 time.Time、sql.NullString。
func isValueStruct(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	pt := reflect.PointerTo(t)
	return pt.Implements(scannerType) || t.Implements(valuerType) || pt.Implements(valuerType)
}
