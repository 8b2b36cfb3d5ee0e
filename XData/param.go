// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/eframework-org/GO.UTIL/XLog"
)

var (
	// ErrNilParams 表示命名参数的来源为 nil。
	ErrNilParams = errors.New("XData: nil params")

	// ErrMissingParam 表示语句中的参数没有对应的值。
	ErrMissingParam = errors.New("XData: missing param")
)

// Parameter 定义了一个命名参数。
type Parameter struct {
	Name  string // 参数名称，不含 @ 或 : 前缀
	Value any    // 参数值，切片（[]byte 除外）会被展开
}

// Parameters 是有序的命名参数集合，名称忽略大小写。
type Parameters []Parameter

// Params 根据名称和值交替的列表创建参数集合。
//
//	XData.Params("id", 1, "name", "test")
func Params(kv ...any) Parameters {
	if len(kv)%2 != 0 {
		XLog.Critical("XData.Params: odd count of name and value: %v", XLog.Caller(1, false))
		kv = kv[:len(kv)-1]
	}
	ps := make(Parameters, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		ps = ps.Add(fmt.Sprint(kv[i]), kv[i+1])
	}
	return ps
}

// ParamsOf 根据结构体（db 标签或字段名）或 map[string]any 创建参数集合。
func ParamsOf(v any) (Parameters, error) {
	if v == nil {
		return nil, ErrNilParams
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrNilParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("XData.ParamsOf: map key must be string, got %v", rv.Type().Key())
		}
		ps := make(Parameters, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ps = append(ps, Parameter{Name: iter.Key().String(), Value: iter.Value().Interface()})
		}
		return ps, nil
	case reflect.Struct:
		index := structIndexOf(rv.Type())
		ps := make(Parameters, 0, len(index.names))
		for i, name := range index.names {
			fv, ok := fieldByPath(rv, index.paths[i])
			if !ok {
				ps = append(ps, Parameter{Name: name})
				continue
			}
			ps = append(ps, Parameter{Name: name, Value: fv.Interface()})
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("XData.ParamsOf: params must be struct or map[string]any, got %T", v)
	}
}

// Add 追加或替换同名参数，返回新的集合。
func (ps Parameters) Add(name string, value any) Parameters {
	name = strings.TrimLeft(name, "@:")
	for i := range ps {
		if strings.EqualFold(ps[i].Name, name) {
			ps[i].Value = value
			return ps
		}
	}
	return append(ps, Parameter{Name: name, Value: value})
}

// Get 获取指定名称的参数值。
func (ps Parameters) Get(name string) (any, bool) {
	name = strings.TrimLeft(name, "@:")
	for _, p := range ps {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return nil, false
}

// Len 返回参数数量。
func (ps Parameters) Len() int { return len(ps) }

// Names 返回所有参数的名称。
func (ps Parameters) Names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// namedOf 判断参数列表是否为命名参数，是则返回参数集合。
// 仅有一个参数且为 Parameters、结构体或 map[string]any 时视为命名参数，
// 实现了 driver.Valuer 的结构体（如 sql.NullString、time.Time）视为普通值。
func namedOf(args []any) (Parameters, bool, error) {
	if len(args) != 1 {
		return nil, false, nil
	}
	switch v := args[0].(type) {
	case Parameters:
		return v, true, nil
	case *Parameters:
		if v == nil {
			return nil, true, ErrNilParams
		}
		return *v, true, nil
	case map[string]any:
		ps, err := ParamsOf(v)
		return ps, true, err
	}
	rv := reflect.ValueOf(args[0])
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct && !isValueStruct(rv.Type()) {
		ps, err := ParamsOf(args[0])
		return ps, true, err
	}
	return nil, false, nil
}

// bind 将语句中的参数改写为方言的占位符，并返回按顺序排列的参数值。
//
// 命名参数模式下，@name 和 :name 按出现顺序绑定，同名参数可重复使用；
// 位置参数模式下，? 按顺序绑定，语句中没有 ? 时参数原样透传（如 PostgreSQL 的 $1）。
// 两种模式下切片参数（[]byte 除外）均展开为逗号分隔的占位符列表，空切片展开为 NULL。
// 常量、引用标识符、注释、:: 类型转换以及 @@ 系统变量不会被改写。
func bind(p Provider, query string, args []any) (string, []any, error) {
	named, isNamed, err := namedOf(args)
	if err != nil {
		return "", nil, err
	}
	if !isNamed && strings.IndexByte(query, '?') == -1 {
		return query, args, nil
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	values := make([]any, 0, len(args))
	position := 0

	emit := func(value any) {
		rv := reflect.ValueOf(value)
		if value != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			if rv.Len() == 0 {
				b.WriteString("NULL")
				return
			}
			for i := 0; i < rv.Len(); i++ {
				if i > 0 {
					b.WriteByte(',')
				}
				values = append(values, rv.Index(i).Interface())
				b.WriteString(p.Placeholder(len(values)))
			}
			return
		}
		values = append(values, value)
		b.WriteString(p.Placeholder(len(values)))
	}

	backslash := backslashEscapes(p)
	for i := 0; i < len(query); {
		if j := skipLiteral(query, i, backslash); j != i {
			b.WriteString(query[i:j])
			i = j
			continue
		}
		c := query[i]
		switch {
		case !isNamed && c == '?':
			if position >= len(args) {
				return "", nil, fmt.Errorf("XData.bind: %w: placeholder %d of %d argument(s)", ErrMissingParam, position+1, len(args))
			}
			emit(args[position])
			position++
			i++
		case isNamed && (c == ':' || c == '@'):
			if i+1 < len(query) && (query[i+1] == c) {
				// :: 类型转换或 @@ 系统变量
				j := i + 2
				for j < len(query) && isIdent(query[j]) {
					j++
				}
				b.WriteString(query[i:j])
				i = j
				continue
			}
			if (i > 0 && isIdent(query[i-1])) || i+1 >= len(query) || !(isLetter(query[i+1]) || query[i+1] == '_') {
				b.WriteByte(c)
				i++
				continue
			}
			j := i + 1
			for j < len(query) && isIdent(query[j]) {
				j++
			}
			name := query[i+1 : j]
			value, ok := named.Get(name)
			if !ok {
				return "", nil, fmt.Errorf("XData.bind: %w: %c%v", ErrMissingParam, c, name)
			}
			emit(value)
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	if !isNamed && position != len(args) {
		return "", nil, fmt.Errorf("XData.bind: %d placeholder(s) for %d argument(s)", position, len(args))
	}
	return b.String(), values, nil
}
