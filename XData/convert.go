// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// timeLayouts 是字符串转换为时间时依次尝试的格式。
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// assignValue 将驱动返回的值 src 赋给 dst。
// dst 必须是可设置的，nil 值会将 dst 置为零值（指针置为 nil）。
//
//	整型支持: Int, Int8, Int16, Int32, Int64 及其无符号类型，溢出时返回错误
//	浮点支持: Float32, Float64
//	其他支持: String, Bool, []byte, time.Time, sql.Scanner, 接口类型
func assignValue(dst reflect.Value, src any) error {
	if dst.CanAddr() && dst.Kind() != reflect.Pointer && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Pointer {
		if src == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assignValue(dst.Elem(), src)
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	if dst.Type() == timeType {
		t, ok := toTime(src)
		if !ok {
			return fmt.Errorf("XData.assignValue: cannot convert %T to time.Time", src)
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(toString(src))
		return nil
	case reflect.Bool:
		b, ok := toBool(src)
		if !ok {
			return fmt.Errorf("XData.assignValue: cannot convert %T(%v) to bool", src, src)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(src)
		if !ok {
			return fmt.Errorf("XData.assignValue: cannot convert %T(%v) to %v", src, src, dst.Type())
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("XData.assignValue: %v overflows %v", n, dst.Type())
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toUint64(src)
		if !ok {
			return fmt.Errorf("XData.assignValue: cannot convert %T(%v) to %v", src, src, dst.Type())
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("XData.assignValue: %v overflows %v", n, dst.Type())
		}
		dst.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(src)
		if !ok {
			return fmt.Errorf("XData.assignValue: cannot convert %T(%v) to %v", src, src, dst.Type())
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			var b []byte
			switch v := src.(type) {
			case []byte:
				b = append([]byte(nil), v...)
			case string:
				b = []byte(v)
			default:
				b = []byte(toString(src))
			}
			dst.SetBytes(b)
			return nil
		}
	case reflect.Interface:
		if b, ok := src.([]byte); ok {
			src = string(b)
		}
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	return fmt.Errorf("XData.assignValue: unsupported conversion from %T to %v", src, dst.Type())
}

// normalizeValue 将驱动返回的 []byte 转换为 string，其余值原样返回。
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// toString 是 String 类型转换辅助函数。
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(v)
	}
}

// toInt64 是 Int64 类型转换辅助函数，带有小数部分或超出 int64 范围的值转换失败。
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case float64:
		return floatToInt64(val)
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case []byte:
		return parseInt64(string(val))
	case string:
		return parseInt64(val)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if u := rv.Uint(); u <= math.MaxInt64 {
				return int64(u), true
			}
		case reflect.Float32, reflect.Float64:
			return floatToInt64(rv.Float())
		}
		return 0, false
	}
}

func parseInt64(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToInt64(f)
	}
	return 0, false
}

// floatToInt64 仅转换没有小数部分且位于 int64 范围内的浮点数。
func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// toUint64 是 Uint64 类型转换辅助函数，负数、带有小数部分或超出 uint64 范围的值转换失败。
func toUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case []byte:
		return parseUint64(string(val))
	case string:
		return parseUint64(val)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return floatToUint64(rv.Float())
	}
	if n, ok := toInt64(v); ok && n >= 0 {
		return uint64(n), true
	}
	return 0, false
}

func parseUint64(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToUint64(f)
	}
	return 0, false
}

// floatToUint64 仅转换没有小数部分且位于 uint64 范围内的浮点数。
func floatToUint64(f float64) (uint64, bool) {
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}

// toFloat64 是 Float64 类型转换辅助函数。
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		if n, ok := toInt64(v); ok {
			return float64(n), true
		}
		return 0, false
	}
}

// toBool 是 Bool 类型转换辅助函数。
func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(string(val)))
		return b, err == nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	default:
		if n, ok := toInt64(v); ok {
			return n != 0, true
		}
		return false, false
	}
}

// toTime 是 time.Time 类型转换辅助函数，整数按 Unix 秒处理。
func toTime(v any) (time.Time, bool) {
	var s string
	switch val := v.(type) {
	case time.Time:
		return val, true
	case int64:
		return time.Unix(val, 0), true
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
