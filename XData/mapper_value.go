// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"database/sql"
	"fmt"
	"reflect"
)

// SingleValueRowMapper 将当前行的第一列转换为 T 类型的值，其余列被忽略。
// T 可以是基础类型、命名的基础类型、time.Time、sql.Scanner 的实现或它们的指针，
// 指针类型在列值为 NULL 时返回 nil。
type SingleValueRowMapper[T any] struct{}

// Map 映射当前行。
func (SingleValueRowMapper[T]) Map(rows *sql.Rows) (T, error) {
	var out T
	_, values, err := scanValues(rows)
	if err != nil {
		return out, err
	}
	if err := assignValue(reflect.ValueOf(&out).Elem(), values[0]); err != nil {
		return out, fmt.Errorf("XData.SingleValueRowMapper(%v): %w", reflect.TypeFor[T](), err)
	}
	return out, nil
}
