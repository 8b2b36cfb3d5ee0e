// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eframework-org/GO.UTIL/XTime"
)

var (
	// ErrColumnCount 表示批量执行时各行的参数数量不一致。
	ErrColumnCount = errors.New("XData: column count mismatch")
)

// ExecuteNonQuery 在主库上执行命令并返回受影响的行数。
// 参数可以是按顺序绑定 ? 的值，也可以是单个 Parameters、结构体或 map[string]any（绑定 @name 或 :name）。
// 不在事务中时，成功的写操作会推进分组的同步标记。
func (db *Database) ExecuteNonQuery(ctx context.Context, query string, params ...any) (int64, error) {
	start := XTime.GetMicrosecond()
	c, err := db.connection(ctx, ModeWrite)
	if err != nil {
		db.trace(kindExec, nil, query, start, err)
		return 0, err
	}
	q, args, err := bind(c.source.Provider(), query, params)
	if err != nil {
		db.trace(kindExec, c.source, query, start, err)
		return 0, err
	}

	tctx, cancel := db.withTimeout(ctx)
	defer cancel()
	result, err := c.exec.ExecContext(tctx, q, args...)
	var n int64
	if err == nil {
		n, err = result.RowsAffected()
	}
	db.trace(kindExec, c.source, q, start, err)
	if err != nil {
		return 0, err
	}
	if !c.tx {
		stampGroup(ctx, c.source)
	}
	return n, nil
}

// query 按读写模式执行查询，返回的 cancel 应在 rows 关闭后调用。
func (db *Database) query(ctx context.Context, kind string, mode DistributedMode, timeout bool, query string, params []any) (*sql.Rows, context.CancelFunc, error) {
	start := XTime.GetMicrosecond()
	c, err := db.connection(ctx, mode)
	if err != nil {
		db.trace(kind, nil, query, start, err)
		return nil, nil, err
	}
	q, args, err := bind(c.source.Provider(), query, params)
	if err != nil {
		db.trace(kind, c.source, query, start, err)
		return nil, nil, err
	}

	cancel := context.CancelFunc(func() {})
	if timeout {
		ctx, cancel = db.withTimeout(ctx)
	}
	rows, err := c.exec.QueryContext(ctx, q, args...)
	db.trace(kind, c.source, q, start, err)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return rows, cancel, nil
}

// ExecuteScalar 执行查询并返回第一行第一列的值，没有结果时返回 sql.ErrNoRows。
// 驱动返回的 []byte 会被转换为 string。
func (db *Database) ExecuteScalar(ctx context.Context, query string, params ...any) (any, error) {
	rows, cancel, err := db.query(ctx, kindScalar, ModeRead, true, query, params)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	_, values, err := scanValues(rows)
	if err != nil {
		return nil, err
	}
	return normalizeValue(values[0]), nil
}

// Scalar 执行查询并将第一行第一列的值转换为 T，没有结果时返回 sql.ErrNoRows。
func Scalar[T any](ctx context.Context, db *Database, query string, params ...any) (T, error) {
	return Get(ctx, db, query, SingleValueRowMapper[T]{}, params...)
}

// ExecuteReader 执行查询并返回结果集，调用方负责关闭。
// 结果集的生命周期由调用方控制，不受 WithTimeout 的限制。
func (db *Database) ExecuteReader(ctx context.Context, query string, params ...any) (*sql.Rows, error) {
	rows, _, err := db.query(ctx, kindQuery, ModeRead, false, query, params)
	return rows, err
}

// ExecuteEnumerable 执行查询并使用 mapper 映射所有行，mapper 为 nil 时使用 MapperFor[T]()。
//
//	users, err := XData.ExecuteEnumerable[User](ctx, db, "SELECT * FROM users WHERE age > ?", nil, 18)
func ExecuteEnumerable[T any](ctx context.Context, db *Database, query string, mapper RowMapper[T], params ...any) ([]T, error) {
	rows, cancel, err := db.query(ctx, kindQuery, ModeRead, true, query, params)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return collect(rows, mapper, -1)
}

// Get 执行查询并映射第一行，没有结果时返回 sql.ErrNoRows。
func Get[T any](ctx context.Context, db *Database, query string, mapper RowMapper[T], params ...any) (T, error) {
	var zero T
	rows, cancel, err := db.query(ctx, kindQuery, ModeRead, true, query, params)
	if err != nil {
		return zero, err
	}
	defer cancel()
	items, err := collect(rows, mapper, 1)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, sql.ErrNoRows
	}
	return items[0], nil
}

// ExecuteRecords 执行查询并返回无类型的数据行。
func (db *Database) ExecuteRecords(ctx context.Context, query string, params ...any) ([]Record, error) {
	return ExecuteEnumerable[Record](ctx, db, query, recordMapper{}, params...)
}

// collect 映射结果集的行并关闭结果集，limit < 0 时不限制行数。
func collect[T any](rows *sql.Rows, mapper RowMapper[T], limit int) ([]T, error) {
	defer rows.Close()
	if mapper == nil {
		mapper = MapperFor[T]()
	}
	var items []T
	for (limit < 0 || len(items) < limit) && rows.Next() {
		item, err := mapper.Map(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// ExecuteBatch 使用同一条预编译语句逐行执行命令，返回受影响的总行数。
// 各行的参数经过绑定后数量必须一致，否则返回 ErrColumnCount。
// 命令在当前事务（显式事务或事务范围）中执行，不存在时开启新的事务，任一行失败则整体回滚。
func (db *Database) ExecuteBatch(ctx context.Context, query string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := XTime.GetMicrosecond()
	c, err := db.connection(ctx, ModeWrite)
	if err != nil {
		db.trace(kindBatch, nil, query, start, err)
		return 0, err
	}
	p := c.source.Provider()
	q, first, err := bind(p, query, rows[0])
	if err != nil {
		db.trace(kindBatch, c.source, query, start, err)
		return 0, err
	}

	var own *sql.Tx
	exec := c.exec
	if !c.tx {
		own, err = c.source.DB().BeginTx(ctx, nil)
		if err != nil {
			db.trace(kindBatch, c.source, q, start, err)
			return 0, err
		}
		exec = own
	}

	total, err := func() (int64, error) {
		tctx, cancel := db.withTimeout(ctx)
		defer cancel()
		stmt, err := exec.PrepareContext(tctx, q)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		var total int64
		for i, row := range rows {
			args := first
			if i > 0 {
				var bq string
				bq, args, err = bind(p, query, row)
				if err != nil {
					return 0, fmt.Errorf("XData.Database.ExecuteBatch: row %d: %w", i, err)
				}
				if bq != q || len(args) != len(first) {
					return 0, fmt.Errorf("XData.Database.ExecuteBatch: row %d: %w: %d != %d", i, ErrColumnCount, len(args), len(first))
				}
			}
			result, err := stmt.ExecContext(tctx, args...)
			if err != nil {
				return 0, fmt.Errorf("XData.Database.ExecuteBatch: row %d: %w", i, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}()

	if own != nil {
		if err != nil {
			_ = own.Rollback()
		} else if err = own.Commit(); err == nil {
			stampGroup(ctx, c.source)
		}
	}
	db.trace(kindBatch, c.source, q, start, err)
	if err != nil {
		return 0, err
	}
	return total, nil
}
