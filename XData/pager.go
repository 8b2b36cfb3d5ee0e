// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import (
	"context"
	"errors"
)

var (
	// ErrInvalidPageSize 表示分页大小不是正数。
	ErrInvalidPageSize = errors.New("XData: invalid page size")
)

// DataSegment 定义了查询结果的区间。
type DataSegment interface {
	// Offset 返回跳过的行数。
	Offset() int

	// Limit 返回获取的行数，<= 0 表示不限制。
	Limit() int
}

// Segment 是以行号（从 1 开始，包含两端）表示的区间，End <= 0 表示不限制结束行。
type Segment struct {
	Start int
	End   int
}

func (s Segment) Offset() int { return max(s.Start-1, 0) }

func (s Segment) Limit() int {
	if s.Empty() || s.End <= 0 {
		return 0
	}
	return s.End - max(s.Start, 1) + 1
}

// Empty 判断区间是否不包含任何行，如 Segment{Start: 5, End: 4}。
func (s Segment) Empty() bool { return s.End > 0 && s.End < max(s.Start, 1) }

// emptier 是可以判断是否为空的区间。
type emptier interface {
	Empty() bool
}

// Evaluator 定义了分页的计算方式。
type Evaluator interface {
	// Evaluate 在获取数据前计算分页信息，并返回需要获取的区间。
	Evaluate(ctx context.Context, db *Database, pager *DataPager, query string, params []any) (DataSegment, error)

	// Settle 在获取数据后更新分页信息，返回需要保留的行数。
	Settle(pager *DataPager, fetched int) int
}

// DataPager 是按页表示的区间。
type DataPager struct {
	PageSize         int       // 每页的行数
	CurrentPageIndex int       // 当前页的索引，从 0 开始
	RecordCount      int       // 总行数
	PageCount        int       // 总页数
	Evaluator        Evaluator // 分页的计算方式，为 nil 时使用 TotalRecordEvaluator
}

// NewPager 创建分页器。
func NewPager(pageSize, pageIndex int, evaluator ...Evaluator) *DataPager {
	p := &DataPager{PageSize: pageSize, CurrentPageIndex: pageIndex}
	if len(evaluator) > 0 {
		p.Evaluator = evaluator[0]
	}
	return p
}

func (p *DataPager) Offset() int { return max(p.CurrentPageIndex, 0) * p.PageSize }

func (p *DataPager) Limit() int { return p.PageSize }

// TotalRecordEvaluator 通过 COUNT 查询计算总行数和总页数，
// 当前页超出最后一页时调整为最后一页，没有数据时为 0。
type TotalRecordEvaluator struct{}

func (TotalRecordEvaluator) Evaluate(ctx context.Context, db *Database, pager *DataPager, query string, params []any) (DataSegment, error) {
	count, err := Scalar[int64](ctx, db, db.Provider().Count(query), params...)
	if err != nil {
		return nil, err
	}
	pager.RecordCount = int(count)
	pager.PageCount = (pager.RecordCount + pager.PageSize - 1) / pager.PageSize
	if pager.CurrentPageIndex >= pager.PageCount {
		pager.CurrentPageIndex = max(pager.PageCount-1, 0)
	}
	return pager, nil
}

func (TotalRecordEvaluator) Settle(pager *DataPager, fetched int) int {
	return min(fetched, pager.PageSize)
}

// TryNextEvaluator 多获取一行以判断是否存在下一页，不执行 COUNT 查询。
// 总行数为已知的行数（之前各页与当前页之和），存在下一页时总页数为当前页数加一。
type TryNextEvaluator struct{}

func (TryNextEvaluator) Evaluate(ctx context.Context, db *Database, pager *DataPager, query string, params []any) (DataSegment, error) {
	offset := pager.Offset()
	return Segment{Start: offset + 1, End: offset + pager.PageSize + 1}, nil
}

func (TryNextEvaluator) Settle(pager *DataPager, fetched int) int {
	kept := min(fetched, pager.PageSize)
	pager.RecordCount = pager.Offset() + kept
	pager.PageCount = pager.CurrentPageIndex
	if kept > 0 {
		pager.PageCount++
	}
	if fetched > pager.PageSize {
		pager.PageCount++
	}
	return kept
}

// ExecuteSegment 执行查询并映射 segment 区间内的行，segment 为 nil 时不限制，空的区间不执行查询。
func ExecuteSegment[T any](ctx context.Context, db *Database, query string, segment DataSegment, mapper RowMapper[T], params ...any) ([]T, error) {
	if segment != nil {
		if e, ok := segment.(emptier); ok && e.Empty() {
			return []T{}, nil
		}
		query = db.Provider().Segment(query, segment.Offset(), segment.Limit())
	}
	return ExecuteEnumerable(ctx, db, query, mapper, params...)
}

// ExecutePage 执行分页查询并更新 pager 的分页信息。
// 分页计算与数据获取在同一个数据源上执行。
//
//	pager := XData.NewPager(20, 0, XData.TryNextEvaluator{})
//	users, err := XData.ExecutePage[User](ctx, db, "SELECT * FROM users ORDER BY id", pager, nil)
func ExecutePage[T any](ctx context.Context, db *Database, query string, pager *DataPager, mapper RowMapper[T], params ...any) ([]T, error) {
	if pager == nil {
		return ExecuteEnumerable(ctx, db, query, mapper, params...)
	}
	if pager.PageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if pager.CurrentPageIndex < 0 {
		pager.CurrentPageIndex = 0
	}
	evaluator := pager.Evaluator
	if evaluator == nil {
		evaluator = TotalRecordEvaluator{}
	}
	ctx, err := db.pin(ctx)
	if err != nil {
		return nil, err
	}
	segment, err := evaluator.Evaluate(ctx, db, pager, query, params)
	if err != nil {
		return nil, err
	}
	items, err := ExecuteSegment(ctx, db, query, segment, mapper, params...)
	if err != nil {
		return nil, err
	}
	return items[:evaluator.Settle(pager, len(items))], nil
}
