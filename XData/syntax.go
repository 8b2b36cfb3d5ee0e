// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XData

import "strings"

// skipLiteral 跳过位于 i 处的字符串常量、引用标识符或注释。
// 返回跳过后的位置，若 i 处不是上述结构则原样返回 i。
// 支持 '...'（'' 转义）、"..."、`...`、-- 行注释、/* */ 块注释以及 PostgreSQL 的 $tag$...$tag$ 块。
// backslash 为 true 时（MySQL），'...' 和 "..." 中的 \ 转义其后的字符。
func skipLiteral(q string, i int, backslash bool) int {
	n := len(q)
	if i >= n {
		return i
	}
	switch c := q[i]; c {
	case '\'', '"':
		if c == '"' && !backslash {
			if j := strings.IndexByte(q[i+1:], c); j >= 0 {
				return i + j + 2
			}
			return n
		}
		for j := i + 1; j < n; j++ {
			switch {
			case backslash && q[j] == '\\':
				j++
			case q[j] == c:
				if j+1 < n && q[j+1] == c {
					j++
					continue
				}
				return j + 1
			}
		}
		return n
	case '`':
		if j := strings.IndexByte(q[i+1:], c); j >= 0 {
			return i + j + 2
		}
		return n
	case '-':
		if i+1 < n && q[i+1] == '-' {
			if j := strings.IndexByte(q[i:], '\n'); j >= 0 {
				return i + j + 1
			}
			return n
		}
	case '/':
		if i+1 < n && q[i+1] == '*' {
			if j := strings.Index(q[i+2:], "*/"); j >= 0 {
				return i + j + 4
			}
			return n
		}
	case '$':
		// $1 是占位符，不是标签
		j := i + 1
		for j < n && (q[j] == '_' || isLetter(q[j]) || (j > i+1 && isDigit(q[j]))) {
			j++
		}
		if j < n && q[j] == '$' {
			tag := q[i : j+1]
			if k := strings.Index(q[j+1:], tag); k >= 0 {
				return j + 1 + k + len(tag)
			}
			return n
		}
	}
	return i
}

// findTopLevel 查找最后一个位于顶层（不在括号、常量或注释中）的关键字序列。
// words 为关键字序列，如 ["ORDER", "BY"]，各关键字之间允许任意空白。
// 返回关键字的起始位置，未找到则返回 -1。
func findTopLevel(q string, backslash bool, words ...string) int {
	last := -1
	depth := 0
	for i := 0; i < len(q); {
		if j := skipLiteral(q, i, backslash); j != i {
			i = j
			continue
		}
		switch q[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && matchWords(q, i, words) {
				last = i
			}
		}
		i++
	}
	return last
}

// matchWords 判断 q 的 i 处是否为完整的关键字序列（忽略大小写）。
func matchWords(q string, i int, words []string) bool {
	if i > 0 && isIdent(q[i-1]) {
		return false
	}
	j := i
	for k, w := range words {
		if k > 0 {
			start := j
			for j < len(q) && isSpace(q[j]) {
				j++
			}
			if j == start {
				return false
			}
		}
		if j+len(w) > len(q) || !strings.EqualFold(q[j:j+len(w)], w) {
			return false
		}
		j += len(w)
	}
	return j == len(q) || !isIdent(q[j])
}

func isLetter(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isIdent(c byte) bool { return c == '_' || isLetter(c) || isDigit(c) }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
