// Package utils 文本处理小工具，不依赖 internal
package utils

import (
	"strings"
	"unicode/utf8"
)

// CoalesceString 返回第一个非空（去空白后）字符串
func CoalesceString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultInt v<=0 时返回 defaultVal
func DefaultInt(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// SquashSpace 将连续空白折叠为单个空格并去除首尾空白
func SquashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLines 逐行折叠空白，保留换行；NBSP 视为空格
func NormalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = SquashSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Chunk 按 rune 数切分，不会切断多字节字符
func Chunk(s string, size int) []string {
	if s == "" || size <= 0 {
		return nil
	}
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
