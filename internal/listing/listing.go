// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package listing 定义列表源的抓取能力（列表、详情、存活检查）及 HTML / JSON 两种实现
package listing

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"listing-watcher/pkg/config"
)

// Entry 列表中的一项；列表按新到旧排列，下标 0 最新
type Entry struct {
	Handle     string
	Ordinal    int64
	HasOrdinal bool
}

// Record 详情页解析结果，构造后不再修改
type Record struct {
	Handle      string            `json:"handle"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags,omitempty"`
	Price       string            `json:"price,omitempty"`
	Days        string            `json:"days,omitempty"`
	Deadline    string            `json:"deadline,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Fetcher 列表与详情抓取；同一实例只被单个抓取协程顺序调用
type Fetcher interface {
	FetchListing(ctx context.Context, limit int) ([]Entry, error)
	FetchDetail(ctx context.Context, handle string) (*Record, error)
}

// Reloader 可选能力：丢弃缓存的列表状态，下一轮重新加载
type Reloader interface {
	Reload(ctx context.Context) error
}

// LivenessChecker 可选能力：无法判断时应返回 true
type LivenessChecker interface {
	CheckLiveness(ctx context.Context, handle string) bool
}

var ordinalRe = regexp.MustCompile(`-(\d+)$`)

// ExtractOrdinal 从 handle 末尾的 "-<数字>" 提取序号，忽略 query 与结尾斜杠
func ExtractOrdinal(handle string) (int64, bool) {
	h := handle
	if i := strings.IndexAny(h, "?#"); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimRight(h, "/")
	m := ordinalRe.FindStringSubmatch(h)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NewEntry 由 handle 构造 Entry 并提取序号
func NewEntry(handle string) Entry {
	n, ok := ExtractOrdinal(handle)
	return Entry{Handle: handle, Ordinal: n, HasOrdinal: ok}
}

// ResolveURL 将相对 handle 解析为相对 base 的绝对地址
func ResolveURL(base, handle string) string {
	if handle == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return handle
	}
	ref, err := url.Parse(handle)
	if err != nil {
		return handle
	}
	return b.ResolveReference(ref).String()
}

// New 按 fetcher.type 创建抓取器
func New(listURL string, cfg config.FetcherConfig) (Fetcher, error) {
	switch cfg.Type {
	case "", "html":
		return NewHTMLFetcher(listURL, cfg), nil
	case "json":
		return NewJSONFetcher(listURL, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", cfg.Type)
	}
}
