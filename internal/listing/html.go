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

package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
	"listing-watcher/pkg/utils"
)

// HTMLFetcher 基于 CSS 选择器解析服务端渲染的列表页与详情页
// 列表文档在两次 Reload 之间被缓存，对应浏览器会话中停留在列表页的状态
type HTMLFetcher struct {
	listURL string
	sel     config.HTMLSelectors
	client  *resty.Client

	listDoc *goquery.Document
}

// NewHTMLFetcher 创建 HTML 抓取器
func NewHTMLFetcher(listURL string, cfg config.FetcherConfig) *HTMLFetcher {
	return &HTMLFetcher{
		listURL: listURL,
		sel:     cfg.HTML,
		client:  newRestyClient(cfg),
	}
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Structural(err)
	}
	return doc, nil
}

// FetchListing 返回前 limit 个卡片链接；未找到任何卡片视为结构错误
func (f *HTMLFetcher) FetchListing(ctx context.Context, limit int) ([]Entry, error) {
	if f.listDoc == nil {
		body, err := get(ctx, f.client, "fetch listing", f.listURL)
		if err != nil {
			return nil, err
		}
		doc, err := parseDocument(body)
		if err != nil {
			return nil, err
		}
		f.listDoc = doc
	}

	cards := f.listDoc.Find(f.sel.Card)
	if cards.Length() == 0 {
		f.listDoc = nil
		return nil, pkgerrors.Structural(fmt.Errorf("no listing cards match %q", f.sel.Card))
	}

	entries := make([]Entry, 0, limit)
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if limit > 0 && len(entries) >= limit {
			return false
		}
		link := card.Find(f.sel.Link).First()
		if link.Length() == 0 && card.Is("a") {
			link = card
		}
		if href, ok := link.Attr("href"); ok && strings.TrimSpace(href) != "" {
			entries = append(entries, NewEntry(strings.TrimSpace(href)))
		}
		return true
	})
	return entries, nil
}

// Reload 丢弃缓存的列表文档
func (f *HTMLFetcher) Reload(_ context.Context) error {
	f.listDoc = nil
	return nil
}

// FetchDetail 拉取并解析详情页；缺失 content 结构元素返回 Structural 错误
func (f *HTMLFetcher) FetchDetail(ctx context.Context, handle string) (*Record, error) {
	target := ResolveURL(f.listURL, handle)
	body, err := get(ctx, f.client, "fetch detail", target)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return f.parseDetail(doc, handle, target)
}

func (f *HTMLFetcher) parseDetail(doc *goquery.Document, handle, target string) (*Record, error) {
	root := doc.Selection
	if f.sel.Content != "" {
		root = doc.Find(f.sel.Content).First()
		if root.Length() == 0 {
			return nil, pkgerrors.Structural(fmt.Errorf("detail %s: missing %q", handle, f.sel.Content))
		}
	}
	text := func(sel string) string {
		if sel == "" {
			return ""
		}
		// 详情页的侧栏可能在 content 之外，找不到时退回整页查找
		s := root.Find(sel).First()
		if s.Length() == 0 {
			s = doc.Find(sel).First()
		}
		return utils.SquashSpace(s.Text())
	}

	rec := &Record{
		Handle: handle,
		URL:    target,
		Title:  text(f.sel.Title),
		Price:  text(f.sel.Price),
	}
	if f.sel.Description != "" {
		rec.Description = utils.NormalizeLines(root.Find(f.sel.Description).First().Text())
	}
	if f.sel.Tags != "" {
		root.Find(f.sel.Tags).Each(func(_ int, s *goquery.Selection) {
			if t := utils.SquashSpace(s.Text()); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		})
	}
	rec.Deadline = text(f.sel.Deadline)
	days := text(f.sel.Days)
	if rec.Deadline != "" {
		days = utils.SquashSpace(strings.Replace(days, rec.Deadline, "", 1))
	}
	rec.Days = days

	if rec.Title == "" && rec.Description == "" {
		return nil, pkgerrors.Structural(errors.New("detail " + handle + ": empty title and description"))
	}
	return rec, nil
}

// CheckLiveness 详情页返回 404/410 时视为已下线
func (f *HTMLFetcher) CheckLiveness(ctx context.Context, handle string) bool {
	return checkLiveness(ctx, f.client, ResolveURL(f.listURL, handle))
}
