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
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
	"listing-watcher/pkg/utils"
)

// JSONFetcher 面向 JSON API 的列表源，字段通过 gjson 路径定位
type JSONFetcher struct {
	listURL string
	paths   config.JSONPaths
	client  *resty.Client
}

// NewJSONFetcher 创建 JSON 抓取器
func NewJSONFetcher(listURL string, cfg config.FetcherConfig) *JSONFetcher {
	p := cfg.JSON
	if p.Handle == "" {
		p.Handle = "id"
	}
	if p.Title == "" {
		p.Title = "title"
	}
	return &JSONFetcher{
		listURL: listURL,
		paths:   p,
		client:  newRestyClient(cfg).SetHeader("Accept", "application/json"),
	}
}

// FetchListing 取 items 路径下的数组，按源顺序（新到旧）返回前 limit 项
func (f *JSONFetcher) FetchListing(ctx context.Context, limit int) ([]Entry, error) {
	body, err := get(ctx, f.client, "fetch listing", f.listURL)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, pkgerrors.Structural(errors.New("listing is not valid json"))
	}
	items := gjson.ParseBytes(body)
	if f.paths.Items != "" {
		items = items.Get(f.paths.Items)
	}
	if !items.IsArray() {
		return nil, pkgerrors.Structural(fmt.Errorf("listing path %q is not an array", f.paths.Items))
	}

	var entries []Entry
	for _, item := range items.Array() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		h := strings.TrimSpace(item.Get(f.paths.Handle).String())
		if h == "" {
			continue
		}
		entries = append(entries, NewEntry(h))
	}
	return entries, nil
}

func (f *JSONFetcher) detailURL(handle string) string {
	if f.paths.DetailURL == "" {
		return ResolveURL(f.listURL, handle)
	}
	return strings.ReplaceAll(f.paths.DetailURL, "{handle}", url.PathEscape(handle))
}

// FetchDetail 拉取详情 JSON；title 路径不存在时返回 Structural 错误
func (f *JSONFetcher) FetchDetail(ctx context.Context, handle string) (*Record, error) {
	target := f.detailURL(handle)
	body, err := get(ctx, f.client, "fetch detail", target)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, pkgerrors.Structural(fmt.Errorf("detail %s is not valid json", handle))
	}
	doc := gjson.ParseBytes(body)
	title := doc.Get(f.paths.Title)
	if !title.Exists() {
		return nil, pkgerrors.Structural(fmt.Errorf("detail %s: missing %q", handle, f.paths.Title))
	}

	str := func(path string) string {
		if path == "" {
			return ""
		}
		return utils.SquashSpace(doc.Get(path).String())
	}
	rec := &Record{
		Handle:   handle,
		Title:    utils.SquashSpace(title.String()),
		URL:      utils.CoalesceString(str(f.paths.URL), target),
		Price:    str(f.paths.Price),
		Days:     str(f.paths.Days),
		Deadline: str(f.paths.Deadline),
	}
	if f.paths.Description != "" {
		rec.Description = utils.NormalizeLines(doc.Get(f.paths.Description).String())
	}
	if f.paths.Tags != "" {
		doc.Get(f.paths.Tags).ForEach(func(_, v gjson.Result) bool {
			if t := utils.SquashSpace(v.String()); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
			return true
		})
	}
	return rec, nil
}

// CheckLiveness 详情接口返回 404/410 时视为已下线
func (f *JSONFetcher) CheckLiveness(ctx context.Context, handle string) bool {
	return checkLiveness(ctx, f.client, f.detailURL(handle))
}
