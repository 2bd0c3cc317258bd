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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
)

func newRestyClient(cfg config.FetcherConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	c := resty.New().SetTimeout(timeout)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return c
}

// get 非 2xx 返回 *StatusError，网络错误原样返回（由 IsTransient 判定）
func get(ctx context.Context, c *resty.Client, op, target string) ([]byte, error) {
	resp, err := c.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, pkgerrors.Wrap(err, op)
	}
	if !resp.IsSuccess() {
		return nil, &pkgerrors.StatusError{Op: op, Code: resp.StatusCode(), Body: resp.String()}
	}
	return resp.Body(), nil
}

// checkLiveness 404/410 视为已下线，其它情况（含请求失败）视为存活
func checkLiveness(ctx context.Context, c *resty.Client, target string) bool {
	resp, err := c.R().SetContext(ctx).Get(target)
	if err != nil {
		return true
	}
	switch resp.StatusCode() {
	case http.StatusNotFound, http.StatusGone:
		return false
	default:
		return true
	}
}
