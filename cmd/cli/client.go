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

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("WATCHER_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// Client 控制 API 客户端
type Client struct {
	rc *resty.Client
}

// NewClient token 非空时附带 Bearer 头
func NewClient(baseURL, token string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{rc: rc}
}

func newClient() *Client {
	return NewClient(apiBaseURL(), os.Getenv("WATCHER_API_TOKEN"))
}

// call 发送请求；2xx 以外的状态码作为错误返回，响应体原样保留在 out 中
func (c *Client) call(method, path string, body interface{}, out *map[string]interface{}) (int, error) {
	req := c.rc.R().SetResult(out).SetError(out)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return resp.StatusCode(), fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), resp.String())
	}
	return resp.StatusCode(), nil
}

// Status GET /api/status
func (c *Client) Status() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	_, err := c.call(http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Start POST /api/watch/start
func (c *Client) Start(dest string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	_, err := c.call(http.MethodPost, "/api/watch/start", map[string]string{"destination": dest}, &out)
	return out, err
}

// Stop POST /api/watch/stop
func (c *Client) Stop() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	_, err := c.call(http.MethodPost, "/api/watch/stop", nil, &out)
	return out, err
}

// Accept 返回的结果在非 2xx 时同样可用（outcome 字段）
func (c *Client) Accept(handle, dest string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	_, err := c.call(http.MethodPost, "/api/items/"+handle+"/accept", map[string]string{"destination": dest}, &out)
	return out, err
}

// Skip POST /api/items/:handle/skip
func (c *Client) Skip(handle string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	_, err := c.call(http.MethodPost, "/api/items/"+handle+"/skip", nil, &out)
	return out, err
}

// Login 换取 JWT
func (c *Client) Login(username, password string) (string, error) {
	out := map[string]interface{}{}
	if _, err := c.call(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password}, &out); err != nil {
		return "", err
	}
	token, _ := out["token"].(string)
	if token == "" {
		return "", fmt.Errorf("login: empty token")
	}
	return token, nil
}
