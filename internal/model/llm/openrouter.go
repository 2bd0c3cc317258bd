package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	pkgerrors "listing-watcher/pkg/errors"
)

// DefaultOpenRouterURL OpenRouter API 地址
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// KeyInfo /key 返回的关键字段
type KeyInfo struct {
	Label      string `json:"label,omitempty"`
	IsFreeTier *bool  `json:"is_free_tier,omitempty"`
	LimitReset string `json:"limit_reset,omitempty"`
}

// Credits /credits 返回值
type Credits struct {
	Total float64 `json:"total_credits"`
	Used  float64 `json:"total_usage"`
}

// OpenRouterAccount 查询 OpenRouter 账户状态（状态报告用，尽力而为）
type OpenRouterAccount struct {
	client *resty.Client
}

// NewOpenRouterAccount baseURL 为空时使用 DefaultOpenRouterURL
func NewOpenRouterAccount(baseURL, apiKey string, timeout time.Duration) *OpenRouterAccount {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenRouterAccount{
		client: resty.New().SetBaseURL(baseURL).SetAuthToken(apiKey).SetTimeout(timeout),
	}
}

func (a *OpenRouterAccount) get(ctx context.Context, path string) (gjson.Result, error) {
	resp, err := a.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return gjson.Result{}, pkgerrors.Transient(err)
	}
	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > 300 {
			body = body[:300]
		}
		return gjson.Result{}, &pkgerrors.StatusError{Op: "openrouter " + path, Code: resp.StatusCode(), Body: body}
	}
	return gjson.ParseBytes(resp.Body()), nil
}

// Key GET /key
func (a *OpenRouterAccount) Key(ctx context.Context) (*KeyInfo, error) {
	res, err := a.get(ctx, "/key")
	if err != nil {
		return nil, err
	}
	data := res.Get("data")
	info := &KeyInfo{
		Label:      data.Get("label").String(),
		LimitReset: data.Get("limit_reset").String(),
	}
	if ft := data.Get("is_free_tier"); ft.Exists() && (ft.Type == gjson.True || ft.Type == gjson.False) {
		v := ft.Bool()
		info.IsFreeTier = &v
	}
	return info, nil
}

// Credits GET /credits
func (a *OpenRouterAccount) Credits(ctx context.Context) (*Credits, error) {
	res, err := a.get(ctx, "/credits")
	if err != nil {
		return nil, err
	}
	return &Credits{
		Total: res.Get("data.total_credits").Float(),
		Used:  res.Get("data.total_usage").Float(),
	}, nil
}

// FreeDailyLimit 免费模型每日额度：累计充值 >= 10 为 1000，否则 50
func (a *OpenRouterAccount) FreeDailyLimit(ctx context.Context) (int, error) {
	c, err := a.Credits(ctx)
	if err != nil {
		return 0, err
	}
	if c.Total >= 10 {
		return 1000, nil
	}
	return 50, nil
}
