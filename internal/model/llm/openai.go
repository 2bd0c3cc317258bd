package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	pkgerrors "listing-watcher/pkg/errors"
)

// OpenAIConfig OpenAI 兼容端点配置（OpenRouter 亦适用）
type OpenAIConfig struct {
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	SiteURL  string // OpenRouter HTTP-Referer
	AppTitle string // OpenRouter X-Title
}

// RateLimitInfo 最近一次响应中的 X-RateLimit-* 头
type RateLimitInfo struct {
	Limit     *int64    `json:"limit,omitempty"`
	Remaining *int64    `json:"remaining,omitempty"`
	ResetMs   *int64    `json:"reset_ms,omitempty"`
	At        time.Time `json:"at"`
}

// OpenAIClient OpenAI 兼容客户端；不做内部重试，重试由调用方的策略决定
type OpenAIClient struct {
	model   string
	baseURL string
	client  *resty.Client

	mu        sync.RWMutex
	rateLimit RateLimitInfo
}

// NewOpenAIClient 创建客户端；BaseURL 为空时使用 OpenAI 官方地址
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)
	if cfg.SiteURL != "" {
		client.SetHeader("HTTP-Referer", cfg.SiteURL)
	}
	if cfg.AppTitle != "" {
		client.SetHeader("X-Title", cfg.AppTitle)
	}

	return &OpenAIClient{
		model:   cfg.Model,
		baseURL: baseURL,
		client:  client,
	}
}

// GenerateWithContext 单轮 user 消息生成；空内容返回 "(empty)"
func (c *OpenAIClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	request := map[string]interface{}{
		"model":       c.model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": options.Temperature,
	}
	if options.MaxTokens > 0 {
		request["max_tokens"] = options.MaxTokens
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetBody(request).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", pkgerrors.Wrap(err, "调用 chat completions failed")
	}
	c.recordRateLimit(response)

	if !response.IsSuccess() {
		return "", &pkgerrors.StatusError{Op: "chat completions", Code: response.StatusCode(), Body: response.String()}
	}

	content := gjson.GetBytes(response.Body(), "choices.0.message.content")
	if !content.Exists() {
		body := response.String()
		if len(body) > 400 {
			body = body[:400]
		}
		return "", pkgerrors.Transient(fmt.Errorf("unexpected response format: %s", body))
	}
	text := strings.TrimSpace(content.String())
	if text == "" {
		return "(empty)", nil
	}
	return text, nil
}

func parseHeaderInt(v string) *int64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	n := int64(f)
	return &n
}

func (c *OpenAIClient) recordRateLimit(resp *resty.Response) {
	h := resp.Header()
	info := RateLimitInfo{
		Limit:     parseHeaderInt(h.Get("X-RateLimit-Limit")),
		Remaining: parseHeaderInt(h.Get("X-RateLimit-Remaining")),
		ResetMs:   parseHeaderInt(h.Get("X-RateLimit-Reset")),
		At:        time.Now(),
	}
	c.mu.Lock()
	c.rateLimit = info
	c.mu.Unlock()
}

// RateLimit 最近一次记录的限流信息
func (c *OpenAIClient) RateLimit() RateLimitInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimit
}

// Model 返回模型名称
func (c *OpenAIClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *OpenAIClient) Provider() string {
	return "openai"
}
