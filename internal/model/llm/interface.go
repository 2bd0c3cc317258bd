package llm

import (
	"context"
	"fmt"
	"time"

	"listing-watcher/pkg/config"
)

// Client LLM 客户端接口
type Client interface {
	// GenerateWithContext 使用上下文生成文本
	GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// DefaultOptions 取配置中的温度
func DefaultOptions(cfg config.ModelConfig) GenerateOptions {
	return GenerateOptions{Temperature: cfg.Temperature}
}

// NewClient 按 model.provider 创建客户端，并按配置包一层限流
func NewClient(ctx context.Context, cfg config.ModelConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model.api_key is not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model.model is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	var inner Client
	switch cfg.Provider {
	case "", "openai", "openrouter":
		inner = NewOpenAIClient(OpenAIConfig{
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Timeout:  timeout,
			SiteURL:  cfg.SiteURL,
			AppTitle: cfg.AppTitle,
		})
	case "eino":
		c, err := NewEinoClient(ctx, cfg.Model, cfg.APIKey, cfg.BaseURL, timeout)
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}

	if cfg.RequestsPerMinute <= 0 && cfg.MaxConcurrent <= 0 {
		return inner, nil
	}
	return NewRateLimitedClient(inner, NewRateLimiter(LimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxConcurrent:     cfg.MaxConcurrent,
	})), nil
}
