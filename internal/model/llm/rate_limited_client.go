package llm

import (
	"context"
)

// RateLimitedClient 包装任意 Client，在真实调用前后执行限流控制
type RateLimitedClient struct {
	inner   Client
	limiter *RateLimiter
}

// NewRateLimitedClient limiter 为 nil 时退化为直接调用
func NewRateLimitedClient(inner Client, limiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, limiter: limiter}
}

// GenerateWithContext 实现 Client
func (c *RateLimitedClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		defer c.limiter.Release()
	}
	return c.inner.GenerateWithContext(ctx, prompt, options)
}

// Unwrap 返回底层 Client
func (c *RateLimitedClient) Unwrap() Client { return c.inner }

// Model 返回底层 Client 的模型名称
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }
