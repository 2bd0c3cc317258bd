package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitConfig 生成调用限流配置
type LimitConfig struct {
	RequestsPerMinute float64 // 每分钟请求数，<=0 不限
	MaxConcurrent     int     // 最大并发请求数，<=0 不限
}

// RateLimiter 请求速率 + 并发控制
type RateLimiter struct {
	requests  *rate.Limiter
	semaphore chan struct{}
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg LimitConfig) *RateLimiter {
	l := &RateLimiter{}
	if cfg.RequestsPerMinute > 0 {
		rps := cfg.RequestsPerMinute / 60.0
		burst := int(rps * 2) // burst = 2 秒的配额
		if burst < 1 {
			burst = 1
		}
		l.requests = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if cfg.MaxConcurrent > 0 {
		l.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return l
}

// Wait 等待执行许可；成功后必须调用 Release
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			return fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if l.semaphore != nil {
		select {
		case l.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release 释放并发 slot
func (l *RateLimiter) Release() {
	if l.semaphore == nil {
		return
	}
	select {
	case <-l.semaphore:
	default:
	}
}
