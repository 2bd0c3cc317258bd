package llm

import (
	"context"
	"time"

	"listing-watcher/internal/listing"
	"listing-watcher/pkg/metrics"
)

// RateLimitReporter 可报告最近一次限流头的客户端
type RateLimitReporter interface {
	RateLimit() RateLimitInfo
}

// RateLimitOf 沿 Unwrap 链查找限流信息
func RateLimitOf(c Client) (RateLimitInfo, bool) {
	for c != nil {
		if r, ok := c.(RateLimitReporter); ok {
			return r.RateLimit(), true
		}
		u, ok := c.(interface{ Unwrap() Client })
		if !ok {
			break
		}
		c = u.Unwrap()
	}
	return RateLimitInfo{}, false
}

// ReplyGenerator 由 Record 构造 prompt 并调用模型；成功后计入当日用量
type ReplyGenerator struct {
	client  Client
	prompt  *PromptBuilder
	options GenerateOptions
	usage   *DailyUsage
}

// NewReplyGenerator usage 可为 nil
func NewReplyGenerator(client Client, prompt *PromptBuilder, options GenerateOptions, usage *DailyUsage) *ReplyGenerator {
	if prompt == nil {
		prompt = NewPromptBuilder("", "")
	}
	return &ReplyGenerator{client: client, prompt: prompt, options: options, usage: usage}
}

// Generate 单次生成，不做重试
func (g *ReplyGenerator) Generate(ctx context.Context, rec *listing.Record) (string, error) {
	start := time.Now()
	text, err := g.client.GenerateWithContext(ctx, g.prompt.Build(rec), g.options)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GenerationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if g.usage != nil {
		g.usage.Inc()
	}
	return text, nil
}

// Usage 用量计数器
func (g *ReplyGenerator) Usage() *DailyUsage { return g.usage }

// RateLimit 底层客户端的限流信息
func (g *ReplyGenerator) RateLimit() (RateLimitInfo, bool) { return RateLimitOf(g.client) }
