package app

import (
	"context"
	"fmt"
	"strings"

	"listing-watcher/internal/model/llm"
	"listing-watcher/pkg/config"
)

// NewGeneratorFromConfig 根据 config.Model 与 config.Action 创建回复生成器
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config) (*llm.ReplyGenerator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	client, err := llm.NewClient(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	prompt, err := llm.LoadPromptBuilder(cfg.Action.PromptFile, cfg.Action.PortfolioURL)
	if err != nil {
		return nil, fmt.Errorf("加载 prompt 模板失败: %w", err)
	}
	return llm.NewReplyGenerator(client, prompt, llm.DefaultOptions(cfg.Model), llm.NewDailyUsage()), nil
}

// NewAccountFromConfig 仅 OpenRouter 提供账户查询；其他提供商返回 nil
func NewAccountFromConfig(cfg *config.Config) *llm.OpenRouterAccount {
	if cfg == nil || cfg.Model.APIKey == "" || !IsOpenRouter(cfg.Model) {
		return nil
	}
	return llm.NewOpenRouterAccount(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Timeout)
}

// IsOpenRouter provider 为 openrouter 或 base_url 指向 openrouter.ai
func IsOpenRouter(m config.ModelConfig) bool {
	return m.Provider == "openrouter" || strings.Contains(strings.ToLower(m.BaseURL), "openrouter")
}
