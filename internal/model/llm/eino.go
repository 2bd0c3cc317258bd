package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	pkgerrors "listing-watcher/pkg/errors"
)

// EinoClient 通过 eino ChatModel 生成文本
type EinoClient struct {
	model     string
	chatModel model.BaseChatModel
}

// NewEinoClient 创建基于 eino-ext openai ChatModel 的客户端
func NewEinoClient(ctx context.Context, modelName, apiKey, baseURL string, timeout time.Duration) (*EinoClient, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return NewEinoClientFromModel(modelName, cm), nil
}

// NewEinoClientFromModel 包装已有 ChatModel
func NewEinoClientFromModel(modelName string, cm model.BaseChatModel) *EinoClient {
	return &EinoClient{model: modelName, chatModel: cm}
}

// GenerateWithContext 实现 Client；eino 返回的错误一律视为可重试
func (c *EinoClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	var opts []model.Option
	if options.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(options.Temperature)))
	}
	if options.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(options.MaxTokens))
	}
	msg, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", pkgerrors.Transient(fmt.Errorf("eino generate: %w", err))
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "(empty)", nil
	}
	return strings.TrimSpace(msg.Content), nil
}

// Model 返回模型名称
func (c *EinoClient) Model() string { return c.model }

// Provider 返回提供商名称
func (c *EinoClient) Provider() string { return "eino" }
