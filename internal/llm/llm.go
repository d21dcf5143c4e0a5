// Package llm 封装对话模型：核心循环只依赖 Generator，具体供应商（Ark）在这里接入。
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator 是同步的文本生成接口：输入一段提示词，返回模型原文。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc 让普通函数满足 Generator，测试里常用。
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ChatGenerator 把 eino 的 ChatModel 适配为 Generator，提示词作为单条用户消息发送。
type ChatGenerator struct {
	model model.BaseChatModel
}

func NewChatGenerator(m model.BaseChatModel) *ChatGenerator {
	return &ChatGenerator{model: m}
}

func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.model == nil {
		return "", errors.New("chat model not initialized")
	}
	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("chat model generate failed: %w", err)
	}
	if msg == nil {
		return "", errors.New("chat model returned nil message")
	}
	return msg.Content, nil
}

// ArkConfig 对应配置文件中的 ark 段。
type ArkConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	ModelID     string  `mapstructure:"model_id"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
}

// NewArkChatModel 初始化 Ark ChatModel。temperature 为 0 时不设置，沿用服务端默认值。
func NewArkChatModel(ctx context.Context, cfg ArkConfig) (*ark.ChatModel, error) {
	return NewArkChatModelWithTemperature(ctx, cfg, cfg.Temperature)
}

// NewArkChatModelWithTemperature 用于同一份 ark 配置下需要不同温度的场景（例如 RAG 回答）。
func NewArkChatModelWithTemperature(ctx context.Context, cfg ArkConfig, temperature float32) (*ark.ChatModel, error) {
	if cfg.APIKey == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	mc := &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.ModelID,
		BaseURL: cfg.BaseURL,
	}
	if temperature > 0 {
		t := temperature
		mc.Temperature = &t
	}

	cm, err := ark.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("init ark chat model: %w", err)
	}
	return cm, nil
}
