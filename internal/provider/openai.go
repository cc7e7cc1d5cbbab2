package provider

import (
	"context"
	"strings"

	candidateschema "resume-extractor/internal/schema"
	"resume-extractor/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter 使用 structured outputs (json_schema, strict) 约束输出
type OpenAIAdapter struct {
	chat      model.BaseChatModel
	maxTokens int
}

// NewOpenAIAdapter apiKey 为空时返回 ErrMissingCredential
func NewOpenAIAdapter(apiKey, baseURL string, maxTokens int, opts ...CompatOption) (*OpenAIAdapter, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	chat, err := NewOpenAICompatibleChatModel(apiKey, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return NewOpenAIAdapterWithModel(chat, maxTokens), nil
}

// NewOpenAIAdapterWithModel 使用已有的 eino 聊天模型
func NewOpenAIAdapterWithModel(chat model.BaseChatModel, maxTokens int) *OpenAIAdapter {
	return &OpenAIAdapter{chat: chat, maxTokens: maxTokens}
}

// Name 厂商名
func (a *OpenAIAdapter) Name() string { return OpenAI }

// Extract 实现 Adapter
func (a *OpenAIAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemInstruction),
		schema.UserMessage(userPrompt(text)),
	}
	opts := []model.Option{
		model.WithModel(modelName),
		WithResponseFormat(candidateschema.OpenAIResponseFormat()),
	}
	if a.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(a.maxTokens))
	}

	resp, err := a.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, &VendorError{Provider: OpenAI, Model: modelName, Err: err}
	}
	return candidateschema.DecodeCandidate([]byte(resp.Content))
}
