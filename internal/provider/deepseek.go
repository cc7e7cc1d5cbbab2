package provider

import (
	"context"
	"fmt"
	"strings"

	"resume-extractor/internal/parser"
	candidateschema "resume-extractor/internal/schema"
	"resume-extractor/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

// DeepSeek 不支持 json_schema，只能用 json_object 模式加示例提示
var deepSeekJSONObject = map[string]string{"type": "json_object"}

// DeepSeekAdapter 通过 OpenAI 兼容接口调用 DeepSeek
type DeepSeekAdapter struct {
	chat      model.BaseChatModel
	maxTokens int
}

// NewDeepSeekAdapter apiKey 为空时返回 ErrMissingCredential
func NewDeepSeekAdapter(apiKey, baseURL string, maxTokens int, opts ...CompatOption) (*DeepSeekAdapter, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultDeepSeekBaseURL
	}
	chat, err := NewOpenAICompatibleChatModel(apiKey, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return NewDeepSeekAdapterWithModel(chat, maxTokens), nil
}

// NewDeepSeekAdapterWithModel 使用已有的 eino 聊天模型
func NewDeepSeekAdapterWithModel(chat model.BaseChatModel, maxTokens int) *DeepSeekAdapter {
	return &DeepSeekAdapter{chat: chat, maxTokens: maxTokens}
}

// Name 厂商名
func (a *DeepSeekAdapter) Name() string { return DeepSeek }

func deepSeekSystemPrompt() string {
	return systemInstruction + "\n\nRespond with a single JSON object only, using exactly this structure:\n" +
		candidateschema.ExampleJSON
}

// Extract 实现 Adapter，回复中的代码块或多余文字会被剥离
func (a *DeepSeekAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	messages := []*schema.Message{
		schema.SystemMessage(deepSeekSystemPrompt()),
		schema.UserMessage(userPrompt(text)),
	}
	opts := []model.Option{
		model.WithModel(modelName),
		WithResponseFormat(deepSeekJSONObject),
	}
	if a.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(a.maxTokens))
	}

	resp, err := a.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, &VendorError{Provider: DeepSeek, Model: modelName, Err: err}
	}

	jsonStr := parser.ExtractJSON(resp.Content)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: 回复中没有JSON对象", candidateschema.ErrInvalidOutput)
	}
	return candidateschema.DecodeCandidate([]byte(jsonStr))
}
