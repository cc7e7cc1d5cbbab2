package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resume-extractor/internal/logger"
	"resume-extractor/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// OpenAI 兼容的 Chat Completions 接口结构

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	ResponseFormat interface{}         `json:"response_format,omitempty"`
	MaxTokens      *int                `json:"max_tokens,omitempty"`
	Temperature    *float32            `json:"temperature,omitempty"`
}

type openAIResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
	Refusal *string `json:"refusal,omitempty"`
}

type openAIChatChoice struct {
	Index        int                   `json:"index"`
	Message      openAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type openAICompletionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// compatOptions 本模型特有的调用选项
type compatOptions struct {
	ResponseFormat interface{}
}

// WithResponseFormat 设置 response_format（json_schema 或 json_object）
func WithResponseFormat(format interface{}) model.Option {
	return model.WrapImplSpecificOptFn(func(o *compatOptions) {
		o.ResponseFormat = format
	})
}

// OpenAICompatibleChatModel 对接 OpenAI 兼容 Chat Completions 接口的 eino 聊天模型，
// OpenAI 与 DeepSeek 共用
type OpenAICompatibleChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
}

// CompatOption 聊天模型的构造选项
type CompatOption func(*OpenAICompatibleChatModel)

// WithHTTPClient 自定义 HTTP 客户端
func WithHTTPClient(c *http.Client) CompatOption {
	return func(m *OpenAICompatibleChatModel) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// WithDefaultModel 未通过 model.WithModel 指定时使用的模型
func WithDefaultModel(name string) CompatOption {
	return func(m *OpenAICompatibleChatModel) {
		m.modelName = name
	}
}

// NewOpenAICompatibleChatModel baseURL 形如 https://api.openai.com/v1
func NewOpenAICompatibleChatModel(apiKey, baseURL string, opts ...CompatOption) (*OpenAICompatibleChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base_url 不能为空")
	}

	m := &OpenAICompatibleChatModel{
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(baseURL, "/") + "/chat/completions",
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Generate 实现 model.BaseChatModel
func (m *OpenAICompatibleChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{Model: &m.modelName}, opts...)
	specific := model.GetImplSpecificOptions(&compatOptions{}, opts...)

	modelName := ""
	if common.Model != nil {
		modelName = *common.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("未指定模型名称")
	}

	reqPayload := openAIChatCompletionRequest{
		Model:          modelName,
		Messages:       toOpenAIMessages(messages),
		ResponseFormat: specific.ResponseFormat,
		MaxTokens:      common.MaxTokens,
		Temperature:    common.Temperature,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug().Str("url", m.apiURL).Str("model", modelName).Int("messages", len(messages)).Msg("发送聊天请求")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, tracing.TruncateString(string(bodyBytes), 500))
	}

	var apiResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API 返回错误: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: 响应中没有 choices", ErrEmptyResponse)
	}

	apiMessage := apiResp.Choices[0].Message
	if apiMessage.Refusal != nil && *apiMessage.Refusal != "" {
		return nil, fmt.Errorf("模型拒绝回答: %s", *apiMessage.Refusal)
	}

	result := &schema.Message{
		Role: schema.Assistant,
	}
	if apiMessage.Role != "" {
		result.Role = schema.RoleType(apiMessage.Role)
	}
	if apiMessage.Content != nil {
		result.Content = *apiMessage.Content
	}
	return result, nil
}

// Stream 暂不支持流式输出
func (m *OpenAICompatibleChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatibleChatModel 的 Stream 方法未实现")
}

func toOpenAIMessages(messages []*schema.Message) []openAIChatMessage {
	out := make([]openAIChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		out = append(out, openAIChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

var _ model.BaseChatModel = (*OpenAICompatibleChatModel)(nil)
