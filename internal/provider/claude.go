package provider

import (
	"context"
	"fmt"
	"strings"

	candidateschema "resume-extractor/internal/schema"
	"resume-extractor/internal/types"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeMaxTokens = 4096

// ClaudeAdapter 强制调用唯一的提取工具，以工具参数作为结构化结果
type ClaudeAdapter struct {
	client    anthropic.Client
	maxTokens int64
}

// NewClaudeAdapter apiKey 为空时返回 ErrMissingCredential
func NewClaudeAdapter(apiKey, baseURL string, maxTokens int, opts ...option.RequestOption) (*ClaudeAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &ClaudeAdapter{
		client:    anthropic.NewClient(reqOpts...),
		maxTokens: int64(maxTokens),
	}, nil
}

// Name 厂商名
func (a *ClaudeAdapter) Name() string { return Claude }

func claudeTool() anthropic.ToolUnionParam {
	props, required := candidateschema.ClaudeInputSchema()
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        candidateschema.ClaudeToolName,
			Description: anthropic.String("Extract structured key information about the candidate from the resume."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		},
	}
}

// Extract 实现 Adapter
func (a *ClaudeAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(text))),
		},
		Tools: []anthropic.ToolUnionParam{claudeTool()},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: candidateschema.ClaudeToolName},
		},
	})
	if err != nil {
		return nil, &VendorError{Provider: Claude, Model: modelName, Err: err}
	}

	for _, block := range msg.Content {
		if block.Type == "tool_use" && block.Name == candidateschema.ClaudeToolName {
			return candidateschema.DecodeCandidate(block.Input)
		}
	}
	return nil, fmt.Errorf("%w: 回复中没有 %s 工具调用 (stop_reason=%s)",
		candidateschema.ErrInvalidOutput, candidateschema.ClaudeToolName, msg.StopReason)
}
