package provider

import (
	"context"
	"fmt"
	"strings"

	candidateschema "resume-extractor/internal/schema"
	"resume-extractor/internal/types"

	"google.golang.org/genai"
)

// GoogleAdapter 通过 ResponseSchema 约束 Gemini 输出 JSON
type GoogleAdapter struct {
	client    *genai.Client
	maxTokens int32
}

// NewGoogleAdapter apiKey 为空时返回 ErrMissingCredential
func NewGoogleAdapter(ctx context.Context, apiKey, baseURL string, maxTokens int) (*GoogleAdapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 genai 客户端失败: %w", err)
	}
	return &GoogleAdapter{client: client, maxTokens: int32(maxTokens)}, nil
}

// Name 厂商名
func (a *GoogleAdapter) Name() string { return Google }

// Extract 实现 Adapter
func (a *GoogleAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    candidateschema.GeminiSchema(),
	}
	if a.maxTokens > 0 {
		cfg.MaxOutputTokens = a.maxTokens
	}

	resp, err := a.client.Models.GenerateContent(ctx, modelName, genai.Text(userPrompt(text)), cfg)
	if err != nil {
		return nil, &VendorError{Provider: Google, Model: modelName, Err: err}
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return nil, &VendorError{Provider: Google, Model: modelName, Err: ErrEmptyResponse}
	}
	return candidateschema.DecodeCandidate([]byte(out))
}
