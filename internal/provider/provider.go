// Package provider 为每个模型厂商提供统一的候选人信息提取适配器。
package provider

import (
	"context"
	"errors"
	"fmt"

	"resume-extractor/internal/config"
	"resume-extractor/internal/types"
)

var (
	// ErrMissingCredential 厂商未配置密钥，构造时返回，不会发起任何调用
	ErrMissingCredential = errors.New("未配置厂商API密钥")
	// ErrEmptyResponse 厂商返回了空结果
	ErrEmptyResponse = errors.New("模型返回为空")
)

// 支持的厂商名称，与模型选择键的 provider 部分精确匹配
const (
	OpenAI   = config.ProviderOpenAI
	Google   = config.ProviderGoogle
	Claude   = config.ProviderClaude
	DeepSeek = config.ProviderDeepSeek
)

// Supported 封闭的厂商集合
var Supported = []string{OpenAI, Google, Claude, DeepSeek}

// IsSupported 判断厂商名是否受支持（区分大小写）
func IsSupported(name string) bool {
	for _, s := range Supported {
		if s == name {
			return true
		}
	}
	return false
}

// Adapter 把一段简历文本交给某个厂商的模型，返回规范化后的候选人信息
type Adapter interface {
	Name() string
	Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error)
}

// VendorError 厂商调用失败
type VendorError struct {
	Provider string
	Model    string
	Err      error
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s(%s) 调用失败: %v", e.Provider, e.Model, e.Err)
}

func (e *VendorError) Unwrap() error {
	return e.Err
}

// 所有厂商共用的提取指令
const systemInstruction = "You are an expert resume parser. Extract structured candidate information " +
	"from the Chinese resume text provided by the user: the candidate's name, the self-assessment, " +
	"the companies the candidate worked for and the schools the candidate graduated from, each with its duration. " +
	"For companies only list the employer name and duration, do not include project experience details. " +
	"Keep entries in the order they appear in the resume. Use an empty string or an empty list when a field is absent."

func userPrompt(text string) string {
	return "<resume>\n" + text + "\n</resume>"
}
