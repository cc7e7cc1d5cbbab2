package handler

import (
	"resume-extractor/internal/types"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AnalyzeRequest POST /api/analyze-resumes 的请求体
type AnalyzeRequest struct {
	FileContents []string `json:"fileContents" validate:"required"`
	Model        string   `json:"model" validate:"required"`
}

// Validate 校验必填字段
func (r *AnalyzeRequest) Validate() error {
	return validate.Struct(r)
}

// DetailedResult ?detailed=true 时单个文档的结果
type DetailedResult struct {
	Index  int                    `json:"index"`
	Record *types.CandidateRecord `json:"record,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// DetailedResponse ?detailed=true 时的响应
type DetailedResponse struct {
	BatchID  string           `json:"batchId"`
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	Results  []DetailedResult `json:"results"`
}

// ParsePDFResponse POST /api/parse-pdf 的响应
type ParsePDFResponse struct {
	Text string `json:"text"`
}

// ModelsResponse GET /api/models 的响应
type ModelsResponse struct {
	Models             []string `json:"models"`
	AvailableProviders []string `json:"availableProviders"`
}
