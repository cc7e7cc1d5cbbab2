package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/dispatcher"
	"resume-extractor/internal/export"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/provider"
	"resume-extractor/internal/storage/models"
	"resume-extractor/internal/tracing"
	"resume-extractor/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"
)

// Analyzer 提取一批纯文本简历，由 processor.Processor 实现
type Analyzer interface {
	AnalyzeTexts(ctx context.Context, texts []string, modelKey string) (*dispatcher.BatchResult, error)
}

// TextExtractor 从上传的文件中取出文本，由 parser.Ingestor 实现
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// HistoryReader 查询提取历史，由 storage.MySQL 实现
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.ExtractionRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.ExtractionRecord, error)
}

var errHistoryDisabled = errors.New("未启用提取历史存储")

// ProviderLister 列出已配置的厂商，由 provider.Registry 实现
type ProviderLister interface {
	Available() []string
}

// Option 处理器的可选依赖
type Option func(*ResumeHandler)

// WithHistory 启用 /api/history
func WithHistory(history HistoryReader) Option {
	return func(h *ResumeHandler) { h.history = history }
}

// WithProviders 在 /api/models 中返回可用厂商
func WithProviders(providers ProviderLister) Option {
	return func(h *ResumeHandler) { h.providers = providers }
}

// ResumeHandler 简历提取相关的 HTTP 处理器
type ResumeHandler struct {
	analyzer       Analyzer
	ingestor       TextExtractor
	history        HistoryReader
	providers      ProviderLister
	modelKeys      []string
	maxUploadBytes int64
	now            func() time.Time
}

// NewResumeHandler 创建处理器
func NewResumeHandler(cfg *config.Config, analyzer Analyzer, ingestor TextExtractor, opts ...Option) *ResumeHandler {
	h := &ResumeHandler{
		analyzer:  analyzer,
		ingestor:  ingestor,
		modelKeys: cfg.ModelKeys(),
		now:       time.Now,
	}
	if cfg.Server.MaxUploadMB > 0 {
		h.maxUploadBytes = int64(cfg.Server.MaxUploadMB) << 20
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// respondError 写错误响应，并把状态码和原因记到请求的链路上
func respondError(ctx context.Context, c *app.RequestContext, status int, err error, body utils.H) {
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	c.JSON(status, body)
}

func methodNotAllowed(ctx context.Context, c *app.RequestContext) bool {
	if string(c.Method()) == consts.MethodPost {
		return false
	}
	c.Header("Allow", consts.MethodPost)
	err := fmt.Errorf("不支持的请求方法 %s", c.Method())
	respondError(ctx, c, consts.StatusMethodNotAllowed, err, utils.H{"error": "Method not allowed"})
	return true
}

// statusForDispatchError 选择键无效或厂商不支持属于请求错误，其余为服务端错误
func statusForDispatchError(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidModelKey), errors.Is(err, dispatcher.ErrUnsupportedProvider):
		return consts.StatusBadRequest
	default:
		return consts.StatusInternalServerError
	}
}

// HandleAnalyzeResumes POST /api/analyze-resumes
func (h *ResumeHandler) HandleAnalyzeResumes(ctx context.Context, c *app.RequestContext) {
	if methodNotAllowed(ctx, c) {
		return
	}

	var req AnalyzeRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		respondError(ctx, c, consts.StatusBadRequest, err, utils.H{"error": "请求体不是有效的JSON"})
		return
	}
	if err := req.Validate(); err != nil {
		respondError(ctx, c, consts.StatusBadRequest, err, utils.H{"error": err.Error()})
		return
	}

	result, err := h.analyzer.AnalyzeTexts(ctx, req.FileContents, req.Model)
	if err != nil {
		status := statusForDispatchError(err)
		logger.Warn().Err(err).Str("model", req.Model).Int("status", status).Msg("简历分析请求失败")
		respondError(ctx, c, status, err, utils.H{"error": err.Error()})
		return
	}

	if c.Query("detailed") == "true" {
		c.JSON(consts.StatusOK, toDetailed(result))
		return
	}

	// 整批都失败时按服务端错误返回
	failed := result.Errors()
	if len(req.FileContents) > 0 && len(failed) == len(req.FileContents) {
		err = fmt.Errorf("全部简历提取失败: %w", failed[0].Err)
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, result.Records())
}

func toDetailed(result *dispatcher.BatchResult) DetailedResponse {
	resp := DetailedResponse{
		BatchID:  result.BatchID,
		Provider: result.Provider,
		Model:    result.Model,
		Results:  make([]DetailedResult, 0, len(result.Outcomes)),
	}
	for _, o := range result.Outcomes {
		r := DetailedResult{Index: o.Index, Record: o.Record}
		if o.Err != nil {
			r.Record = nil
			r.Error = o.Err.Error()
		}
		resp.Results = append(resp.Results, r)
	}
	return resp
}

// HandleParsePDF POST /api/parse-pdf，multipart 字段名为 file
func (h *ResumeHandler) HandleParsePDF(ctx context.Context, c *app.RequestContext) {
	if methodNotAllowed(ctx, c) {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(ctx, c, consts.StatusBadRequest, err, utils.H{"error": "No file uploaded"})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		err = fmt.Errorf("文件超过 %d 字节上限", h.maxUploadBytes)
		respondError(ctx, c, consts.StatusBadRequest, err, utils.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": "Error processing PDF", "details": err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": "Error processing PDF", "details": err.Error()})
		return
	}

	text, err := h.ingestor.Extract(ctx, fileHeader.Filename, data)
	if err != nil {
		logger.Warn().Err(err).Str("file", fileHeader.Filename).Msg("解析上传文件失败")
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": "Error processing PDF", "details": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, ParsePDFResponse{Text: text})
}

// HandleExport POST /api/export?lang=zh|en，请求体为记录数组，返回 xlsx 附件
func (h *ResumeHandler) HandleExport(ctx context.Context, c *app.RequestContext) {
	var records []types.CandidateRecord
	if err := json.Unmarshal(c.Request.Body(), &records); err != nil {
		respondError(ctx, c, consts.StatusBadRequest, err, utils.H{"error": "请求体应为记录数组"})
		return
	}

	lang := export.NormalizeLang(c.Query("lang"))
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records, lang); err != nil {
		logger.Error().Err(err).Int("records", len(records)).Msg("生成xlsx失败")
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": err.Error()})
		return
	}

	filename := export.Filename(lang, h.now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Data(consts.StatusOK, export.ContentType, buf.Bytes())
}

// HandleModels GET /api/models
func (h *ResumeHandler) HandleModels(ctx context.Context, c *app.RequestContext) {
	resp := ModelsResponse{Models: h.modelKeys, AvailableProviders: []string{}}
	if resp.Models == nil {
		resp.Models = []string{}
	}
	if h.providers != nil {
		if available := h.providers.Available(); available != nil {
			resp.AvailableProviders = available
		}
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleHistory GET /api/history?limit=N 或 ?batch=<批次ID>
func (h *ResumeHandler) HandleHistory(ctx context.Context, c *app.RequestContext) {
	if h.history == nil {
		respondError(ctx, c, consts.StatusServiceUnavailable, errHistoryDisabled, utils.H{"error": errHistoryDisabled.Error()})
		return
	}

	var (
		rows []models.ExtractionRecord
		err  error
	)
	if batchID := c.Query("batch"); batchID != "" {
		rows, err = h.history.ListByBatch(ctx, batchID)
	} else {
		limit, _ := strconv.Atoi(c.Query("limit"))
		rows, err = h.history.ListRecent(ctx, limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("查询提取历史失败")
		respondError(ctx, c, consts.StatusInternalServerError, err, utils.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.ExtractionRecord{}
	}
	c.JSON(consts.StatusOK, utils.H{"records": rows})
}

// HandleHealth GET /api/health
func (h *ResumeHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

var _ ProviderLister = (*provider.Registry)(nil)
