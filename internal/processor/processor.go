// Package processor 是提取流程的调用方：逐个读取文件、交给分发器、收集结果并写入可选的外部存储。
package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/dispatcher"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/storage"
	"resume-extractor/internal/storage/models"
	"resume-extractor/internal/tracing"
	"resume-extractor/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNoIngestor 未配置文本提取器时调用 ProcessFiles
var ErrNoIngestor = errors.New("未配置文档解析器")

// FileInput 待处理的上传文件
type FileInput struct {
	Name string
	Data []byte
}

// FileOutcome 单个文件的处理结果，Record 与 Err 只有一个非空
type FileOutcome struct {
	Index    int                    `json:"index"`
	FileName string                 `json:"fileName"`
	Record   *types.CandidateRecord `json:"record,omitempty"`
	Err      error                  `json:"-"`
}

// FileBatchResult 一批文件的结果，Outcomes 与输入顺序一致
type FileBatchResult struct {
	BatchID  string        `json:"batchId"`
	Model    string        `json:"model"`
	Outcomes []FileOutcome `json:"results"`
}

// Records 按输入顺序返回成功的记录
func (b *FileBatchResult) Records() []types.CandidateRecord {
	records := make([]types.CandidateRecord, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Err == nil && o.Record != nil {
			records = append(records, *o.Record)
		}
	}
	return records
}

// Errors 返回失败的文件
func (b *FileBatchResult) Errors() []FileOutcome {
	var failed []FileOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// ProgressFunc 开始处理第 index 个文件前调用，index 从0开始
type ProgressFunc func(index, total int, fileName string)

// Option 处理器选项
type Option func(*Processor)

// WithIngestor 设置文件文本提取器
func WithIngestor(ingestor TextExtractor) Option {
	return func(p *Processor) { p.ingestor = ingestor }
}

// WithHistoryStore 成功的记录写入历史库
func WithHistoryStore(store HistoryStore) Option {
	return func(p *Processor) { p.history = store }
}

// WithEventPublisher 成功的记录发布事件
func WithEventPublisher(pub EventPublisher) Option {
	return func(p *Processor) { p.events = pub }
}

// WithArchiver 归档原始文件和提取文本
func WithArchiver(a Archiver) Option {
	return func(p *Processor) { p.archive = a }
}

// WithFailurePolicy 文件级失败策略，skip 或 abort
func WithFailurePolicy(policy string) Option {
	return func(p *Processor) { p.failurePolicy = policy }
}

// Processor 简历提取的调用方循环
type Processor struct {
	dispatcher    Dispatcher
	ingestor      TextExtractor
	history       HistoryStore
	events        EventPublisher
	archive       Archiver
	failurePolicy string
}

// New 创建处理器，默认失败跳过
func New(d Dispatcher, opts ...Option) *Processor {
	p := &Processor{
		dispatcher:    d,
		failurePolicy: config.FailurePolicySkip,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasHistory 是否配置了历史库
func (p *Processor) HasHistory() bool {
	return p.history != nil
}

// AnalyzeTexts 提取一批已是纯文本的简历，成功的记录写入外部存储
func (p *Processor) AnalyzeTexts(ctx context.Context, texts []string, modelKey string) (*dispatcher.BatchResult, error) {
	result, err := p.dispatcher.Dispatch(ctx, texts, modelKey)
	if err != nil {
		return result, err
	}

	var rows []*models.ExtractionRecord
	for _, o := range result.Outcomes {
		if o.Err != nil || o.Record == nil {
			continue
		}
		s := sinkInput{
			batchID:  result.BatchID,
			index:    o.Index,
			provider: result.Provider,
			model:    result.Model,
			text:     texts[o.Index],
			record:   o.Record,
		}
		if row := p.sink(ctx, s); row != nil {
			rows = append(rows, row)
		}
	}
	p.saveHistory(ctx, rows)
	return result, nil
}

// ProcessFiles 逐个处理文件：解析文本、调用模型、收集结果。
// skip 策略下失败的文件记录错误后继续；abort 策略下第一个失败后停止，已得到的结果保留。
// 模型选择键无效或厂商不可用时不读取任何文件，直接返回错误。
func (p *Processor) ProcessFiles(ctx context.Context, files []FileInput, modelKey string, progress ProgressFunc) (*FileBatchResult, error) {
	batchID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成批次ID失败: %w", err)
	}
	result := &FileBatchResult{
		BatchID:  batchID.String(),
		Model:    modelKey,
		Outcomes: make([]FileOutcome, len(files)),
	}
	for i, f := range files {
		result.Outcomes[i] = FileOutcome{Index: i, FileName: f.Name}
	}
	if p.ingestor == nil {
		return result, ErrNoIngestor
	}

	ctx, span := tracing.Tracer().Start(ctx, "processor.ProcessFiles")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.String("model.key", modelKey),
		attribute.Int("batch.size", len(files)),
	)

	// 选择键和厂商在读取任何文件之前校验
	if err := p.dispatcher.Check(modelKey); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return result, err
	}
	ctx = dispatcher.ContextWithBatchID(ctx, result.BatchID)

	abort := p.failurePolicy == config.FailurePolicyAbort
	var rows []*models.ExtractionRecord
	start := time.Now()

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			markRemaining(result.Outcomes[i:], err)
			break
		}
		if progress != nil {
			progress(i, len(files), f.Name)
		}

		rec, text, provider, model, err := p.processOne(ctx, f, modelKey)
		if err != nil {
			if errors.Is(err, ErrIngestFailed) {
				tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeIngest, attribute.String("file", f.Name))
			}
			result.Outcomes[i].Err = err
			logger.Warn().Err(err).Int("index", i).Str("file", f.Name).Msg("文件处理失败")
			if abort {
				markRemaining(result.Outcomes[i+1:], dispatcher.ErrBatchAborted)
				break
			}
			continue
		}

		result.Outcomes[i].Record = rec
		s := sinkInput{
			batchID:  result.BatchID,
			index:    i,
			fileName: f.Name,
			data:     f.Data,
			provider: provider,
			model:    model,
			text:     text,
			record:   rec,
		}
		if row := p.sink(ctx, s); row != nil {
			rows = append(rows, row)
		}
	}

	p.saveHistory(ctx, rows)
	logger.Info().
		Str("batch_id", result.BatchID).
		Str("model", modelKey).
		Int("files", len(files)).
		Int("failed", len(result.Errors())).
		Dur("duration", time.Since(start)).
		Msg("文件批次处理完成")
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, f FileInput, modelKey string) (*types.CandidateRecord, string, string, string, error) {
	text, err := p.ingestor.Extract(ctx, f.Name, f.Data)
	if err != nil {
		return nil, "", "", "", NewIngestError(f.Name, err)
	}

	res, err := p.dispatcher.Dispatch(ctx, []string{text}, modelKey)
	if err != nil {
		return nil, "", "", "", NewExtractError(f.Name, err)
	}
	if len(res.Outcomes) != 1 {
		return nil, "", "", "", NewExtractError(f.Name, fmt.Errorf("期望1个结果，实际%d个", len(res.Outcomes)))
	}
	o := res.Outcomes[0]
	if o.Err != nil {
		return nil, "", "", "", NewExtractError(f.Name, o.Err)
	}
	return o.Record, text, res.Provider, res.Model, nil
}

func markRemaining(outcomes []FileOutcome, err error) {
	for i := range outcomes {
		outcomes[i].Err = err
	}
}

type sinkInput struct {
	batchID  string
	index    int
	fileName string
	data     []byte
	provider string
	model    string
	text     string
	record   *types.CandidateRecord
}

// sink 归档并发布事件，返回待写入历史库的记录
func (p *Processor) sink(ctx context.Context, s sinkInput) *models.ExtractionRecord {
	textMD5 := TextMD5(s.text)
	event := &storage.CandidateExtractedEvent{
		EventType:   storage.EventTypeCandidateExtracted,
		BatchID:     s.batchID,
		Index:       s.index,
		FileName:    s.fileName,
		Provider:    s.provider,
		Model:       s.model,
		TextMD5:     textMD5,
		Candidate:   *s.record,
		ExtractedAt: time.Now(),
	}

	if p.archive != nil {
		if len(s.data) > 0 {
			key, _, err := p.archive.ArchiveOriginal(ctx, s.batchID, s.index, s.fileName, s.data)
			if err != nil {
				logger.Warn().Err(NewArchiveError(s.fileName, err)).Msg("归档原始文件失败")
			}
			event.OriginalKey = key
		}
		key, err := p.archive.ArchiveText(ctx, s.batchID, s.index, s.text)
		if err != nil {
			logger.Warn().Err(NewArchiveError(s.fileName, err)).Msg("归档提取文本失败")
		}
		event.TextKey = key
	}

	if p.events != nil {
		if err := p.events.PublishExtracted(ctx, event); err != nil {
			logger.Warn().Err(NewPublishError(s.fileName, err)).Msg("发布提取事件失败")
		}
	}

	if p.history == nil {
		return nil
	}
	recordID, err := uuid.NewV7()
	if err != nil {
		logger.Warn().Err(err).Msg("生成记录ID失败")
		return nil
	}
	row, err := models.NewExtractionRecord(recordID.String(), s.batchID, s.fileName, s.provider, s.model, textMD5, *s.record)
	if err != nil {
		logger.Warn().Err(NewHistoryError(s.fileName, err)).Msg("构造历史记录失败")
		return nil
	}
	return row
}

func (p *Processor) saveHistory(ctx context.Context, rows []*models.ExtractionRecord) {
	if p.history == nil || len(rows) == 0 {
		return
	}
	if err := p.history.SaveExtractions(ctx, rows); err != nil {
		logger.Warn().Err(NewHistoryError("", err)).Int("records", len(rows)).Msg("保存提取历史失败")
	}
}

// TextMD5 简历文本的MD5，用于关联历史记录与事件
func TextMD5(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
