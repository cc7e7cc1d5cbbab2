// Package dispatcher 按 "provider:modelName" 把一批简历文本路由到对应厂商的适配器。
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/provider"
	"resume-extractor/internal/tracing"
	"resume-extractor/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnsupportedProvider 模型选择键中的厂商不在支持列表内
	ErrUnsupportedProvider = errors.New("不支持的模型厂商")
	// ErrBatchAborted abort 策略下，前面的文档失败后未处理的文档
	ErrBatchAborted = errors.New("批次已因前序文档失败而中止")
)

// Resolver 根据厂商名取得适配器，由 provider.Registry 实现
type Resolver interface {
	Lookup(name string) (provider.Adapter, error)
}

// DocumentOutcome 单个文档的提取结果，Record 与 Err 只有一个非空
type DocumentOutcome struct {
	Index  int                    `json:"index"`
	Record *types.CandidateRecord `json:"record,omitempty"`
	Err    error                  `json:"-"`
}

// BatchResult 一次分发的结果，Outcomes 与输入顺序一致
type BatchResult struct {
	BatchID  string            `json:"batchId"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Outcomes []DocumentOutcome `json:"results"`
}

// Records 按输入顺序返回成功的记录
func (b *BatchResult) Records() []types.CandidateRecord {
	records := make([]types.CandidateRecord, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Err == nil && o.Record != nil {
			records = append(records, *o.Record)
		}
	}
	return records
}

// Errors 返回失败的文档
func (b *BatchResult) Errors() []DocumentOutcome {
	var failed []DocumentOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Option 分发器的配置选项
type Option func(*Dispatcher)

// WithConcurrency 单批次内并发调用数，小于1按1处理
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.concurrency = n
	}
}

// WithFailurePolicy skip 或 abort
func WithFailurePolicy(policy string) Option {
	return func(d *Dispatcher) {
		d.failurePolicy = policy
	}
}

// Dispatcher 提取分发器
type Dispatcher struct {
	resolver      Resolver
	concurrency   int
	failurePolicy string
}

// New 创建分发器，默认顺序处理、失败跳过
func New(resolver Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:      resolver,
		concurrency:   1,
		failurePolicy: config.FailurePolicySkip,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type batchIDKey struct{}

// ContextWithBatchID 让 Dispatch 沿用调用方的批次ID，日志与链路中的批次ID保持一致
func ContextWithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, batchID)
}

func batchIDFrom(ctx context.Context) (string, error) {
	if id, ok := ctx.Value(batchIDKey{}).(string); ok && id != "" {
		return id, nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成批次ID失败: %w", err)
	}
	return id.String(), nil
}

// Check 校验模型选择键并确认厂商已配置，不调用任何适配器
func (d *Dispatcher) Check(modelKey string) error {
	_, _, err := d.resolve(modelKey)
	return err
}

func (d *Dispatcher) resolve(modelKey string) (types.ModelSelector, provider.Adapter, error) {
	sel, err := types.ParseModelSelector(modelKey)
	if err != nil {
		return sel, nil, err
	}
	if !provider.IsSupported(sel.Provider) {
		return sel, nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, sel.Provider)
	}
	adapter, err := d.resolver.Lookup(sel.Provider)
	if err != nil {
		return sel, nil, err
	}
	return sel, adapter, nil
}

// Dispatch 把 texts 逐个交给 modelKey 指定的厂商。
// 选择键无效、厂商不支持或未配置时返回空结果和错误，不会调用任何适配器；
// 其余情况下单个文档的失败记录在对应的 DocumentOutcome 中。
func (d *Dispatcher) Dispatch(ctx context.Context, texts []string, modelKey string) (*BatchResult, error) {
	result := &BatchResult{Outcomes: []DocumentOutcome{}}

	batchID, err := batchIDFrom(ctx)
	if err != nil {
		return result, err
	}
	result.BatchID = batchID

	ctx, span := tracing.Tracer().Start(ctx, "dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.String("model.key", modelKey),
		attribute.Int("batch.size", len(texts)),
	)

	sel, adapter, err := d.resolve(modelKey)
	result.Provider = sel.Provider
	result.Model = sel.ModelName
	switch {
	case errors.Is(err, types.ErrInvalidModelKey):
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return result, err
	case errors.Is(err, ErrUnsupportedProvider):
		logger.Warn().Str("provider", sel.Provider).Str("batch_id", result.BatchID).Msg("不支持的模型厂商")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return result, err
	case err != nil:
		logger.Error().Err(err).Str("provider", sel.Provider).Msg("厂商适配器不可用")
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return result, err
	}

	result.Outcomes = make([]DocumentOutcome, len(texts))
	for i := range result.Outcomes {
		result.Outcomes[i].Index = i
	}

	start := time.Now()
	d.run(ctx, adapter, sel.ModelName, texts, result.Outcomes)

	failed := len(result.Errors())
	for _, o := range result.Outcomes {
		switch {
		case o.Err == nil && o.Record != nil:
			span.AddEvent("document.extracted", trace.WithAttributes(
				attribute.Int("document.index", o.Index),
				attribute.String("candidate.name", tracing.SafeAttributeValue("candidate.name", o.Record.Name, tracing.DefaultMaxLength)),
			))
		case o.Err != nil && !errors.Is(o.Err, ErrBatchAborted):
			tracing.RecordErrorWithInfo(span, o.Err, tracing.ErrorTypeLLM, attribute.Int("document.index", o.Index))
		}
	}
	logger.Info().
		Str("batch_id", result.BatchID).
		Str("provider", sel.Provider).
		Str("model", sel.ModelName).
		Int("documents", len(texts)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("批次提取完成")

	return result, nil
}

// run 每个文档的结果写入各自的下标，互不共享。
// abort 时第一个失败只阻止后续文档启动，已在进行中的调用照常完成。
func (d *Dispatcher) run(ctx context.Context, adapter provider.Adapter, modelName string, texts []string, outcomes []DocumentOutcome) {
	abort := d.failurePolicy == config.FailurePolicyAbort
	var stopped atomic.Bool

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, text := range texts {
		if err := launchErr(ctx, &stopped); err != nil {
			outcomes[i].Err = err
			continue
		}

		g.Go(func() error {
			if err := launchErr(ctx, &stopped); err != nil {
				outcomes[i].Err = err
				return nil
			}
			rec, err := adapter.Extract(ctx, text, modelName)
			if err == nil && rec == nil {
				err = provider.ErrEmptyResponse
			}
			if err != nil {
				outcomes[i].Err = err
				logger.Warn().Err(err).Int("index", i).Str("provider", adapter.Name()).Msg("文档提取失败")
				if abort {
					stopped.Store(true)
				}
				return nil
			}
			rec.Normalize()
			outcomes[i].Record = rec
			return nil
		})
	}
	_ = g.Wait()
}

// launchErr 文档启动前检查：请求已取消或批次已中止
func launchErr(ctx context.Context, stopped *atomic.Bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if stopped.Load() {
		return ErrBatchAborted
	}
	return nil
}
