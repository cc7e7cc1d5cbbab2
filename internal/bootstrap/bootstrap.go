// Package bootstrap 按配置组装存储、厂商适配器与处理器，供 HTTP 服务和命令行共用。
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"resume-extractor/internal/config"
	"resume-extractor/internal/dispatcher"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/parser"
	"resume-extractor/internal/processor"
	"resume-extractor/internal/provider"
	"resume-extractor/internal/storage"
)

// App 组装好的组件
type App struct {
	Storage   *storage.Storage
	Registry  *provider.Registry
	Ingestor  *parser.Ingestor
	Processor *processor.Processor
}

// Build 依次初始化存储、厂商注册表、文档摄取器和处理器。
// 外部存储初始化失败只记录日志，对应的功能不可用。
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	buildOpts := provider.BuildOptions{CacheTTL: cfg.Extraction.CacheTTL()}
	if store.Redis != nil {
		buildOpts.Cache = store.Redis
	}
	registry := provider.BuildRegistry(ctx, cfg.Providers, buildOpts)
	if len(registry.Available()) == 0 {
		logger.Warn().Msg("没有可用的模型厂商，提取请求将全部失败")
	}

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	ingestor := parser.NewIngestor(pdfExtractor)

	d := dispatcher.New(registry,
		dispatcher.WithConcurrency(cfg.Extraction.Concurrency),
		dispatcher.WithFailurePolicy(cfg.Extraction.FailurePolicy),
	)

	// 只传入已初始化的存储，避免 nil 指针被包装成非 nil 接口
	opts := []processor.Option{
		processor.WithIngestor(ingestor),
		processor.WithFailurePolicy(cfg.Extraction.FailurePolicy),
	}
	if store.MinIO != nil {
		opts = append(opts, processor.WithArchiver(store.MinIO))
	}
	if store.RabbitMQ != nil {
		opts = append(opts, processor.WithEventPublisher(store.RabbitMQ))
	}
	if store.MySQL != nil {
		opts = append(opts, processor.WithHistoryStore(store.MySQL))
	}

	return &App{
		Storage:   store,
		Registry:  registry,
		Ingestor:  ingestor,
		Processor: processor.New(d, opts...),
	}, nil
}

// Close 关闭外部存储连接
func (a *App) Close() error {
	return a.Storage.Close()
}
