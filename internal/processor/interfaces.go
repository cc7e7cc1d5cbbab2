package processor

import (
	"context"

	"resume-extractor/internal/dispatcher"
	"resume-extractor/internal/storage"
	"resume-extractor/internal/storage/models"
)

//
// 核心流程
//

// Dispatcher 把一批文本交给选定的模型厂商
type Dispatcher interface {
	// Check 校验选择键并确认厂商可用，不发起模型调用
	Check(modelKey string) error
	Dispatch(ctx context.Context, texts []string, modelKey string) (*dispatcher.BatchResult, error)
}

// TextExtractor 从上传的文件中取出纯文本
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

//
// 可选的结果去向，失败只记录日志
//

// HistoryStore 保存提取历史
type HistoryStore interface {
	SaveExtractions(ctx context.Context, records []*models.ExtractionRecord) error
}

// EventPublisher 发布提取完成事件
type EventPublisher interface {
	PublishExtracted(ctx context.Context, event *storage.CandidateExtractedEvent) error
}

// Archiver 归档原始文件和提取文本
type Archiver interface {
	// ArchiveOriginal 返回对象键和原始文件MD5
	ArchiveOriginal(ctx context.Context, batchID string, index int, fileName string, data []byte) (string, string, error)
	ArchiveText(ctx context.Context, batchID string, index int, text string) (string, error)
}
