package storage

import (
	"time"

	"resume-extractor/internal/types"
)

// EventTypeCandidateExtracted 单份简历提取完成
const EventTypeCandidateExtracted = "candidate.extracted"

// CandidateExtractedEvent 提取完成后发布到消息队列的事件
type CandidateExtractedEvent struct {
	EventType   string                `json:"event_type"`
	BatchID     string                `json:"batch_id"`
	Index       int                   `json:"index"`
	FileName    string                `json:"file_name,omitempty"`
	Provider    string                `json:"provider"`
	Model       string                `json:"model"`
	TextMD5     string                `json:"text_md5,omitempty"`
	OriginalKey string                `json:"original_object_key,omitempty"` // MinIO 中的原始文件
	TextKey     string                `json:"text_object_key,omitempty"`     // MinIO 中的提取文本
	Candidate   types.CandidateRecord `json:"candidate"`
	ExtractedAt time.Time             `json:"extracted_at"`
}
