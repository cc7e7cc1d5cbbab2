package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"resume-extractor/internal/config"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultOriginalsBucket  = "resume-originals"
	defaultParsedTextBucket = "resume-parsed-text"
)

// MinIO 归档上传的原始简历和提取出的文本
type MinIO struct {
	client         *minio.Client
	originalBucket string
	parsedBucket   string
}

// NewMinIO 创建客户端并确保两个存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:         client,
		originalBucket: cfg.OriginalsBucket,
		parsedBucket:   cfg.ParsedTextBucket,
	}
	if m.originalBucket == "" {
		m.originalBucket = defaultOriginalsBucket
	}
	if m.parsedBucket == "" {
		m.parsedBucket = defaultParsedTextBucket
	}

	for _, bucket := range []string{m.originalBucket, m.parsedBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).
		Str("originals_bucket", m.originalBucket).
		Str("parsed_bucket", m.parsedBucket).
		Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	logger.Info().Str("bucket", bucketName).Msg("已创建存储桶")
	return nil
}

// ArchiveOriginal 上传原始文件，返回对象键和文件内容的MD5
func (m *MinIO) ArchiveOriginal(ctx context.Context, batchID string, index int, fileName string, data []byte) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	objectName := OriginalObjectKey(batchID, index, ext)

	ctx, span := m.startSpan(ctx, "MinIO.ArchiveOriginal", m.originalBucket, objectName, len(data))
	defer span.End()

	hash := md5.New()
	reader := io.TeeReader(bytes.NewReader(data), hash)

	_, err := m.client.PutObject(ctx, m.originalBucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  ContentType(ext),
		UserMetadata: map[string]string{"filename": fileName},
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", "", fmt.Errorf("上传原始文件 %s 到存储桶 %s 失败: %w", objectName, m.originalBucket, err)
	}
	span.SetStatus(codes.Ok, "")
	return objectName, hex.EncodeToString(hash.Sum(nil)), nil
}

// ArchiveText 上传提取出的纯文本
func (m *MinIO) ArchiveText(ctx context.Context, batchID string, index int, text string) (string, error) {
	objectName := TextObjectKey(batchID, index)

	ctx, span := m.startSpan(ctx, "MinIO.ArchiveText", m.parsedBucket, objectName, len(text))
	defer span.End()

	_, err := m.client.PutObject(ctx, m.parsedBucket, objectName, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("上传解析文本 %s 到存储桶 %s 失败: %w", objectName, m.parsedBucket, err)
	}
	span.SetStatus(codes.Ok, "")
	return objectName, nil
}

func (m *MinIO) startSpan(ctx context.Context, name, bucket, objectName string, size int) (context.Context, trace.Span) {
	ctx, span := tracing.Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("object_store.system", "minio"),
		attribute.String("object_store.bucket", bucket),
		attribute.String("object_store.key", objectName),
		attribute.Int("object_store.size", size),
	)
	return ctx, span
}

// OriginalObjectKey 例如 batch/<batchID>/0003/original.pdf
func OriginalObjectKey(batchID string, index int, ext string) string {
	return fmt.Sprintf("batch/%s/%04d/original%s", batchID, index, ext)
}

// TextObjectKey 例如 batch/<batchID>/0003/parsed_text.txt
func TextObjectKey(batchID string, index int) string {
	return fmt.Sprintf("batch/%s/%04d/parsed_text.txt", batchID, index)
}

// ContentType 按扩展名推断内容类型
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
