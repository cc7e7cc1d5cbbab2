package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnsupportedFile 既不是PDF也不是文本
	ErrUnsupportedFile = errors.New("不支持的文件类型")
	// ErrEmptyDocument 提取出的文本为空
	ErrEmptyDocument = errors.New("文档内容为空")
)

const pdfMIME = "application/pdf"

// PDFTextExtractor 从PDF字节中提取文本
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, uri string, data []byte) (string, error)
}

// Ingestor 把上传的简历文件转换为纯文本
type Ingestor struct {
	pdf PDFTextExtractor
}

// NewIngestor 创建文档摄取器
func NewIngestor(pdf PDFTextExtractor) *Ingestor {
	return &Ingestor{pdf: pdf}
}

// Extract 根据扩展名或内容嗅探判断类型：PDF走解析器，文本直接返回
func (i *Ingestor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mime := mimetype.Detect(data)

	var text string
	switch {
	case ext == ".pdf" || mime.Is(pdfMIME):
		if i.pdf == nil {
			return "", fmt.Errorf("%w: 未配置PDF解析器 (%s)", ErrUnsupportedFile, filename)
		}
		extracted, err := i.pdf.ExtractText(ctx, filename, data)
		if err != nil {
			return "", err
		}
		text = extracted
	case ext == ".txt" || ext == ".md" || utf8.Valid(data):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: 文本文件不是有效的UTF-8 (%s)", ErrUnsupportedFile, filename)
		}
		text = string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFile, filename, mime.String())
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}
	return text, nil
}
