package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrIngestFailed  = errors.New("提取简历文本失败")
	ErrExtractFailed = errors.New("模型提取简历信息失败")
	ErrArchiveFailed = errors.New("归档简历文件失败")
	ErrHistoryFailed = errors.New("保存提取历史失败")
	ErrPublishFailed = errors.New("发布提取事件失败")
)

// ExtractionError 单个文件处理失败的详细信息
type ExtractionError struct {
	File    string
	Op      string
	BaseErr error
	Detail  string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.File, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.File)
}

// Unwrap 同时暴露基础错误和底层原因，errors.Is 对两者都成立
func (e *ExtractionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

func newError(op string, base error, file string, cause error) error {
	e := &ExtractionError{File: file, Op: op, BaseErr: base, Cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// 错误构造函数
func NewIngestError(file string, cause error) error {
	return newError("ingest", ErrIngestFailed, file, cause)
}

func NewExtractError(file string, cause error) error {
	return newError("extract", ErrExtractFailed, file, cause)
}

func NewArchiveError(file string, cause error) error {
	return newError("archive", ErrArchiveFailed, file, cause)
}

func NewHistoryError(file string, cause error) error {
	return newError("history", ErrHistoryFailed, file, cause)
}

func NewPublishError(file string, cause error) error {
	return newError("publish", ErrPublishFailed, file, cause)
}
