package provider

import (
	"context"
	"time"

	"resume-extractor/internal/ratelimit"
	"resume-extractor/internal/types"
)

// LimitedAdapter 为适配器加上每分钟请求数限制、可选重试与单次请求超时
type LimitedAdapter struct {
	inner   Adapter
	bucket  *ratelimit.TokenBucket
	timeout time.Duration
}

// NewLimitedAdapter qpm<=0 不限流，maxRetries<=0 不重试，timeout<=0 不设超时
func NewLimitedAdapter(inner Adapter, qpm, maxRetries int, retryWait, timeout time.Duration) *LimitedAdapter {
	return &LimitedAdapter{
		inner:   inner,
		bucket:  ratelimit.NewTokenBucket(qpm, 0).WithRetryPolicy(retryWait, maxRetries),
		timeout: timeout,
	}
}

// Name 厂商名
func (l *LimitedAdapter) Name() string { return l.inner.Name() }

// Extract 实现 Adapter
func (l *LimitedAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	return ratelimit.Do(ctx, l.bucket, func(ctx context.Context) (*types.CandidateRecord, error) {
		if l.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		return l.inner.Extract(ctx, text, modelName)
	})
}
