package provider

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"resume-extractor/internal/logger"
	"resume-extractor/internal/types"
)

// ResultCache 提取结果缓存，由 Redis 实现
type ResultCache interface {
	GetCachedResult(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedResult(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedAdapter 相同厂商、模型和文本的结果直接从缓存返回
type CachedAdapter struct {
	inner Adapter
	cache ResultCache
	ttl   time.Duration
}

// NewCachedAdapter 创建缓存装饰器
func NewCachedAdapter(inner Adapter, cache ResultCache, ttl time.Duration) *CachedAdapter {
	return &CachedAdapter{inner: inner, cache: cache, ttl: ttl}
}

// CacheKey md5(provider:model:text)
func CacheKey(providerName, modelName, text string) string {
	sum := md5.Sum([]byte(providerName + ":" + modelName + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Name 厂商名
func (c *CachedAdapter) Name() string { return c.inner.Name() }

// Extract 实现 Adapter，缓存读写失败只记录日志
func (c *CachedAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	key := CacheKey(c.inner.Name(), modelName, text)

	data, found, err := c.cache.GetCachedResult(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("provider", c.inner.Name()).Msg("读取提取结果缓存失败")
	} else if found {
		var rec types.CandidateRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			logger.Debug().Str("provider", c.inner.Name()).Str("model", modelName).Msg("命中提取结果缓存")
			return &rec, nil
		}
	}

	rec, err := c.inner.Extract(ctx, text, modelName)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		if err := c.cache.SetCachedResult(ctx, key, data, c.ttl); err != nil {
			logger.Warn().Err(err).Str("provider", c.inner.Name()).Msg("写入提取结果缓存失败")
		}
	}
	return rec, nil
}
