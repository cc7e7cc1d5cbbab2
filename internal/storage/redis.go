package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound key 不存在
var ErrNotFound = redis.Nil

const (
	defaultKeyPrefix = "resume-extractor:"
	resultKeySegment = "result:"
)

// Redis 提取结果缓存
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewRedisAdapter 创建 Redis 客户端并检查连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	}

	client := redis.NewClient(opt)

	// 记录所有Redis命令
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return NewRedisWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisWithClient 使用已有客户端，主要用于测试
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{Client: client, prefix: prefix}
}

// ResultKey 提取结果缓存的完整键名
func (r *Redis) ResultKey(key string) string {
	return r.prefix + resultKeySegment + key
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetCachedResult 读取缓存的提取结果，未命中时 found 为 false 且无错误
func (r *Redis) GetCachedResult(ctx context.Context, key string) ([]byte, bool, error) {
	if r.Client == nil {
		return nil, false, fmt.Errorf("redis客户端未初始化")
	}
	fullKey := r.ResultKey(key)

	ctx, span := tracing.Tracer().Start(ctx, "Redis.GetCachedResult", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "GET"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(fullKey)),
	)

	val, err := r.Client.Get(ctx, fullKey).Bytes()
	if err != nil {
		// key 不存在不算错误
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			span.SetStatus(codes.Ok, "key not found")
			return nil, false, nil
		}
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, false, err
	}

	span.SetAttributes(
		attribute.Bool("db.redis.key_exists", true),
		attribute.Int("db.redis.value_length", len(val)),
	)
	span.SetStatus(codes.Ok, "")
	return val, true, nil
}

// SetCachedResult 写入提取结果，ttl<=0 表示不过期
func (r *Redis) SetCachedResult(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	fullKey := r.ResultKey(key)

	ctx, span := tracing.Tracer().Start(ctx, "Redis.SetCachedResult", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "SET"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(fullKey)),
		attribute.Int("db.redis.value_length", len(value)),
	)
	if ttl > 0 {
		span.SetAttributes(attribute.Int64("db.redis.expiration_ms", ttl.Milliseconds()))
	}

	if err := r.Client.Set(ctx, fullKey, value, ttl).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
