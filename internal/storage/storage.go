// Package storage 提供可选的外部存储：Redis 结果缓存、MySQL 提取历史、MinIO 文件归档和 RabbitMQ 事件。
// 每个组件都由配置中的 enabled 开关控制，初始化失败只记录警告，不影响提取主流程。
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resume-extractor/internal/config"
	"resume-extractor/internal/logger"
)

// Storage 聚合所有已启用的存储组件，未启用或初始化失败的字段为 nil
type Storage struct {
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	MySQL    *MySQL
	Redis    *Redis

	// 初始化失败的组件及原因
	InitErrors map[string]error
}

// NewStorage 按配置初始化存储组件
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{InitErrors: make(map[string]error)}
	var err error

	if cfg.MinIO.Enabled {
		s.MinIO, err = NewMinIO(ctx, &cfg.MinIO)
		s.recordInit("minio", err)
	}

	if cfg.RabbitMQ.Enabled {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		s.recordInit("rabbitmq", err)
	}

	if cfg.MySQL.Enabled {
		s.MySQL, err = NewMySQL(&cfg.MySQL)
		s.recordInit("mysql", err)
	}

	if cfg.Redis.Enabled {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		s.recordInit("redis", err)
	}

	if len(s.InitErrors) > 0 {
		logger.Warn().Str("failed", s.FailedComponents()).Msg("部分存储组件初始化失败，将在无该组件的情况下运行")
	}
	return s, nil
}

func (s *Storage) recordInit(name string, err error) {
	if err != nil {
		logger.Warn().Err(err).Str("component", name).Msg("初始化存储组件失败")
		s.InitErrors[name] = err
		return
	}
	logger.Info().Str("component", name).Msg("存储组件初始化成功")
}

// FailedComponents 初始化失败的组件名，逗号分隔
func (s *Storage) FailedComponents() string {
	names := make([]string, 0, len(s.InitErrors))
	for _, name := range []string{"minio", "rabbitmq", "mysql", "redis"} {
		if _, ok := s.InitErrors[name]; ok {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

// Close 关闭所有连接
func (s *Storage) Close() error {
	var errs []error
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭RabbitMQ连接失败: %w", err))
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭MySQL连接失败: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭Redis连接失败: %w", err))
		}
	}
	return errors.Join(errs...)
}
