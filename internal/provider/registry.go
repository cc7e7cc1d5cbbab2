package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/logger"
)

// Registry 按厂商名保存已配置好的适配器
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	unavailable map[string]error
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		unavailable: make(map[string]error),
	}
}

// Register 注册适配器，同名覆盖
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	delete(r.unavailable, a.Name())
}

// MarkUnavailable 记录某个厂商构造失败的原因
func (r *Registry) MarkUnavailable(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
	r.unavailable[name] = err
}

// Lookup 查找适配器。未配置的厂商返回构造时的错误，默认为 ErrMissingCredential
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	if err, ok := r.unavailable[name]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%s: %w", name, ErrMissingCredential)
}

// Available 已配置的厂商，按 Supported 的顺序
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, name := range Supported {
		if _, ok := r.adapters[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// BuildOptions 构造注册表时的可选依赖
type BuildOptions struct {
	Cache    ResultCache
	CacheTTL time.Duration
}

// BuildRegistry 按配置构造四个厂商的适配器。缺少密钥的厂商被标记为不可用，服务照常启动
func BuildRegistry(ctx context.Context, cfg config.ProvidersConfig, opts BuildOptions) *Registry {
	r := NewRegistry()
	for _, name := range Supported {
		pc, _ := cfg.Get(name)
		adapter, err := newAdapter(ctx, name, pc)
		if err != nil {
			if errors.Is(err, ErrMissingCredential) {
				logger.Warn().Str("provider", name).Msg("未配置API密钥，该厂商不可用")
				err = fmt.Errorf("%s: %w", name, ErrMissingCredential)
			} else {
				logger.Error().Err(err).Str("provider", name).Msg("初始化厂商适配器失败")
			}
			r.MarkUnavailable(name, err)
			continue
		}

		adapter = NewLimitedAdapter(adapter, pc.QPM, pc.MaxRetries, pc.RetryWait(), pc.RequestTimeout())
		if opts.Cache != nil && opts.CacheTTL > 0 {
			adapter = NewCachedAdapter(adapter, opts.Cache, opts.CacheTTL)
		}
		r.Register(adapter)
		logger.Info().Str("provider", name).Int("qpm", pc.QPM).Strs("models", pc.Models).Msg("厂商适配器已就绪")
	}
	return r
}

func newAdapter(ctx context.Context, name string, pc config.ProviderConfig) (Adapter, error) {
	switch name {
	case OpenAI:
		return NewOpenAIAdapter(pc.APIKey, pc.BaseURL, pc.MaxTokens)
	case DeepSeek:
		return NewDeepSeekAdapter(pc.APIKey, pc.BaseURL, pc.MaxTokens)
	case Claude:
		return NewClaudeAdapter(pc.APIKey, pc.BaseURL, pc.MaxTokens)
	case Google:
		return NewGoogleAdapter(ctx, pc.APIKey, pc.BaseURL, pc.MaxTokens)
	}
	return nil, fmt.Errorf("不支持的厂商: %s", name)
}
