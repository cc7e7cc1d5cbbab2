package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"resume-extractor/internal/config"
	"resume-extractor/internal/provider"
	"resume-extractor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// stubAdapter 按文本返回预设的记录，并记录调用
type stubAdapter struct {
	name    string
	mu      sync.Mutex
	calls   []string
	models  []string
	fail    map[string]error
	delayOf map[string]time.Duration
}

func newStub(name string) *stubAdapter {
	return &stubAdapter{name: name, fail: map[string]error{}, delayOf: map[string]time.Duration{}}
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	if d := s.delayOf[text]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.models = append(s.models, modelName)
	s.mu.Unlock()

	if err := s.fail[text]; err != nil {
		return nil, err
	}
	return &types.CandidateRecord{
		Name:      s.name + ":" + text,
		Companies: []types.Entry{{Name: "Co-" + text, Duration: "1y"}},
	}, nil
}

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func registryWith(stubs ...*stubAdapter) *provider.Registry {
	reg := provider.NewRegistry()
	for _, s := range stubs {
		reg.Register(s)
	}
	return reg
}

func allStubs() map[string]*stubAdapter {
	stubs := map[string]*stubAdapter{}
	for _, name := range provider.Supported {
		stubs[name] = newStub(name)
	}
	return stubs
}

func TestDispatch_RoutesToSelectedProviderOnly(t *testing.T) {
	for _, target := range provider.Supported {
		t.Run(target, func(t *testing.T) {
			stubs := allStubs()
			reg := provider.NewRegistry()
			for _, s := range stubs {
				reg.Register(s)
			}

			result, err := New(reg).Dispatch(context.Background(), []string{"A"}, target+":some-model")
			require.NoError(t, err)
			require.Len(t, result.Records(), 1)
			assert.Equal(t, target+":A", result.Records()[0].Name)
			assert.Equal(t, target, result.Provider)
			assert.Equal(t, "some-model", result.Model)
			assert.NotEmpty(t, result.BatchID)

			for name, s := range stubs {
				if name == target {
					assert.Equal(t, 1, s.callCount())
					assert.Equal(t, []string{"some-model"}, s.models)
				} else {
					assert.Zero(t, s.callCount(), "%s 不应被调用", name)
				}
			}
		})
	}
}

func TestDispatch_ModelNamePassedThrough(t *testing.T) {
	stub := newStub(provider.DeepSeek)
	_, err := New(registryWith(stub)).Dispatch(context.Background(), []string{"A"}, "deepseek:ft:deepseek-chat:v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ft:deepseek-chat:v2"}, stub.models)
}

func TestDispatch_UnsupportedProvider(t *testing.T) {
	stubs := allStubs()
	reg := provider.NewRegistry()
	for _, s := range stubs {
		reg.Register(s)
	}

	for _, key := range []string{"mistral:large", "OpenAI:gpt-4o"} {
		var result *BatchResult
		var err error
		require.NotPanics(t, func() {
			result, err = New(reg).Dispatch(context.Background(), []string{"A", "B"}, key)
		})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
		require.NotNil(t, result)
		assert.Empty(t, result.Records())
		assert.Empty(t, result.Outcomes)
	}
	for _, s := range stubs {
		assert.Zero(t, s.callCount())
	}
}

func TestDispatch_InvalidModelKey(t *testing.T) {
	result, err := New(provider.NewRegistry()).Dispatch(context.Background(), []string{"A"}, "gpt-4o")
	assert.ErrorIs(t, err, types.ErrInvalidModelKey)
	assert.Empty(t, result.Records())
}

func TestDispatch_MissingCredential(t *testing.T) {
	reg := provider.BuildRegistry(context.Background(), config.ProvidersConfig{}, provider.BuildOptions{})

	result, err := New(reg).Dispatch(context.Background(), []string{"A"}, "claude:claude-3-haiku-20240307")
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
	assert.Empty(t, result.Records())
}

func TestDispatch_PreservesOrder(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			stub := newStub(provider.OpenAI)
			// 让第一个文档最慢，验证结果仍按输入顺序
			stub.delayOf["A"] = 30 * time.Millisecond

			result, err := New(registryWith(stub), WithConcurrency(concurrency)).
				Dispatch(context.Background(), []string{"A", "B", "C"}, "openai:gpt-4o-mini-2024-07-18")
			require.NoError(t, err)

			records := result.Records()
			require.Len(t, records, 3)
			assert.Equal(t, "openai:A", records[0].Name)
			assert.Equal(t, "openai:B", records[1].Name)
			assert.Equal(t, "openai:C", records[2].Name)
			for i, o := range result.Outcomes {
				assert.Equal(t, i, o.Index)
			}
		})
	}
}

func TestDispatch_SkipPolicyContinues(t *testing.T) {
	stub := newStub(provider.OpenAI)
	boom := errors.New("vendor down")
	stub.fail["A"] = boom

	result, err := New(registryWith(stub)).Dispatch(context.Background(), []string{"A", "B"}, "openai:gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.callCount(), "skip 策略下第二个文档仍应处理")

	require.Len(t, result.Errors(), 1)
	assert.Equal(t, 0, result.Errors()[0].Index)
	assert.ErrorIs(t, result.Errors()[0].Err, boom)

	records := result.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "openai:B", records[0].Name)
}

func TestDispatch_AbortPolicyStops(t *testing.T) {
	stub := newStub(provider.OpenAI)
	stub.fail["B"] = errors.New("vendor down")

	result, err := New(registryWith(stub), WithFailurePolicy(config.FailurePolicyAbort)).
		Dispatch(context.Background(), []string{"A", "B", "C"}, "openai:gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, stub.calls, "失败后不应再启动新的文档")
	records := result.Records()
	require.Len(t, records, 1, "失败前的结果应保留")
	assert.Equal(t, "openai:A", records[0].Name)
	assert.ErrorIs(t, result.Outcomes[2].Err, ErrBatchAborted)
}

func TestDispatch_AbortWithConcurrencyKeepsRunningDocuments(t *testing.T) {
	var calls int32
	adapter := &funcAdapter{name: provider.OpenAI, fn: func(ctx context.Context, text string) (*types.CandidateRecord, error) {
		atomic.AddInt32(&calls, 1)
		switch text {
		case "A":
			time.Sleep(5 * time.Millisecond)
			return nil, errors.New("vendor down")
		case "B":
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &types.CandidateRecord{Name: text}, nil
	}}
	reg := provider.NewRegistry()
	reg.Register(adapter)

	d := New(reg, WithConcurrency(2), WithFailurePolicy(config.FailurePolicyAbort))
	result, err := d.Dispatch(context.Background(), []string{"A", "B", "C"}, "openai:gpt-4o")
	require.NoError(t, err)

	assert.EqualError(t, result.Outcomes[0].Err, "vendor down")
	require.NoError(t, result.Outcomes[1].Err, "已启动的文档不应被中途取消")
	require.NotNil(t, result.Outcomes[1].Record)
	assert.Equal(t, "B", result.Outcomes[1].Record.Name)
	assert.ErrorIs(t, result.Outcomes[2].Err, ErrBatchAborted)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDispatch_UsesCallerBatchID(t *testing.T) {
	stub := newStub(provider.OpenAI)
	ctx := ContextWithBatchID(context.Background(), "batch-from-caller")

	result, err := New(registryWith(stub)).Dispatch(ctx, []string{"A"}, "openai:gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "batch-from-caller", result.BatchID)

	result, err = New(registryWith(stub)).Dispatch(context.Background(), []string{"A"}, "openai:gpt-4o")
	require.NoError(t, err)
	assert.NotEmpty(t, result.BatchID)
	assert.NotEqual(t, "batch-from-caller", result.BatchID)
}

func TestCheck(t *testing.T) {
	stub := newStub(provider.OpenAI)
	d := New(registryWith(stub))

	assert.NoError(t, d.Check("openai:gpt-4o"))
	assert.ErrorIs(t, d.Check("gpt-4o"), types.ErrInvalidModelKey)
	assert.ErrorIs(t, d.Check("mistral:large"), ErrUnsupportedProvider)
	assert.Error(t, d.Check("claude:claude-3-haiku-20240307"))
	assert.Zero(t, stub.callCount())
}

func TestDispatch_SpanMasksCandidateName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(prev)

	adapter := &funcAdapter{name: provider.OpenAI, fn: func(ctx context.Context, text string) (*types.CandidateRecord, error) {
		return &types.CandidateRecord{Name: "张三"}, nil
	}}
	reg := provider.NewRegistry()
	reg.Register(adapter)

	_, err := New(reg).Dispatch(context.Background(), []string{"A"}, "openai:gpt-4o")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Attributes, attribute.String("candidate.name", "张*"))
}

func TestDispatch_ContextCancelled(t *testing.T) {
	stub := newStub(provider.OpenAI)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(registryWith(stub)).Dispatch(ctx, []string{"A", "B"}, "openai:gpt-4o")
	require.NoError(t, err)
	assert.Zero(t, stub.callCount())
	for _, o := range result.Outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestDispatch_ConcurrencyBounded(t *testing.T) {
	var inFlight, peak int32
	adapter := &funcAdapter{name: provider.Google, fn: func(ctx context.Context, text string) (*types.CandidateRecord, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &types.CandidateRecord{Name: text}, nil
	}}
	reg := provider.NewRegistry()
	reg.Register(adapter)

	texts := []string{"1", "2", "3", "4", "5", "6"}
	result, err := New(reg, WithConcurrency(2)).Dispatch(context.Background(), texts, "google:gemini-1.5-flash-exp-0827")
	require.NoError(t, err)
	assert.Len(t, result.Records(), 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

type funcAdapter struct {
	name string
	fn   func(ctx context.Context, text string) (*types.CandidateRecord, error)
}

func (f *funcAdapter) Name() string { return f.name }

func (f *funcAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	return f.fn(ctx, text)
}
