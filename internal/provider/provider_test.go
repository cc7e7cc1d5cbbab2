package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"resume-extractor/internal/config"
	candidateschema "resume-extractor/internal/schema"
	"resume-extractor/internal/types"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecordJSON = `{"name":"张三","selfAssessment":"五年后端经验","companies":[{"name":"TechCorp","duration":"2018-2021"},{"name":"Acme","duration":"2021-至今"}],"graduateSchools":[{"name":"浙江大学","duration":"2014-2018"}]}`

// chatCompletionServer 模拟 OpenAI 兼容接口，记录收到的请求体
func chatCompletionServer(t *testing.T, content string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			require.NoError(t, json.Unmarshal(body, captured))
		}

		resp := map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "whatever",
			"choices": []interface{}{
				map[string]interface{}{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]interface{}{"role": "assistant", "content": content},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestConstructorsRequireCredential(t *testing.T) {
	_, err := NewOpenAIAdapter("", "", 0)
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewDeepSeekAdapter("  ", "", 0)
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewClaudeAdapter("", "", 0)
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewGoogleAdapter(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestOpenAIAdapter_Extract(t *testing.T) {
	var captured map[string]interface{}
	srv := chatCompletionServer(t, sampleRecordJSON, &captured)
	defer srv.Close()

	adapter, err := NewOpenAIAdapter("test-key", srv.URL+"/v1", 0)
	require.NoError(t, err)

	rec, err := adapter.Extract(context.Background(), "张三的简历", "gpt-4o-mini-2024-07-18")
	require.NoError(t, err)
	assert.Equal(t, "张三", rec.Name)
	assert.Equal(t, []types.Entry{
		{Name: "TechCorp", Duration: "2018-2021"},
		{Name: "Acme", Duration: "2021-至今"},
	}, rec.Companies)

	assert.Equal(t, "gpt-4o-mini-2024-07-18", captured["model"], "模型名应原样透传")
	rf := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", rf["type"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].(map[string]interface{})["content"], "张三的简历")
}

func TestOpenAIAdapter_InvalidOutput(t *testing.T) {
	srv := chatCompletionServer(t, `{"companies":"none"}`, nil)
	defer srv.Close()

	adapter, err := NewOpenAIAdapter("test-key", srv.URL+"/v1", 0)
	require.NoError(t, err)

	_, err = adapter.Extract(context.Background(), "text", "gpt-4o")
	assert.ErrorIs(t, err, candidateschema.ErrInvalidOutput)
}

func TestOpenAIAdapter_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid model"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter("test-key", srv.URL+"/v1", 0)
	require.NoError(t, err)

	_, err = adapter.Extract(context.Background(), "text", "no-such-model")
	var ve *VendorError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, OpenAI, ve.Provider)
	assert.Equal(t, "no-such-model", ve.Model)
}

func TestDeepSeekAdapter_Extract(t *testing.T) {
	var captured map[string]interface{}
	srv := chatCompletionServer(t, "好的，结果如下：\n```json\n"+sampleRecordJSON+"\n```", &captured)
	defer srv.Close()

	adapter, err := NewDeepSeekAdapter("test-key", srv.URL+"/v1", 0)
	require.NoError(t, err)

	rec, err := adapter.Extract(context.Background(), "简历", "deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "张三", rec.Name)
	assert.Len(t, rec.GraduateSchools, 1)

	rf := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_object", rf["type"])
	system := captured["messages"].([]interface{})[0].(map[string]interface{})["content"].(string)
	assert.Contains(t, system, `"graduateSchools"`, "系统提示应包含示例JSON")
}

func TestDeepSeekAdapter_NoJSON(t *testing.T) {
	srv := chatCompletionServer(t, "抱歉，我无法处理。", nil)
	defer srv.Close()

	adapter, err := NewDeepSeekAdapter("test-key", srv.URL+"/v1", 0)
	require.NoError(t, err)

	_, err = adapter.Extract(context.Background(), "简历", "deepseek-chat")
	assert.ErrorIs(t, err, candidateschema.ErrInvalidOutput)
}

func TestClaudeAdapter_Extract(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-haiku-20240307",
			"stop_reason": "tool_use",
			"content": [{"type": "tool_use", "id": "toolu_01", "name": "extract_candidate_resume_info", "input": `+sampleRecordJSON+`}],
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`)
	}))
	defer srv.Close()

	adapter, err := NewClaudeAdapter("test-key", srv.URL, 0, option.WithMaxRetries(0))
	require.NoError(t, err)

	rec, err := adapter.Extract(context.Background(), "简历文本", "claude-3-haiku-20240307")
	require.NoError(t, err)
	assert.Equal(t, "张三", rec.Name)
	assert.Equal(t, "Acme", rec.Companies[1].Name)

	assert.Equal(t, "claude-3-haiku-20240307", captured["model"])
	assert.EqualValues(t, 4096, captured["max_tokens"])
	toolChoice := captured["tool_choice"].(map[string]interface{})
	assert.Equal(t, "tool", toolChoice["type"])
	assert.Equal(t, "extract_candidate_resume_info", toolChoice["name"])
	content := captured["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
	assert.Contains(t, content[0].(map[string]interface{})["text"], "<resume>")
}

func TestClaudeAdapter_NoToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_02","type":"message","role":"assistant","model":"m","stop_reason":"end_turn",
			"content":[{"type":"text","text":"无法提取"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	adapter, err := NewClaudeAdapter("test-key", srv.URL, 0, option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = adapter.Extract(context.Background(), "简历", "m")
	assert.ErrorIs(t, err, candidateschema.ErrInvalidOutput)
}

func TestGoogleAdapter_Extract(t *testing.T) {
	var captured map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		resp := map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": sampleRecordJSON}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter, err := NewGoogleAdapter(context.Background(), "test-key", srv.URL, 0)
	require.NoError(t, err)

	rec, err := adapter.Extract(context.Background(), "简历", "gemini-1.5-flash-exp-0827")
	require.NoError(t, err)
	assert.Equal(t, "张三", rec.Name)

	assert.Contains(t, path, "gemini-1.5-flash-exp-0827")
	genCfg := captured["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
	assert.NotNil(t, genCfg["responseSchema"])
}

type countingAdapter struct {
	mu    sync.Mutex
	name  string
	calls int
	errs  []error
	rec   *types.CandidateRecord
}

func (c *countingAdapter) Name() string { return c.name }

func (c *countingAdapter) Extract(ctx context.Context, text, modelName string) (*types.CandidateRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return c.rec, nil
}

func TestLimitedAdapter_Retry(t *testing.T) {
	inner := &countingAdapter{
		name: OpenAI,
		errs: []error{errors.New("429 Too Many Requests")},
		rec:  &types.CandidateRecord{Name: "张三"},
	}
	limited := NewLimitedAdapter(inner, 0, 2, time.Millisecond, 0)

	rec, err := limited.Extract(context.Background(), "t", "m")
	require.NoError(t, err)
	assert.Equal(t, "张三", rec.Name)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, OpenAI, limited.Name())
}

func TestLimitedAdapter_NoRetryByDefault(t *testing.T) {
	inner := &countingAdapter{name: OpenAI, errs: []error{errors.New("429 Too Many Requests")}}
	_, err := NewLimitedAdapter(inner, 0, 0, 0, 0).Extract(context.Background(), "t", "m")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

type memoryCache struct {
	data map[string][]byte
}

func (m *memoryCache) GetCachedResult(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) SetCachedResult(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func TestCachedAdapter(t *testing.T) {
	inner := &countingAdapter{name: Claude, rec: &types.CandidateRecord{Name: "李四", Companies: []types.Entry{}, GraduateSchools: []types.Entry{}}}
	cache := &memoryCache{data: map[string][]byte{}}
	cached := NewCachedAdapter(inner, cache, time.Hour)

	for i := 0; i < 3; i++ {
		rec, err := cached.Extract(context.Background(), "同一份简历", "claude-3-haiku-20240307")
		require.NoError(t, err)
		assert.Equal(t, "李四", rec.Name)
	}
	assert.Equal(t, 1, inner.calls, "相同输入只应调用一次厂商")

	_, err := cached.Extract(context.Background(), "同一份简历", "claude-3-5-sonnet-20240620")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "不同模型不应命中缓存")

	assert.NotEqual(t, CacheKey("openai", "m", "t"), CacheKey("claude", "m", "t"))
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI:   config.ProviderConfig{APIKey: "sk-test"},
		DeepSeek: config.ProviderConfig{APIKey: "ds-test"},
	}
	reg := BuildRegistry(context.Background(), cfg, BuildOptions{})

	assert.Equal(t, []string{OpenAI, DeepSeek}, reg.Available())

	a, err := reg.Lookup(OpenAI)
	require.NoError(t, err)
	assert.Equal(t, OpenAI, a.Name())

	_, err = reg.Lookup(Claude)
	assert.ErrorIs(t, err, ErrMissingCredential)
	_, err = reg.Lookup(Google)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestIsSupported(t *testing.T) {
	for _, name := range Supported {
		assert.True(t, IsSupported(name))
	}
	assert.False(t, IsSupported("OpenAI"), "厂商名区分大小写")
	assert.False(t, IsSupported("mistral"))

	// 每个厂商都有对应的配置段
	for _, name := range Supported {
		_, ok := config.ProvidersConfig{}.Get(name)
		assert.True(t, ok, name)
	}
}
