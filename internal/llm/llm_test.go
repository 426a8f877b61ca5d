package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docanalyzer/internal/apperr"
	"docanalyzer/internal/extractor"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI serves /v1/chat/completions with the given handler and records
// the last decoded request.
func fakeOpenAI(t *testing.T, reply func(w http.ResponseWriter, req openai.ChatCompletionRequest)) (*httptest.Server, *openai.ChatCompletionRequest) {
	t.Helper()
	var last openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reply(w, last)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4.1-2025-04-14",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
	})
}

func newTestAnalyzer(t *testing.T, url string) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer("sk-test", "gpt-4.1", WithBaseURL(url+"/v1/"))
	require.NoError(t, err)
	return a
}

// ========== NewAnalyzer ==========

func TestNewAnalyzer_EmptyKey(t *testing.T) {
	_, err := NewAnalyzer("  ", "gpt-4.1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAnalysis))
	assert.Contains(t, err.Error(), "OpenAI API key is not configured")
}

func TestNewAnalyzer_DefaultModel(t *testing.T) {
	a, err := NewAnalyzer("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", a.model)
}

// ========== CheckLength ==========

func TestCheckLength_GPT4Boundary(t *testing.T) {
	a := &Analyzer{model: "gpt-4.1"}
	// 47996 + 4 chars = 48000 / 4 = 12000 tokens: exactly the ceiling fails.
	content := strings.Repeat("a", 47996)
	assert.False(t, a.CheckLength(content, "abcd"))
	assert.True(t, a.CheckLength(content, "abc"))
}

func TestCheckLength_CountsCharactersNotBytes(t *testing.T) {
	a := &Analyzer{model: "gpt-4.1"}
	// 40000 two-byte runes plus a 9-char prompt estimate to 10002 tokens.
	assert.True(t, a.CheckLength(strings.Repeat("ж", 40000), "Summarize"))

	// The same character boundary as the ASCII case: 47996 + 4 runes fails.
	content := strings.Repeat("日", 47996)
	assert.False(t, a.CheckLength(content, "четы"))
	assert.True(t, a.CheckLength(content, "три"))
}

func TestCheckLength_OtherModelBoundary(t *testing.T) {
	a := &Analyzer{model: "gpt-3.5-turbo"}
	assert.False(t, a.CheckLength(strings.Repeat("a", 12000), ""))
	assert.True(t, a.CheckLength(strings.Repeat("a", 11999), ""))
}

func TestCheckLength_PrefixMatch(t *testing.T) {
	assert.Equal(t, gpt4Ceiling, ceilingFor("gpt-4o-mini"))
	assert.Equal(t, defaultCeiling, ceilingFor("o3-mini"))
	assert.Equal(t, defaultCeiling, ceilingFor("GPT-4"))
}

// ========== prompts ==========

func TestBuildSystemPrompt_NoMetadata(t *testing.T) {
	got := buildSystemPrompt(nil)
	assert.Equal(t, systemPrompt, got)
	assert.NotContains(t, got, "Document Information")
}

func TestBuildSystemPrompt_WithMetadata(t *testing.T) {
	got := buildSystemPrompt(&extractor.Metadata{FileType: ".pdf", Title: "Annual Report", PageCount: 12, TablesCount: 3})
	assert.Contains(t, got, "\n\nDocument Information:\n- File type: .pdf\n- Title: Annual Report\n- Pages: 12\n- Tables: 3\n")
	assert.NotContains(t, got, "- Images:")
}

func TestBuildSystemPrompt_UnknownFields(t *testing.T) {
	got := buildSystemPrompt(&extractor.Metadata{})
	assert.Contains(t, got, "- File type: Unknown\n- Title: Unknown\n")
	assert.NotContains(t, got, "- Pages:")
}

func TestBuildUserMessage(t *testing.T) {
	got := buildUserMessage("Body text", "Summarize")
	assert.True(t, strings.HasPrefix(got, "User Request: Summarize\n\nDocument Content:\nBody text\n\n"))
	assert.True(t, strings.HasSuffix(got, "based on the content above."))
}

// ========== Analyze ==========

func TestAnalyze_Success(t *testing.T) {
	srv, last := fakeOpenAI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeCompletion(w, "  The document is a quarterly report.  ")
	})
	a := newTestAnalyzer(t, srv.URL)

	res, err := a.Analyze(context.Background(), "Q1 revenue grew.", "Summarize", &extractor.Metadata{FileType: ".pdf", Title: "Q1"})
	require.NoError(t, err)

	assert.Equal(t, "The document is a quarterly report.", res.Response)
	assert.Equal(t, 150, res.Usage.TotalTokens)
	assert.Equal(t, 120, res.Usage.PromptTokens)
	assert.Equal(t, 30, res.Usage.CompletionTokens)
	// The configured model is reported, not the provider's snapshot name.
	assert.Equal(t, "gpt-4.1", res.Usage.ModelUsed)
	assert.Equal(t, "stop", res.FinishReason)

	require.Len(t, last.Messages, 2)
	assert.Equal(t, "gpt-4.1", last.Model)
	assert.Equal(t, openai.ChatMessageRoleSystem, last.Messages[0].Role)
	assert.Contains(t, last.Messages[0].Content, "- Title: Q1")
	assert.Equal(t, openai.ChatMessageRoleUser, last.Messages[1].Role)
	assert.Contains(t, last.Messages[1].Content, "User Request: Summarize")
	assert.Contains(t, last.Messages[1].Content, "Q1 revenue grew.")
	assert.InDelta(t, 0.1, last.Temperature, 1e-6)
	assert.Equal(t, 4000, last.MaxTokens)
}

func TestAnalyze_EmptyContent(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeCompletion(w, "   ")
	})
	_, err := newTestAnalyzer(t, srv.URL).Analyze(context.Background(), "doc", "Summarize", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAnalysis))
	assert.Contains(t, err.Error(), "No response received from OpenAI")
}

func TestAnalyze_NoChoices(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4.1","choices":[],"usage":{"total_tokens":0}}`))
	})
	_, err := newTestAnalyzer(t, srv.URL).Analyze(context.Background(), "doc", "Summarize", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAnalysis))
}

func TestAnalyze_ProviderError(t *testing.T) {
	calls := 0
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	})
	_, err := newTestAnalyzer(t, srv.URL).Analyze(context.Background(), "doc", "Summarize", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAnalysis))
	assert.Equal(t, 1, calls, "failed calls must not be retried")
}

func TestAnalyze_NoResponseModel(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"length"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	})
	res, err := newTestAnalyzer(t, srv.URL).Analyze(context.Background(), "doc", "Summarize", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", res.Usage.ModelUsed)
	assert.Equal(t, "length", res.FinishReason)
}
