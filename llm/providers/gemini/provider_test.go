package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/llm"
	"github.com/voxflow/voxflow/llm/providers"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGeminiProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "test-key",
			BaseURL: srv.URL,
			Model:   "gemini-2.0-flash",
			Timeout: 5 * time.Second,
		},
	}, zap.NewNop())
}

func TestGeminiProvider_Name(t *testing.T) {
	provider := NewGeminiProvider(providers.GeminiConfig{}, zap.NewNop())
	assert.Equal(t, "gemini-flash", provider.Name())
}

func TestConvertToGeminiContents(t *testing.T) {
	system, contents := convertToGeminiContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "classify the query"},
		{Role: llm.RoleUser, Content: "Quelle heure est-il?"},
		{Role: llm.RoleAssistant, Content: "Il est midi."},
	})

	require.NotNil(t, system)
	assert.Equal(t, "classify the query", system.Parts[0].Text)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role, "assistant role maps to model")
}

func TestGeminiProvider_Completion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, 64, req.GenerationConfig.MaxOutputTokens)

		json.NewEncoder(w).Encode(geminiResponse{
			ResponseID: "resp-1",
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "simple"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 15, CandidatesTokenCount: 1, TotalTokenCount: 16},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "Quelle heure est-il?"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "simple", resp.Text())
	assert.Equal(t, "gemini-flash", resp.Provider)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestGeminiProvider_CompletionQuotaExceeded(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"quota exceeded for project","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrQuotaExceeded, llmErr.Code)
}

func TestGeminiProvider_HealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
