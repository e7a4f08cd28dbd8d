package claude

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

func newTestProvider(t *testing.T, handler http.HandlerFunc) *ClaudeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClaudeProvider(providers.ClaudeConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "test-key",
			BaseURL: srv.URL,
			Model:   "claude-3-5-haiku-latest",
			Timeout: 5 * time.Second,
		},
	}, zap.NewNop())
}

func TestClaudeProvider_Name(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	assert.Equal(t, "claude-haiku", provider.Name())
}

func TestConvertToClaudeMessages(t *testing.T) {
	system, msgs := convertToClaudeMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "Tu es un assistant vocal."},
		{Role: llm.RoleUser, Content: "Bonjour"},
		{Role: llm.RoleAssistant, Content: "Salut!"},
		{Role: llm.RoleUser, Content: ""},
	})

	assert.Equal(t, "Tu es un assistant vocal.", system)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Bonjour", msgs[0].Content[0].Text)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestClaudeProvider_Completion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		assert.Equal(t, "system prompt", req.System)
		assert.Equal(t, 4096, req.MaxTokens)
		require.Len(t, req.Messages, 1)

		json.NewEncoder(w).Encode(claudeResponse{
			ID:         "msg_01",
			Type:       "message",
			Role:       "assistant",
			Model:      "claude-3-5-haiku-latest",
			StopReason: "end_turn",
			Content:    []claudeContent{{Type: "text", Text: "Voici la réponse."}},
			Usage:      &claudeUsage{InputTokens: 20, OutputTokens: 6},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "system prompt"},
			{Role: llm.RoleUser, Content: "Explique-moi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Voici la réponse.", resp.Text())
	assert.Equal(t, "claude-haiku", resp.Provider)
	assert.Equal(t, 20, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
	assert.Equal(t, 26, resp.Usage.TotalTokens)
}

func TestClaudeProvider_CompletionOverloaded(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrModelOverloaded, llmErr.Code)
	assert.True(t, llmErr.Retryable)
}

func TestClaudeProvider_HealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.GreaterOrEqual(t, status.Latency, time.Duration(0))
}
