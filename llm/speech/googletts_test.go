package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

func TestGoogleTTSProvider_Synthesize(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text:synthesize", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		var req googleTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bonjour, comment puis-je vous aider?", req.Input.Text)
		assert.Empty(t, req.Input.SSML)
		assert.Equal(t, "fr-FR", req.Voice.LanguageCode)
		assert.Equal(t, "fr-FR-Neural2-A", req.Voice.Name)
		assert.Equal(t, "MP3", req.AudioConfig.AudioEncoding)

		json.NewEncoder(w).Encode(googleTTSResponse{
			AudioContent: base64.StdEncoding.EncodeToString(audio),
		})
	}))
	defer srv.Close()

	p := NewGoogleTTSProvider(GoogleTTSConfig{APIKey: "test-key", BaseURL: srv.URL})

	resp, err := p.Synthesize(context.Background(), &TTSRequest{
		Text: "Bonjour, comment puis-je vous aider?",
	})
	require.NoError(t, err)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, audio, resp.AudioData)
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, len("Bonjour, comment puis-je vous aider?"), resp.CharCount)
}

func TestGoogleTTSProvider_SynthesizeSSML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req googleTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, req.Input.Text)
		assert.Equal(t, "<speak>Bonjour</speak>", req.Input.SSML)

		json.NewEncoder(w).Encode(googleTTSResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte("audio")),
		})
	}))
	defer srv.Close()

	p := NewGoogleTTSProvider(GoogleTTSConfig{APIKey: "k", BaseURL: srv.URL})

	resp, err := p.SynthesizeSSML(context.Background(), "<speak>Bonjour</speak>", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), resp.AudioData)
}

func TestGoogleTTSProvider_SynthesizeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"API key invalid"}}`))
	}))
	defer srv.Close()

	p := NewGoogleTTSProvider(GoogleTTSConfig{APIKey: "bad", BaseURL: srv.URL})

	_, err := p.Synthesize(context.Background(), &TTSRequest{Text: "hello"})
	require.Error(t, err)

	var appErr *types.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrSynthesis, appErr.Code)
	assert.False(t, appErr.Retryable)
}

func TestSelectSynthesizer(t *testing.T) {
	logger := zap.NewNop()

	google := SelectSynthesizer(GoogleTTSConfig{APIKey: "gk"}, ElevenLabsConfig{APIKey: "ek"}, logger)
	assert.Equal(t, "google", google.Name())

	fallback := SelectSynthesizer(GoogleTTSConfig{}, ElevenLabsConfig{APIKey: "ek"}, logger)
	assert.Equal(t, "elevenlabs", fallback.Name())
}
