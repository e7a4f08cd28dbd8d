package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxflow/voxflow/internal/tlsutil"
	"github.com/voxflow/voxflow/types"
)

// ElevenLabsProvider 使用 ElevenLabs API 合成语音.
// 作为 Google TTS 无凭证时的冷备用引擎.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabsProvider 创建 ElevenLabs TTS 供应商.
func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_multilingual_v2"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &ElevenLabsProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenLabsTTSRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize 将文本转换为 MP3 音频.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = p.cfg.VoiceID
	}
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel - default voice
	}

	body := elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: p.cfg.Model,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128",
		strings.TrimRight(p.cfg.BaseURL, "/"), voiceID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrSynthesis, err.Error()).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, types.NewError(types.ErrSynthesis,
			fmt.Sprintf("elevenlabs error: status=%d body=%s", resp.StatusCode, string(errBody))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrSynthesis, "failed to read audio").WithCause(err)
	}

	return &TTSResponse{
		Provider:  p.Name(),
		AudioData: audio,
		Format:    "mp3",
		CharCount: len(req.Text),
		CreatedAt: time.Now(),
	}, nil
}

// SynthesizeSSML 显式拒绝：ElevenLabs 不支持 SSML 输入，
// 不做静默降级为纯文本.
func (p *ElevenLabsProvider) SynthesizeSSML(ctx context.Context, ssml string, req *TTSRequest) (*TTSResponse, error) {
	return nil, types.NewError(types.ErrSSMLUnsupported, "elevenlabs engine does not support SSML input")
}
