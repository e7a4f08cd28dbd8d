package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxflow/voxflow/internal/tlsutil"
	"github.com/voxflow/voxflow/types"
)

// GoogleTTSProvider 使用 Google Cloud Text-to-Speech REST API 合成语音.
type GoogleTTSProvider struct {
	cfg    GoogleTTSConfig
	client *http.Client
}

// NewGoogleTTSProvider 创建 Google TTS 供应商.
func NewGoogleTTSProvider(cfg GoogleTTSConfig) *GoogleTTSProvider {
	def := DefaultGoogleTTSConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SpeakingRate == 0 {
		cfg.SpeakingRate = def.SpeakingRate
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}

	return &GoogleTTSProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *GoogleTTSProvider) Name() string { return "google" }

type googleSynthesisInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type googleVoiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"` // MP3
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
	Pitch         float64 `json:"pitch,omitempty"`
}

type googleTTSRequest struct {
	Input       googleSynthesisInput `json:"input"`
	Voice       googleVoiceSelection `json:"voice"`
	AudioConfig googleAudioConfig    `json:"audioConfig"`
}

type googleTTSResponse struct {
	AudioContent string `json:"audioContent"` // base64
}

// Synthesize 将纯文本转换为 MP3 音频.
func (p *GoogleTTSProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	return p.synthesize(ctx, googleSynthesisInput{Text: req.Text}, req, len(req.Text))
}

// SynthesizeSSML 将 SSML 标记文本转换为 MP3 音频.
func (p *GoogleTTSProvider) SynthesizeSSML(ctx context.Context, ssml string, req *TTSRequest) (*TTSResponse, error) {
	if req == nil {
		req = &TTSRequest{}
	}
	return p.synthesize(ctx, googleSynthesisInput{SSML: ssml}, req, len(ssml))
}

func (p *GoogleTTSProvider) synthesize(ctx context.Context, input googleSynthesisInput, req *TTSRequest, charCount int) (*TTSResponse, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}
	language := req.Language
	if language == "" {
		language = p.cfg.LanguageCode
	}
	rate := req.SpeakingRate
	if rate == 0 {
		rate = p.cfg.SpeakingRate
	}
	pitch := req.Pitch
	if pitch == 0 {
		pitch = p.cfg.Pitch
	}

	body := googleTTSRequest{
		Input: input,
		Voice: googleVoiceSelection{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: googleAudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  rate,
			Pitch:         pitch,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text:synthesize", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-Goog-Api-Key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrSynthesis, err.Error()).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, types.NewError(types.ErrSynthesis,
			fmt.Sprintf("google tts error: status=%d body=%s", resp.StatusCode, string(errBody))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var gResp googleTTSResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return nil, types.NewError(types.ErrSynthesis, "failed to decode google tts response").WithCause(err)
	}

	audio, err := base64.StdEncoding.DecodeString(gResp.AudioContent)
	if err != nil {
		return nil, types.NewError(types.ErrSynthesis, "invalid audio content encoding").WithCause(err)
	}

	return &TTSResponse{
		Provider:  p.Name(),
		AudioData: audio,
		Format:    "mp3",
		CharCount: charCount,
		CreatedAt: time.Now(),
	}, nil
}
