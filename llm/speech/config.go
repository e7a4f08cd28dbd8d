package speech

import "time"

// DeepgramConfig 配置 Deepgram 流式 STT 供应商.
type DeepgramConfig struct {
	APIKey         string        `json:"api_key" yaml:"api_key"`
	BaseURL        string        `json:"base_url" yaml:"base_url"` // wss://api.deepgram.com
	Model          string        `json:"model,omitempty" yaml:"model,omitempty"`
	Language       string        `json:"language,omitempty" yaml:"language,omitempty"`
	SampleRate     int           `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	EndpointingMS  int           `json:"endpointing_ms,omitempty" yaml:"endpointing_ms,omitempty"`
	UtteranceEndMS int           `json:"utterance_end_ms,omitempty" yaml:"utterance_end_ms,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GoogleTTSConfig 配置 Google Cloud TTS 供应商.
type GoogleTTSConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Voice        string        `json:"voice,omitempty" yaml:"voice,omitempty"`
	LanguageCode string        `json:"language_code,omitempty" yaml:"language_code,omitempty"`
	SpeakingRate float64       `json:"speaking_rate,omitempty" yaml:"speaking_rate,omitempty"`
	Pitch        float64       `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ElevenLabsConfig 配置 ElevenLabs TTS 供应商.
type ElevenLabsConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // eleven_multilingual_v2
	VoiceID string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultDeepgramConfig 返回默认 Deepgram 配置.
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:        "wss://api.deepgram.com",
		Model:          "nova-2",
		Language:       "fr",
		SampleRate:     16000,
		EndpointingMS:  300,
		UtteranceEndMS: 1000,
		Timeout:        10 * time.Second,
	}
}

// DefaultGoogleTTSConfig 返回默认 Google TTS 配置.
func DefaultGoogleTTSConfig() GoogleTTSConfig {
	return GoogleTTSConfig{
		BaseURL:      "https://texttospeech.googleapis.com",
		Voice:        "fr-FR-Neural2-A",
		LanguageCode: "fr-FR",
		SpeakingRate: 1.0,
		Pitch:        0.0,
		Timeout:      20 * time.Second,
	}
}

// DefaultElevenLabsConfig 返回默认 ElevenLabs 配置.
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL: "https://api.elevenlabs.io",
		Model:   "eleven_multilingual_v2",
		Timeout: 20 * time.Second,
	}
}
