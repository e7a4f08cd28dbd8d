// 软件包语音提供流式 STT 与 TTS 供应商接口.
package speech

import (
	"context"
	"time"
)

// ============================================================
// 文字对语言( TTS)
// ============================================================

// TTSRequest 代表一次语音合成请求.
type TTSRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	Language     string  `json:"language,omitempty"`
	SpeakingRate float64 `json:"speaking_rate,omitempty"` // 0.25-4.0
	Pitch        float64 `json:"pitch,omitempty"`
}

// TTSResponse 代表合成结果，音频已缓冲为字节.
type TTSResponse struct {
	Provider  string        `json:"provider"`
	AudioData []byte        `json:"audio_data,omitempty"`
	Format    string        `json:"format"` // mp3
	Duration  time.Duration `json:"duration,omitempty"`
	CharCount int           `json:"char_count,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Synthesizer 定义 TTS 提供者接口.
// SynthesizeSSML 仅部分引擎支持，不支持的引擎返回显式错误而非静默降级.
type Synthesizer interface {
	// Synthesize 将纯文本转换为语音.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// SynthesizeSSML 将 SSML 标记文本转换为语音.
	SynthesizeSSML(ctx context.Context, ssml string, req *TTSRequest) (*TTSResponse, error)

	// Name 返回引擎名称.
	Name() string
}

// ============================================================
// 语音对文本( STT)
// ============================================================

// Word 代表带时间戳的转写词.
type Word struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence,omitempty"`
}

// TranscriptEvent 是流式识别产出的一条事件.
// IsFinal=false 为中间结果，同一话语内可多次出现；
// IsFinal=true 每个话语恰好出现一次.
// Err 非空表示流已因不可恢复错误终止，之后通道关闭.
type TranscriptEvent struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	Confidence float64   `json:"confidence,omitempty"`
	Words      []Word    `json:"words,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Err        error     `json:"-"`
}

// LiveStream 是一条已建立的流式识别会话.
type LiveStream interface {
	// SendAudio 推送一段原始音频.
	SendAudio(ctx context.Context, chunk []byte) error

	// Events 返回识别事件通道，流终止后关闭.
	Events() <-chan TranscriptEvent

	// Flush 要求引擎立即产出尚未定稿的最终结果.
	// 会话正常结束时调用，确保尾音不丢失.
	Flush(ctx context.Context) error

	// Close 结束识别会话并释放连接.
	Close() error
}

// LiveTranscriber 定义流式 STT 提供者接口.
type LiveTranscriber interface {
	// Start 建立一条新的识别会话.
	Start(ctx context.Context) (LiveStream, error)

	// Name 返回引擎名称.
	Name() string
}
