package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DeepgramTranscriber 通过 Deepgram 实时 WebSocket API 做流式识别.
type DeepgramTranscriber struct {
	cfg    DeepgramConfig
	logger *zap.Logger
}

// NewDeepgramTranscriber 创建 Deepgram 流式 STT 提供者.
func NewDeepgramTranscriber(cfg DeepgramConfig, logger *zap.Logger) *DeepgramTranscriber {
	def := DefaultDeepgramConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.EndpointingMS == 0 {
		cfg.EndpointingMS = def.EndpointingMS
	}
	if cfg.UtteranceEndMS == 0 {
		cfg.UtteranceEndMS = def.UtteranceEndMS
	}

	return &DeepgramTranscriber{cfg: cfg, logger: logger}
}

func (t *DeepgramTranscriber) Name() string { return "deepgram" }

func (t *DeepgramTranscriber) listenURL() string {
	params := url.Values{}
	params.Set("model", t.cfg.Model)
	params.Set("language", t.cfg.Language)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(t.cfg.SampleRate))
	params.Set("interim_results", "true")
	params.Set("endpointing", strconv.Itoa(t.cfg.EndpointingMS))
	params.Set("smart_format", "true")
	params.Set("utterance_end_ms", strconv.Itoa(t.cfg.UtteranceEndMS))
	params.Set("vad_events", "true")
	params.Set("punctuate", "true")

	return fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(t.cfg.BaseURL, "/"), params.Encode())
}

// Start 建立到 Deepgram 的实时识别连接.
func (t *DeepgramTranscriber) Start(ctx context.Context) (LiveStream, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, _, err := websocket.Dial(ctx, t.listenURL(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	s := &deepgramStream{
		conn:   conn,
		events: make(chan TranscriptEvent, 16),
		done:   make(chan struct{}),
		logger: t.logger.With(zap.String("component", "deepgram")),
	}
	go s.readLoop()
	return s, nil
}

// deepgramStream 是一条已建立的 Deepgram 识别会话.
// 中间结果直接转发；is_final 分段先累积，speech_final 或 UtteranceEnd
// 时合并为该话语唯一的最终事件.
type deepgramStream struct {
	conn   *websocket.Conn
	events chan TranscriptEvent
	done   chan struct{} // 读循环退出后关闭
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	// 当前话语已定稿的分段累积
	pendingText  []string
	pendingWords []Word
	pendingConf  float64
	pendingSegs  int
}

// Deepgram 实时消息
type deepgramLiveMessage struct {
	Type        string  `json:"type"` // Results, UtteranceEnd, SpeechStarted, Metadata
	IsFinal     bool    `json:"is_final,omitempty"`
	SpeechFinal bool    `json:"speech_final,omitempty"`
	Start       float64 `json:"start,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
				PunctuatedWord string  `json:"punctuated_word,omitempty"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramControlMessage struct {
	Type string `json:"type"` // Finalize, CloseStream
}

func (s *deepgramStream) Events() <-chan TranscriptEvent { return s.events }

// SendAudio 以二进制帧推送原始音频.
func (s *deepgramStream) SendAudio(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	return s.conn.Write(ctx, websocket.MessageBinary, chunk)
}

// Flush 发送 Finalize 控制消息，强制产出尾部最终结果.
func (s *deepgramStream) Flush(ctx context.Context) error {
	payload, _ := json.Marshal(deepgramControlMessage{Type: "Finalize"})
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// Close 发送 CloseStream，等读循环排空尾部结果后关闭连接.
// 引擎收到 CloseStream 会先吐出剩余定稿分段再关连接，所以这里
// 有界等待读循环结束，而不是立即断开把尾部话语丢掉.
func (s *deepgramStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, _ := json.Marshal(deepgramControlMessage{Type: "CloseStream"})
	_ = s.conn.Write(ctx, websocket.MessageText, payload)

	select {
	case <-s.done:
	case <-ctx.Done():
	}

	return s.conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (s *deepgramStream) readLoop() {
	defer func() {
		// 连接收尾时把还没到话语边界的定稿分段补成最终事件
		s.emitFinal()
		close(s.events)
		close(s.done)
	}()

	ctx := context.Background()
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			// 不可恢复错误，不重试
			s.logger.Warn("deepgram stream terminated", zap.Error(err))
			s.events <- TranscriptEvent{Err: err, CreatedAt: time.Now()}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg deepgramLiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("deepgram message parse failed", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "Results":
			s.handleResults(msg)
		case "UtteranceEnd":
			// 停顿超时：若有已定稿分段未发出，立即定稿
			s.emitFinal()
		}
	}
}

func (s *deepgramStream) handleResults(msg deepgramLiveMessage) {
	if len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]

	if !msg.IsFinal {
		if alt.Transcript == "" {
			return
		}
		// 中间结果：当前话语累积 + 本次临时片段
		parts := append(append([]string{}, s.pendingText...), alt.Transcript)
		s.events <- TranscriptEvent{
			Text:       strings.Join(parts, " "),
			IsFinal:    false,
			Confidence: alt.Confidence,
			CreatedAt:  time.Now(),
		}
		return
	}

	// 定稿分段：累积，等待话语边界
	if alt.Transcript != "" {
		s.pendingText = append(s.pendingText, alt.Transcript)
		s.pendingConf += alt.Confidence
		s.pendingSegs++
		for _, w := range alt.Words {
			word := Word{
				Word:       w.Word,
				Start:      time.Duration(w.Start * float64(time.Second)),
				End:        time.Duration(w.End * float64(time.Second)),
				Confidence: w.Confidence,
			}
			if w.PunctuatedWord != "" {
				word.Word = w.PunctuatedWord
			}
			s.pendingWords = append(s.pendingWords, word)
		}
	}

	if msg.SpeechFinal {
		s.emitFinal()
	}
}

// emitFinal 将累积分段合并为该话语唯一的最终事件.
func (s *deepgramStream) emitFinal() {
	if s.pendingSegs == 0 {
		return
	}

	s.events <- TranscriptEvent{
		Text:       strings.Join(s.pendingText, " "),
		IsFinal:    true,
		Confidence: s.pendingConf / float64(s.pendingSegs),
		Words:      s.pendingWords,
		CreatedAt:  time.Now(),
	}

	s.pendingText = nil
	s.pendingWords = nil
	s.pendingConf = 0
	s.pendingSegs = 0
}
