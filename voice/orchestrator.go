package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxflow/voxflow/internal/metrics"
	"github.com/voxflow/voxflow/llm/router"
	"github.com/voxflow/voxflow/llm/semcache"
	"github.com/voxflow/voxflow/llm/speech"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🎯 会话编排器
// =============================================================================
// 每个最终转写触发一个完整回合:
// 语义缓存查询 → (未命中) 路由补全 → TTS 合成 → 二进制音频下发
// → 追加回合 → 持久化上下文 → 回填语义缓存（回合完成之后）.

// Transport 会话的下行通道. WebSocket 处理器实现它，测试用内存实现.
type Transport interface {
	// SendJSON 以文本帧发送一条 JSON 消息.
	SendJSON(ctx context.Context, v any) error
	// SendAudio 以二进制帧发送原始音频.
	SendAudio(ctx context.Context, data []byte) error
}

// Inbound 客户端上行的一帧: 音频或控制消息，二者取一.
type Inbound struct {
	Audio   []byte
	Control *ClientMessage
}

// Orchestrator 驱动语音会话的回合流水线.
type Orchestrator struct {
	router   *router.Router
	semCache *semcache.Cache
	synth    speech.Synthesizer
	stt      speech.LiveTranscriber
	store    *ContextStore
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewOrchestrator 组装编排器.
func NewOrchestrator(
	rt *router.Router,
	sc *semcache.Cache,
	synth speech.Synthesizer,
	stt speech.LiveTranscriber,
	store *ContextStore,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		router:   rt,
		semCache: sc,
		synth:    synth,
		stt:      stt,
		store:    store,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Run 驱动一个会话直到上行通道关闭或发生不可恢复错误.
// 回合级错误（模型调用、合成失败、转写流中断）通过 error 消息下发，
// 会话保持 ACTIVE；只有传输层失败和转写流无法重建才终止会话.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, tr Transport, incoming <-chan Inbound) error {
	logger := o.logger.With(
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.Identity.UserID))

	first, err := o.stt.Start(ctx)
	if err != nil {
		logger.Error("transcription stream start failed", zap.Error(err))
		return types.NewError(types.ErrTranscription, "failed to start transcription").WithCause(err)
	}

	// 转写流可在会话中途换新（流错误后重建），两个循环经 current 取当前流
	var (
		streamMu sync.Mutex
		stream   speech.LiveStream = first
	)
	current := func() speech.LiveStream {
		streamMu.Lock()
		defer streamMu.Unlock()
		return stream
	}
	replace := func(s speech.LiveStream) {
		streamMu.Lock()
		stream = s
		streamMu.Unlock()
	}
	defer func() { _ = current().Close() }()

	if err := sess.Transition(StateActive); err != nil {
		return err
	}
	o.metrics.SessionStarted(string(sess.Identity.Role))
	logger.Info("session active")

	// 连接建立即落一次上下文，TTL 从此刻起算
	if err := o.store.Persist(ctx, sess); err != nil {
		logger.Warn("initial context persist failed", zap.Error(err))
	}

	if err := tr.SendJSON(ctx, ConnectedMessage{Type: MsgConnected, SessionID: sess.ID}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// 上行: 音频推给转写流，控制消息就地应答
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case in, ok := <-incoming:
				if !ok {
					// 客户端正常结束: 冲刷未定稿结果后关闭流
					if err := current().Flush(gctx); err != nil {
						logger.Warn("flush on close failed", zap.Error(err))
					}
					return current().Close()
				}
				if in.Audio != nil {
					o.metrics.RecordAudioIn(len(in.Audio))
					// 送流失败按块记录，不拆会话；流错误由事件循环重建
					if err := current().SendAudio(gctx, in.Audio); err != nil {
						logger.Warn("audio chunk dropped", zap.Error(err))
					}
					continue
				}
				if in.Control == nil {
					continue
				}
				switch in.Control.Type {
				case MsgPing:
					if err := tr.SendJSON(gctx, PongMessage{Type: MsgPong}); err != nil {
						return err
					}
				case MsgEndUtterance:
					// 客户端提示话轮结束，催促引擎出最终结果
					if err := current().Flush(gctx); err != nil {
						logger.Warn("flush failed", zap.Error(err))
					}
				default:
					logger.Debug("unknown control message", zap.String("type", in.Control.Type))
				}
			}
		}
	})

	// 下行: 转写事件驱动回合流水线
	g.Go(func() error {
		for {
			var (
				ev speech.TranscriptEvent
				ok bool
			)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok = <-current().Events():
			}
			if !ok {
				return nil
			}
			if ev.Err != nil {
				// 流断了话语作废，会话不受影响: 报错后换一条新流继续听
				logger.Error("transcription stream failed", zap.Error(ev.Err))
				o.metrics.RecordUtterance("error")
				if err := tr.SendJSON(gctx, ErrorMessage{
					Type:    MsgError,
					Code:    string(types.ErrTranscription),
					Message: "transcription failed for this utterance",
				}); err != nil {
					return err
				}
				_ = current().Close()
				fresh, startErr := o.stt.Start(gctx)
				if startErr != nil {
					logger.Error("transcription stream restart failed", zap.Error(startErr))
					return types.NewError(types.ErrTranscription, "failed to restart transcription").WithCause(startErr)
				}
				replace(fresh)
				continue
			}
			if !ev.IsFinal {
				if err := tr.SendJSON(gctx, TranscriptMessage{
					Type:       MsgTranscript,
					Text:       ev.Text,
					Confidence: ev.Confidence,
				}); err != nil {
					return err
				}
				continue
			}
			if err := o.handleTurn(gctx, sess, tr, ev, logger); err != nil {
				return err
			}
		}
	})

	runErr := g.Wait()

	if err := sess.Transition(StateClosing); err == nil {
		// 关闭前保存最后的上下文，供重连恢复
		if err := o.store.Persist(context.WithoutCancel(ctx), sess); err != nil {
			logger.Warn("final context persist failed", zap.Error(err))
		}
		_ = sess.Transition(StateClosed)
	}

	outcome := "ok"
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		outcome = "error"
	}
	o.metrics.SessionEnded(string(sess.Identity.Role), outcome)
	logger.Info("session closed", zap.Int("turns", len(sess.Turns())))
	return runErr
}

// handleTurn 执行一个完整回合. 返回的 error 仅表示传输层失败;
// 模型与合成失败在内部转为 error 消息，会话继续.
func (o *Orchestrator) handleTurn(ctx context.Context, sess *Session, tr Transport, ev speech.TranscriptEvent, logger *zap.Logger) error {
	start := time.Now()
	query := ev.Text

	if err := tr.SendJSON(ctx, TranscriptMessage{
		Type:       MsgTranscript,
		Text:       query,
		IsFinal:    true,
		Confidence: ev.Confidence,
	}); err != nil {
		return err
	}

	var (
		text     string
		provider string
		tokens   int
		cached   bool
	)

	if hit, ok := o.semCache.Lookup(ctx, query); ok {
		text, provider = hit.Response, hit.Provider
		cached = true
		o.metrics.RecordCacheHit("semantic")
		logger.Debug("semantic cache hit",
			zap.String("provider", provider),
			zap.Float64("score", hit.Score))
	} else {
		o.metrics.RecordCacheMiss("semantic")
		res, err := o.router.Route(ctx, query, sess.Identity, sess.Turns(), "")
		if err != nil {
			logger.Error("turn completion failed", zap.Error(err))
			o.metrics.RecordTurn("", "error", time.Since(start))
			return tr.SendJSON(ctx, ErrorMessage{
				Type:    MsgError,
				Code:    string(types.ErrUpstreamError),
				Message: "assistant is temporarily unavailable",
			})
		}
		text, provider, tokens = res.Text, res.Provider, res.Tokens
	}

	if err := tr.SendJSON(ctx, LLMResponseMessage{
		Type:     MsgLLMResponse,
		Text:     text,
		Provider: provider,
		Tokens:   tokens,
	}); err != nil {
		return err
	}

	synthStart := time.Now()
	audio, synthErr := o.synth.Synthesize(ctx, &speech.TTSRequest{Text: text})
	if synthErr != nil {
		logger.Warn("synthesis failed", zap.Error(synthErr))
		o.metrics.RecordTTSRequest(o.synth.Name(), "error", time.Since(synthStart))
		if err := tr.SendJSON(ctx, ErrorMessage{
			Type:    MsgError,
			Code:    string(types.ErrSynthesis),
			Message: "audio synthesis failed",
		}); err != nil {
			return err
		}
	} else {
		o.metrics.RecordTTSRequest(o.synth.Name(), "ok", time.Since(synthStart))
		o.metrics.RecordAudioOut(len(audio.AudioData))
		if err := tr.SendAudio(ctx, audio.AudioData); err != nil {
			return err
		}
	}

	sess.AppendTurn(types.Turn{
		UserText:      query,
		AssistantText: text,
		Provider:      provider,
		Timestamp:     time.Now(),
	})

	if err := o.store.Persist(ctx, sess); err != nil {
		logger.Warn("context persist failed", zap.Error(err))
	}

	// 回合完成后才回填，避免同回合自命中
	if !cached {
		o.semCache.Store(ctx, query, text, provider, sess.Identity.UserID)
	}

	o.metrics.RecordTurn(provider, "ok", time.Since(start))
	o.metrics.RecordUtterance("ok")
	return nil
}
