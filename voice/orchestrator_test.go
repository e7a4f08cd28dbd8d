package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/internal/metrics"
	"github.com/voxflow/voxflow/llm"
	"github.com/voxflow/voxflow/llm/embedding"
	"github.com/voxflow/voxflow/llm/router"
	"github.com/voxflow/voxflow/llm/semcache"
	"github.com/voxflow/voxflow/llm/speech"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 编排器测试
// =============================================================================

// --- 测试替身 ---

type fakeLLM struct {
	name  string
	reply string
	err   error
	calls atomic.Int64
}

func (f *fakeLLM) Name() string { return f.name }

func (f *fakeLLM) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *fakeLLM) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Provider: f.name,
		Choices:  []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply}}},
		Usage:    llm.ChatUsage{TotalTokens: 7},
	}, nil
}

type fakeStream struct {
	events    chan speech.TranscriptEvent
	mu        sync.Mutex
	audio     [][]byte
	flushes   int
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan speech.TranscriptEvent, 16)}
}

func (f *fakeStream) SendAudio(ctx context.Context, chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, chunk)
	return nil
}

func (f *fakeStream) Events() <-chan speech.TranscriptEvent { return f.events }

func (f *fakeStream) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeStream) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

type fakeTranscriber struct {
	stream     *fakeStream
	next       *fakeStream // 第二次 Start 返回的流（流重建场景）
	startErr   error
	restartErr error
	starts     atomic.Int64
}

func (f *fakeTranscriber) Start(ctx context.Context) (speech.LiveStream, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	n := f.starts.Add(1)
	if n > 1 {
		if f.restartErr != nil {
			return nil, f.restartErr
		}
		if f.next != nil {
			return f.next, nil
		}
	}
	return f.stream, nil
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

type fakeSynth struct {
	err   error
	calls atomic.Int64
}

func (f *fakeSynth) Name() string { return "fake-tts" }

func (f *fakeSynth) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.TTSResponse{Provider: "fake-tts", AudioData: []byte("mp3:" + req.Text), Format: "mp3"}, nil
}

func (f *fakeSynth) SynthesizeSSML(ctx context.Context, ssml string, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	return f.Synthesize(ctx, &speech.TTSRequest{Text: ssml})
}

type memTransport struct {
	mu       sync.Mutex
	messages []any
	audio    [][]byte
	jsonErr  error
}

func (m *memTransport) SendJSON(ctx context.Context, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jsonErr != nil {
		return m.jsonErr
	}
	m.messages = append(m.messages, v)
	return nil
}

func (m *memTransport) SendAudio(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, data)
	return nil
}

func (m *memTransport) snapshot() ([]any, [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]any, len(m.messages))
	copy(msgs, m.messages)
	frames := make([][]byte, len(m.audio))
	copy(frames, m.audio)
	return msgs, frames
}

type constEmbedder struct {
	vectors map[string][]float64
}

func (c *constEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (c *constEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if v, ok := c.vectors[query]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func (c *constEmbedder) Name() string          { return "const" }
func (c *constEmbedder) Dimensions() int       { return 3 }
func (c *constEmbedder) ModelRevision() string { return "rev-1" }

// --- 测试装配 ---

var collectorSeq atomic.Int64

type orchFixture struct {
	orch     *Orchestrator
	stream   *fakeStream
	stt      *fakeTranscriber
	synth    *fakeSynth
	tr       *memTransport
	gemini   *fakeLLM
	semCache *semcache.Cache
	store    *ContextStore
	mr       *miniredis.Miniredis
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	gemini := &fakeLLM{name: router.RouteGemini, reply: "voici la réponse"}
	openai := &fakeLLM{name: router.RouteOpenAI, reply: "réponse openai"}
	claude := &fakeLLM{name: router.RouteClaude, reply: "réponse claude"}
	classifier := &fakeLLM{name: "classifier", reply: "simple"}
	rt := router.NewRouter(map[string]llm.Provider{
		router.RouteGemini: gemini,
		router.RouteOpenAI: openai,
		router.RouteClaude: claude,
	}, classifier, router.DefaultConfig(), zap.NewNop())

	emb := &constEmbedder{vectors: map[string][]float64{
		"quelle heure est-il": {1, 0, 0},
	}}
	sc := semcache.NewCache(manager, emb, semcache.DefaultConfig(), zap.NewNop())

	store := NewContextStore(manager, 30*time.Minute, zap.NewNop())
	stream := newFakeStream()
	synth := &fakeSynth{}
	collector := metrics.NewCollector(fmt.Sprintf("voicetest%d", collectorSeq.Add(1)), zap.NewNop())

	stt := &fakeTranscriber{stream: stream}
	orch := NewOrchestrator(rt, sc, synth, stt, store, collector, zap.NewNop())

	return &orchFixture{
		orch: orch, stream: stream, stt: stt, synth: synth,
		tr: &memTransport{}, gemini: gemini, semCache: sc, store: store, mr: mr,
	}
}

// runSession 驱动一个会话: 推入事件后关闭上行通道，等待 Run 返回.
func runSession(t *testing.T, f *orchFixture, sess *Session, events []speech.TranscriptEvent, inbound []Inbound) error {
	t.Helper()

	incoming := make(chan Inbound, len(inbound)+1)
	done := make(chan error, 1)
	go func() {
		done <- f.orch.Run(context.Background(), sess, f.tr, incoming)
	}()

	for _, in := range inbound {
		incoming <- in
	}
	for _, ev := range events {
		f.stream.events <- ev
	}
	close(incoming)

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
		return nil
	}
}

// --- 用例 ---

func TestOrchestrator_FullTurn(t *testing.T) {
	f := newOrchFixture(t)
	sess := NewSession(testIdentity(), 10)

	err := runSession(t, f, sess, []speech.TranscriptEvent{
		{Text: "quelle", IsFinal: false, Confidence: 0.5},
		{Text: "quelle heure est-il", IsFinal: true, Confidence: 0.93},
	}, []Inbound{{Audio: []byte{1, 2, 3}}})
	require.NoError(t, err)

	msgs, frames := f.tr.snapshot()
	require.GreaterOrEqual(t, len(msgs), 4)

	connected, ok := msgs[0].(ConnectedMessage)
	require.True(t, ok, "first message must be connected")
	assert.Equal(t, sess.ID, connected.SessionID)

	var finalTranscript *TranscriptMessage
	var response *LLMResponseMessage
	for _, m := range msgs {
		switch v := m.(type) {
		case TranscriptMessage:
			if v.IsFinal {
				vv := v
				finalTranscript = &vv
			}
		case LLMResponseMessage:
			vv := v
			response = &vv
		}
	}
	require.NotNil(t, finalTranscript)
	assert.Equal(t, "quelle heure est-il", finalTranscript.Text)
	require.NotNil(t, response)
	assert.Equal(t, "voici la réponse", response.Text)
	assert.Equal(t, router.RouteGemini, response.Provider)
	assert.Equal(t, 7, response.Tokens)

	require.Len(t, frames, 1)
	assert.Equal(t, []byte("mp3:voici la réponse"), frames[0])

	// 音频转发到了转写流
	f.stream.mu.Lock()
	require.Len(t, f.stream.audio, 1)
	f.stream.mu.Unlock()

	// 回合已记录并持久化
	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "quelle heure est-il", turns[0].UserText)
	assert.Equal(t, "voici la réponse", turns[0].AssistantText)
	assert.Equal(t, router.RouteGemini, turns[0].Provider)

	loaded, err := f.store.Load(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Turns, 1)

	assert.Equal(t, StateClosed, sess.State())
}

func TestOrchestrator_SecondSessionHitsSemanticCache(t *testing.T) {
	f := newOrchFixture(t)

	first := NewSession(testIdentity(), 10)
	require.NoError(t, runSession(t, f, first, []speech.TranscriptEvent{
		{Text: "quelle heure est-il", IsFinal: true},
	}, nil))
	require.EqualValues(t, 1, f.gemini.calls.Load())

	f.tr = &memTransport{}
	f.stream = newFakeStream()
	f.orch.stt = &fakeTranscriber{stream: f.stream}

	second := NewSession(testIdentity(), 10)
	require.NoError(t, runSession(t, f, second, []speech.TranscriptEvent{
		{Text: "quelle heure est-il", IsFinal: true},
	}, nil))

	assert.EqualValues(t, 1, f.gemini.calls.Load(), "cached answer must not call the provider again")

	msgs, frames := f.tr.snapshot()
	var response *LLMResponseMessage
	for _, m := range msgs {
		if v, ok := m.(LLMResponseMessage); ok {
			response = &v
		}
	}
	require.NotNil(t, response)
	assert.Equal(t, "voici la réponse", response.Text)
	assert.Equal(t, router.RouteGemini, response.Provider)
	assert.Len(t, frames, 1, "cached turns still produce audio")
}

func TestOrchestrator_ProviderFailureKeepsSessionActive(t *testing.T) {
	f := newOrchFixture(t)
	f.gemini.err = errors.New("upstream down")
	sess := NewSession(testIdentity(), 10)

	err := runSession(t, f, sess, []speech.TranscriptEvent{
		{Text: "quelle heure est-il", IsFinal: true},
	}, nil)
	require.NoError(t, err, "turn failure is not a session failure")

	msgs, frames := f.tr.snapshot()
	var errMsg *ErrorMessage
	for _, m := range msgs {
		if v, ok := m.(ErrorMessage); ok {
			errMsg = &v
		}
	}
	require.NotNil(t, errMsg)
	assert.Equal(t, "UPSTREAM_ERROR", errMsg.Code)
	assert.Empty(t, frames)
	assert.Empty(t, sess.Turns(), "failed turn is not recorded")
}

func TestOrchestrator_SynthesisFailureStillRecordsTurn(t *testing.T) {
	f := newOrchFixture(t)
	f.synth.err = errors.New("tts down")
	sess := NewSession(testIdentity(), 10)

	err := runSession(t, f, sess, []speech.TranscriptEvent{
		{Text: "quelle heure est-il", IsFinal: true},
	}, nil)
	require.NoError(t, err)

	msgs, frames := f.tr.snapshot()
	var errMsg *ErrorMessage
	var response *LLMResponseMessage
	for _, m := range msgs {
		switch v := m.(type) {
		case ErrorMessage:
			vv := v
			errMsg = &vv
		case LLMResponseMessage:
			vv := v
			response = &vv
		}
	}
	require.NotNil(t, response, "text answer precedes synthesis")
	require.NotNil(t, errMsg)
	assert.Equal(t, "SYNTHESIS_FAILED", errMsg.Code)
	assert.Empty(t, frames)
	assert.Len(t, sess.Turns(), 1, "text was delivered, the turn counts")
}

func TestOrchestrator_PingPong(t *testing.T) {
	f := newOrchFixture(t)
	sess := NewSession(testIdentity(), 10)

	err := runSession(t, f, sess, nil, []Inbound{
		{Control: &ClientMessage{Type: MsgPing}},
	})
	require.NoError(t, err)

	msgs, _ := f.tr.snapshot()
	var pong bool
	for _, m := range msgs {
		if _, ok := m.(PongMessage); ok {
			pong = true
		}
	}
	assert.True(t, pong)
}

func TestOrchestrator_EndUtteranceFlushes(t *testing.T) {
	f := newOrchFixture(t)
	sess := NewSession(testIdentity(), 10)

	err := runSession(t, f, sess, nil, []Inbound{
		{Control: &ClientMessage{Type: MsgEndUtterance}},
	})
	require.NoError(t, err)

	// end_utterance 一次 + 通道关闭时一次
	assert.Equal(t, 2, f.stream.flushCount())
}

func TestOrchestrator_StreamErrorKeepsSessionActive(t *testing.T) {
	f := newOrchFixture(t)
	replacement := newFakeStream()
	f.stt.next = replacement
	sess := NewSession(testIdentity(), 10)

	incoming := make(chan Inbound)
	done := make(chan error, 1)
	go func() {
		done <- f.orch.Run(context.Background(), sess, f.tr, incoming)
	}()

	f.stream.events <- speech.TranscriptEvent{Err: errors.New("upstream socket reset")}

	// 流错误只废当前话语: 客户端收到 error 事件，会话保持 ACTIVE
	require.Eventually(t, func() bool {
		msgs, _ := f.tr.snapshot()
		for _, m := range msgs {
			if v, ok := m.(ErrorMessage); ok {
				return v.Code == string(types.ErrTranscription)
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "caller must receive an error event")
	assert.Equal(t, StateActive, sess.State())

	// 编排器换了一条新流继续听
	require.Eventually(t, func() bool {
		return f.stt.starts.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)

	// 新流上的话语照常走完整回合
	replacement.events <- speech.TranscriptEvent{Text: "quelle heure est-il", IsFinal: true}
	require.Eventually(t, func() bool {
		msgs, _ := f.tr.snapshot()
		for _, m := range msgs {
			if _, ok := m.(LLMResponseMessage); ok {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	close(incoming)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.Equal(t, StateClosed, sess.State())
	assert.Len(t, sess.Turns(), 1)
}

func TestOrchestrator_StreamRestartFailureClosesSession(t *testing.T) {
	f := newOrchFixture(t)
	f.stt.restartErr = errors.New("dial refused")
	sess := NewSession(testIdentity(), 10)

	incoming := make(chan Inbound)
	done := make(chan error, 1)
	go func() {
		done <- f.orch.Run(context.Background(), sess, f.tr, incoming)
	}()

	f.stream.events <- speech.TranscriptEvent{Err: errors.New("upstream socket reset")}

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, types.ErrTranscription, types.GetErrorCode(err))
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.Equal(t, StateClosed, sess.State())
}

func TestOrchestrator_ContextPersistedAtOpen(t *testing.T) {
	f := newOrchFixture(t)
	sess := NewSession(testIdentity(), 10)

	incoming := make(chan Inbound)
	done := make(chan error, 1)
	go func() {
		done <- f.orch.Run(context.Background(), sess, f.tr, incoming)
	}()

	// 连接建立即有存储记录，不必等第一个回合
	require.Eventually(t, func() bool {
		sc, err := f.store.Load(context.Background(), sess.ID)
		return err == nil && sc != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateActive, sess.State())

	close(incoming)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestOrchestrator_StartFailure(t *testing.T) {
	f := newOrchFixture(t)
	f.orch.stt = &fakeTranscriber{startErr: errors.New("dial refused")}
	sess := NewSession(testIdentity(), 10)

	err := f.orch.Run(context.Background(), sess, f.tr, make(chan Inbound))
	require.Error(t, err)
	assert.NotEqual(t, StateActive, sess.State())
}
