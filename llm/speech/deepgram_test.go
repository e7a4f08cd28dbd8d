package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Deepgram 实时流测试
// =============================================================================

// deepgramFakeServer 模拟 Deepgram 实时端点：收到音频帧后按脚本推送消息.
func deepgramFakeServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("interim_results"))
		assert.Equal(t, "300", r.URL.Query().Get("endpointing"))
		assert.Equal(t, "1000", r.URL.Query().Get("utterance_end_ms"))
		assert.Equal(t, "true", r.URL.Query().Get("vad_events"))
		assert.Equal(t, "true", r.URL.Query().Get("punctuate"))
		assert.Equal(t, "true", r.URL.Query().Get("smart_format"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		script(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func resultMessage(transcript string, confidence float64, isFinal, speechFinal bool) []byte {
	msg := map[string]any{
		"type":         "Results",
		"is_final":     isFinal,
		"speech_final": speechFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{
				"transcript": transcript,
				"confidence": confidence,
				"words": []map[string]any{
					{"word": transcript, "start": 0.1, "end": 0.5, "confidence": confidence},
				},
			}},
		},
	}
	data, _ := json.Marshal(msg)
	return data
}

func collectEvents(t *testing.T, stream LiveStream, n int) []TranscriptEvent {
	t.Helper()
	var events []TranscriptEvent
	timeout := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(events), n)
		}
	}
	return events
}

func TestDeepgramStream_InterimThenFinal(t *testing.T) {
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		// 等第一帧音频
		_, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageText, resultMessage("bonjour", 0.8, false, false))
		conn.Write(ctx, websocket.MessageText, resultMessage("bonjour tout le monde", 0.95, true, true))
		// 保持连接直到客户端关闭
		conn.Read(ctx)
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendAudio(context.Background(), []byte{1, 2, 3}))

	events := collectEvents(t, stream, 2)
	assert.False(t, events[0].IsFinal)
	assert.Equal(t, "bonjour", events[0].Text)

	assert.True(t, events[1].IsFinal)
	assert.Equal(t, "bonjour tout le monde", events[1].Text)
	assert.InDelta(t, 0.95, events[1].Confidence, 1e-9)
	require.Len(t, events[1].Words, 1)
	assert.Equal(t, 100*time.Millisecond, events[1].Words[0].Start)
}

func TestDeepgramStream_SingleFinalPerUtterance(t *testing.T) {
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
		// 两个定稿分段，只有第二个带 speech_final
		conn.Write(ctx, websocket.MessageText, resultMessage("je voudrais", 0.9, true, false))
		conn.Write(ctx, websocket.MessageText, resultMessage("un café", 0.92, true, true))
		conn.Read(ctx)
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendAudio(context.Background(), []byte{1}))

	events := collectEvents(t, stream, 1)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinal)
	assert.Equal(t, "je voudrais un café", events[0].Text)
	assert.Len(t, events[0].Words, 2)
}

func TestDeepgramStream_UtteranceEndFlushesPending(t *testing.T) {
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
		// 定稿分段后无 speech_final，由 UtteranceEnd 触发定稿
		conn.Write(ctx, websocket.MessageText, resultMessage("merci beaucoup", 0.9, true, false))
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"UtteranceEnd","last_word_end":2.1}`))
		conn.Read(ctx)
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendAudio(context.Background(), []byte{1}))

	events := collectEvents(t, stream, 1)
	assert.True(t, events[0].IsFinal)
	assert.Equal(t, "merci beaucoup", events[0].Text)
}

func TestDeepgramStream_FlushSendsFinalize(t *testing.T) {
	finalize := make(chan struct{}, 1)
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			var msg deepgramControlMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == "Finalize" {
				finalize <- struct{}{}
				return
			}
		}
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Flush(context.Background()))

	select {
	case <-finalize:
	case <-time.After(5 * time.Second):
		t.Fatal("server never received Finalize")
	}
}

func TestDeepgramStream_CloseEmitsPendingTail(t *testing.T) {
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
		// 定稿分段但未到话语边界，随后等 CloseStream 再收尾
		conn.Write(ctx, websocket.MessageText, resultMessage("au revoir", 0.9, true, false))
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			var msg deepgramControlMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == "CloseStream" {
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
		}
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio(context.Background(), []byte{1}))

	closed := make(chan struct{})
	go func() {
		_ = stream.Close()
		close(closed)
	}()

	// 关闭路径必须把累积分段补成最终事件，而不是静默丢弃
	events := collectEvents(t, stream, 1)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinal)
	assert.Equal(t, "au revoir", events[0].Text)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not finish")
	}
}

func TestDeepgramStream_FatalErrorEmitsAndCloses(t *testing.T) {
	srv := deepgramFakeServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Close(websocket.StatusInternalError, "backend failure")
	})

	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "test-key", BaseURL: wsURL(srv)}, zap.NewNop())
	stream, err := tr.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	select {
	case ev, ok := <-stream.Events():
		require.True(t, ok)
		assert.Error(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected error event")
	}

	// 错误后通道关闭
	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel should be closed after fatal error")
	}
}

func TestDeepgramTranscriber_ListenURL(t *testing.T) {
	tr := NewDeepgramTranscriber(DeepgramConfig{APIKey: "k"}, zap.NewNop())
	u := tr.listenURL()
	assert.Contains(t, u, "wss://api.deepgram.com/v1/listen?")
	assert.Contains(t, u, "model=nova-2")
	assert.Contains(t, u, "language=fr")
	assert.Contains(t, u, "sample_rate=16000")
}
