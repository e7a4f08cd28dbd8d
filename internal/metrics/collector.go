// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 会话指标
	sessionsActive     *prometheus.GaugeVec
	sessionsTotal      *prometheus.CounterVec
	turnsTotal         *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	sessionRejections  *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// 语音指标
	sttUtterancesTotal *prometheus.CounterVec
	ttsRequestsTotal   *prometheus.CounterVec
	ttsRequestDuration *prometheus.HistogramVec
	audioBytesIn       prometheus.Counter
	audioBytesOut      prometheus.Counter

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active voice sessions",
		},
		[]string{"role"},
	)

	c.sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions",
		},
		[]string{"role", "outcome"}, // outcome: completed, transport_error, rejected
	)

	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversational turns",
		},
		[]string{"provider", "status"},
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End to end turn duration (final transcript to audio reply)",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20},
		},
		[]string{"provider"},
	)

	c.sessionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Sessions rejected before activation",
		},
		[]string{"reason"}, // reason: auth, limit
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	// 语音指标
	c.sttUtterancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_utterances_total",
			Help:      "Total number of finalized utterances",
		},
		[]string{"status"},
	)

	c.ttsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_requests_total",
			Help:      "Total number of TTS synthesis requests",
		},
		[]string{"engine", "status"},
	)

	c.ttsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_request_duration_seconds",
			Help:      "TTS synthesis duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"engine"},
	)

	c.audioBytesIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_in_total",
			Help:      "Total audio bytes received from clients",
		},
	)

	c.audioBytesOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_out_total",
			Help:      "Total synthesized audio bytes sent to clients",
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🎙️ 会话指标记录
// =============================================================================

// SessionStarted 记录会话激活
func (c *Collector) SessionStarted(role string) {
	c.sessionsActive.WithLabelValues(role).Inc()
}

// SessionEnded 记录会话结束
func (c *Collector) SessionEnded(role, outcome string) {
	c.sessionsActive.WithLabelValues(role).Dec()
	c.sessionsTotal.WithLabelValues(role, outcome).Inc()
}

// SessionRejected 记录激活前被拒绝的会话
func (c *Collector) SessionRejected(reason string) {
	c.sessionRejections.WithLabelValues(reason).Inc()
}

// RecordTurn 记录一轮对话
func (c *Collector) RecordTurn(provider, status string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(provider, status).Inc()
	c.turnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// =============================================================================
// 🔊 语音指标记录
// =============================================================================

// RecordUtterance 记录一次定稿的语音转写
func (c *Collector) RecordUtterance(status string) {
	c.sttUtterancesTotal.WithLabelValues(status).Inc()
}

// RecordTTSRequest 记录一次语音合成
func (c *Collector) RecordTTSRequest(engine, status string, duration time.Duration) {
	c.ttsRequestsTotal.WithLabelValues(engine, status).Inc()
	c.ttsRequestDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordAudioIn 记录收到的音频字节数
func (c *Collector) RecordAudioIn(n int) {
	c.audioBytesIn.Add(float64(n))
}

// RecordAudioOut 记录发出的音频字节数
func (c *Collector) RecordAudioOut(n int) {
	c.audioBytesOut.Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
