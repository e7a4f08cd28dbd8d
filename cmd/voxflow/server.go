package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voxflow/voxflow/api/handlers"
	"github.com/voxflow/voxflow/config"
	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/internal/metrics"
	"github.com/voxflow/voxflow/internal/server"
	"github.com/voxflow/voxflow/llm"
	"github.com/voxflow/voxflow/llm/embedding"
	"github.com/voxflow/voxflow/llm/providers"
	claude "github.com/voxflow/voxflow/llm/providers/anthropic"
	"github.com/voxflow/voxflow/llm/providers/gemini"
	"github.com/voxflow/voxflow/llm/providers/openai"
	"github.com/voxflow/voxflow/llm/router"
	"github.com/voxflow/voxflow/llm/semcache"
	"github.com/voxflow/voxflow/llm/speech"
	"github.com/voxflow/voxflow/voice"
)

// Server 语音编排服务，聚合全部组件与生命周期管理.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 基础设施
	cacheManager *cache.Manager
	collector    *metrics.Collector

	// 领域组件
	llmRouter *router.Router
	semCache  *semcache.Cache
	registry  *voice.Registry
	store     *voice.ContextStore
	orch      *voice.Orchestrator

	// HTTP
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 限流器后台清理的取消句柄
	rateLimitCancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewServer 创建服务实例，组件在 Start() 中按阶段初始化.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Start 按依赖顺序启动所有组件:
// Redis → 嵌入/语义缓存 → LLM 路由 → 语音组件 → HTTP/Metrics 服务.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("server already started")
	}

	s.collector = metrics.NewCollector("voxflow", s.logger)

	if err := s.initComponents(); err != nil {
		return fmt.Errorf("init components: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.started = true
	s.logger.Info("server started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 组件初始化
// =============================================================================

func (s *Server) initComponents() error {
	cfg := s.cfg

	// Redis
	manager, err := cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	s.cacheManager = manager

	// 嵌入 + 语义缓存
	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	s.semCache = semcache.NewCache(manager, embedder, semcache.Config{
		Enabled:   cfg.SemanticCache.Enabled,
		Threshold: cfg.SemanticCache.Threshold,
		TTL:       cfg.SemanticCache.TTL,
	}, s.logger)

	// LLM 提供方与路由
	llmProviders := map[string]llm.Provider{
		router.RouteOpenAI: openai.NewOpenAIProvider(providers.OpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.Providers.OpenAI.APIKey,
				BaseURL: cfg.Providers.OpenAI.BaseURL,
				Model:   cfg.Providers.OpenAI.Model,
				Timeout: cfg.Providers.CallTimeout,
			},
		}, s.logger),
		router.RouteClaude: claude.NewClaudeProvider(providers.ClaudeConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.Providers.Anthropic.APIKey,
				BaseURL: cfg.Providers.Anthropic.BaseURL,
				Model:   cfg.Providers.Anthropic.Model,
				Timeout: cfg.Providers.CallTimeout,
			},
		}, s.logger),
		router.RouteGemini: gemini.NewGeminiProvider(providers.GeminiConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.Providers.Gemini.APIKey,
				BaseURL: cfg.Providers.Gemini.BaseURL,
				Model:   cfg.Providers.Gemini.Model,
				Timeout: cfg.Providers.CallTimeout,
			},
		}, s.logger),
	}
	// 复杂度分类用独立的轻量 Gemini 模型
	classifier := gemini.NewGeminiProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Model:   cfg.Router.ClassifierModel,
			Timeout: cfg.Router.ClassifyTimeout,
		},
	}, s.logger)
	s.llmRouter = router.NewRouter(llmProviders, classifier, router.Config{
		LongQueryWords:  cfg.Router.LongQueryWords,
		ClassifyTimeout: cfg.Router.ClassifyTimeout,
		CallTimeout:     cfg.Providers.CallTimeout,
		HistoryWindow:   cfg.Session.HistoryWindow,
	}, s.logger)

	// 语音: TTS 启动时一次性选定，STT 每会话建流
	synth := speech.SelectSynthesizer(
		speech.GoogleTTSConfig{
			APIKey:       cfg.Speech.GoogleTTS.APIKey,
			BaseURL:      cfg.Speech.GoogleTTS.BaseURL,
			Voice:        cfg.Speech.GoogleTTS.Voice,
			LanguageCode: cfg.Speech.GoogleTTS.LanguageCode,
			SpeakingRate: cfg.Speech.GoogleTTS.SpeakingRate,
			Pitch:        cfg.Speech.GoogleTTS.Pitch,
			Timeout:      cfg.Speech.SynthTimeout,
		},
		speech.ElevenLabsConfig{
			APIKey:  cfg.Speech.ElevenLabs.APIKey,
			BaseURL: cfg.Speech.ElevenLabs.BaseURL,
			VoiceID: cfg.Speech.ElevenLabs.VoiceID,
			Model:   cfg.Speech.ElevenLabs.Model,
			Timeout: cfg.Speech.SynthTimeout,
		},
		s.logger,
	)
	transcriber := speech.NewDeepgramTranscriber(speech.DeepgramConfig{
		APIKey:         cfg.Speech.Deepgram.APIKey,
		BaseURL:        cfg.Speech.Deepgram.BaseURL,
		Model:          cfg.Speech.Deepgram.Model,
		Language:       cfg.Speech.Deepgram.Language,
		SampleRate:     cfg.Speech.Deepgram.SampleRate,
		EndpointingMS:  cfg.Speech.Deepgram.EndpointingMS,
		UtteranceEndMS: cfg.Speech.Deepgram.UtteranceEndMS,
	}, s.logger)

	// 会话层
	s.registry = voice.NewRegistry(cfg.Session.MaxPerUser)
	s.store = voice.NewContextStore(manager, cfg.Session.ContextTTL, s.logger)
	s.orch = voice.NewOrchestrator(
		s.llmRouter, s.semCache, synth, transcriber, s.store, s.collector, s.logger)

	return nil
}

// =============================================================================
// 🖥️ HTTP 服务
// =============================================================================

func (s *Server) startHTTPServer() error {
	cfg := s.cfg

	sessionHandler := handlers.NewSessionHandler(
		s.registry, s.store, s.collector,
		cfg.Server.PublicWSBase,
		cfg.Session.MaxTurns,
		int(cfg.Session.ContextTTL.Seconds()),
		s.logger,
	)
	voiceHandler := handlers.NewVoiceHandler(
		s.registry, s.store, s.orch,
		cfg.Session.WSReadLimit,
		cfg.Session.HeartbeatInterval,
		cfg.Session.MaxTurns,
		s.logger,
	)
	statsHandler := handlers.NewStatsHandler(s.semCache, s.llmRouter.Costs(), s.logger)

	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cacheManager.Ping))

	mux := http.NewServeMux()

	// 会话管理
	mux.HandleFunc("POST /v1/sessions", sessionHandler.HandleCreate)
	mux.HandleFunc("GET /v1/sessions/{id}", sessionHandler.HandleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", sessionHandler.HandleDelete)

	// 语音 WebSocket
	mux.HandleFunc("GET /ws/voice", voiceHandler.HandleWS)

	// 管理接口
	mux.HandleFunc("GET /v1/cache/stats", statsHandler.HandleCacheStats)
	mux.HandleFunc("DELETE /v1/cache/users/{id}", statsHandler.HandleInvalidateUserCache)
	mux.HandleFunc("GET /v1/costs", statsHandler.HandleCosts)

	// 健康检查
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	rlCtx, cancel := context.WithCancel(context.Background())
	s.rateLimitCancel = cancel

	skipAuth := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(rlCtx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(cfg.Auth, skipAuth, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// =============================================================================
// 🔄 生命周期
// =============================================================================

// WaitForShutdown 阻塞等待退出信号，随后执行优雅关闭.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.shutdownRest(ctx)
}

// Shutdown 立即执行优雅关闭（WaitForShutdown 之外的入口，便于测试）.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	s.shutdownRest(ctx)
	return firstErr
}

func (s *Server) shutdownRest(ctx context.Context) {
	if s.rateLimitCancel != nil {
		s.rateLimitCancel()
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Warn("redis close", zap.Error(err))
		}
	}
	s.logger.Info("server stopped")
}
