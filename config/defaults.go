// =============================================================================
// 📦 VoxFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Redis:         DefaultRedisConfig(),
		Auth:          DefaultAuthConfig(),
		Session:       DefaultSessionConfig(),
		Providers:     DefaultProvidersConfig(),
		Router:        DefaultRouterConfig(),
		Embedding:     DefaultEmbeddingConfig(),
		SemanticCache: DefaultSemanticCacheConfig(),
		Speech:        DefaultSpeechConfig(),
		Log:           DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		PublicWSBase:    "ws://localhost:8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: "",
		Issuer:    "",
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ContextTTL:        30 * time.Minute,
		MaxTurns:          10,
		MaxPerUser:        3,
		HistoryWindow:     5,
		WSReadLimit:       1 << 20, // 1 MiB 音频帧上限
		HeartbeatInterval: 25 * time.Second,
	}
}

// DefaultProvidersConfig 返回默认 LLM 提供方配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		OpenAI: ProviderConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: ProviderConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Gemini: ProviderConfig{
			Model: "gemini-2.0-flash",
		},
		CallTimeout: 30 * time.Second,
	}
}

// DefaultRouterConfig 返回默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		LongQueryWords:  500,
		ClassifierModel: "gemini-2.0-flash",
		ClassifyTimeout: 5 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:      "text-embedding-3-large",
		Dimensions: 3072,
		Timeout:    10 * time.Second,
	}
}

// DefaultSemanticCacheConfig 返回默认语义缓存配置
func DefaultSemanticCacheConfig() SemanticCacheConfig {
	return SemanticCacheConfig{
		Enabled:   true,
		Threshold: 0.92,
		TTL:       24 * time.Hour,
	}
}

// DefaultSpeechConfig 返回默认语音配置
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		Deepgram: DeepgramConfig{
			BaseURL:        "wss://api.deepgram.com",
			Model:          "nova-2",
			Language:       "fr",
			SampleRate:     16000,
			EndpointingMS:  300,
			UtteranceEndMS: 1000,
		},
		GoogleTTS: GoogleTTSConfig{
			BaseURL:      "https://texttospeech.googleapis.com",
			Voice:        "fr-FR-Neural2-A",
			LanguageCode: "fr-FR",
			SpeakingRate: 1.0,
			Pitch:        0.0,
		},
		ElevenLabs: ElevenLabsConfig{
			BaseURL: "https://api.elevenlabs.io",
			VoiceID: "21m00Tcm4TlvDq8ikWAM",
			Model:   "eleven_multilingual_v2",
		},
		SynthTimeout: 20 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
