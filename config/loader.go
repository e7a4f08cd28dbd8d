// =============================================================================
// 📦 VoxFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VOXFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VoxFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 缓存/会话存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Auth 鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Session 语音会话配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Providers LLM 提供方配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Router 模型路由配置
	Router RouterConfig `yaml:"router" env:"ROUTER"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// SemanticCache 语义缓存配置
	SemanticCache SemanticCacheConfig `yaml:"semantic_cache" env:"SEMANTIC_CACHE"`

	// Speech 语音（STT/TTS）配置
	Speech SpeechConfig `yaml:"speech" env:"SPEECH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 对外公布的 WebSocket 基地址（POST /v1/sessions 响应中的 ws_url 前缀）
	PublicWSBase string `yaml:"public_ws_base" env:"PUBLIC_WS_BASE"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// REST 限流（每秒请求数）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// REST 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源（为空拒绝跨域请求）
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	// HMAC 签名密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 可接受的 issuer（为空则不校验）
	Issuer string `yaml:"issuer" env:"ISSUER"`
}

// SessionConfig 语音会话配置
type SessionConfig struct {
	// 会话上下文 Redis TTL
	ContextTTL time.Duration `yaml:"context_ttl" env:"CONTEXT_TTL"`
	// 单会话保留的最大轮次数（FIFO 截断）
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 每用户最大并发会话数
	MaxPerUser int `yaml:"max_per_user" env:"MAX_PER_USER"`
	// 进入 system prompt 的历史轮次窗口
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// WebSocket 单帧最大字节数
	WSReadLimit int64 `yaml:"ws_read_limit" env:"WS_READ_LIMIT"`
	// 服务端心跳间隔（0 关闭）
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

// ProviderConfig 单个 LLM 提供方配置
type ProviderConfig struct {
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（留空使用官方端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
}

// ProvidersConfig LLM 提供方配置集合
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai" env:"OPENAI"`
	Anthropic ProviderConfig `yaml:"anthropic" env:"ANTHROPIC"`
	Gemini    ProviderConfig `yaml:"gemini" env:"GEMINI"`
	// 单次补全调用的超时上限
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// RouterConfig 模型路由配置
type RouterConfig struct {
	// 超过该词数的查询直接路由到最强模型
	LongQueryWords int `yaml:"long_query_words" env:"LONG_QUERY_WORDS"`
	// 复杂度分类使用的模型
	ClassifierModel string `yaml:"classifier_model" env:"CLASSIFIER_MODEL"`
	// 分类调用超时
	ClassifyTimeout time.Duration `yaml:"classify_timeout" env:"CLASSIFY_TIMEOUT"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SemanticCacheConfig 语义缓存配置
type SemanticCacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 相似度命中阈值
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
	// 缓存条目 TTL
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// DeepgramConfig Deepgram 实时转写配置
type DeepgramConfig struct {
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// WebSocket 基地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
	// 语言
	Language string `yaml:"language" env:"LANGUAGE"`
	// 采样率
	SampleRate int `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 端点静音判定（毫秒）
	EndpointingMS int `yaml:"endpointing_ms" env:"ENDPOINTING_MS"`
	// utterance_end 静音窗口（毫秒）
	UtteranceEndMS int `yaml:"utterance_end_ms" env:"UTTERANCE_END_MS"`
}

// GoogleTTSConfig Google Cloud TTS 配置
type GoogleTTSConfig struct {
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 声音名
	Voice string `yaml:"voice" env:"VOICE"`
	// 语言代码
	LanguageCode string `yaml:"language_code" env:"LANGUAGE_CODE"`
	// 语速
	SpeakingRate float64 `yaml:"speaking_rate" env:"SPEAKING_RATE"`
	// 音高
	Pitch float64 `yaml:"pitch" env:"PITCH"`
}

// ElevenLabsConfig ElevenLabs TTS 配置
type ElevenLabsConfig struct {
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 声音 ID
	VoiceID string `yaml:"voice_id" env:"VOICE_ID"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
}

// SpeechConfig 语音配置
type SpeechConfig struct {
	Deepgram   DeepgramConfig   `yaml:"deepgram" env:"DEEPGRAM"`
	GoogleTTS  GoogleTTSConfig  `yaml:"google_tts" env:"GOOGLE_TTS"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs" env:"ELEVENLABS"`
	// 单次合成调用超时
	SynthTimeout time.Duration `yaml:"synth_timeout" env:"SYNTH_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOXFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Session.MaxTurns <= 0 {
		errs = append(errs, "session max_turns must be positive")
	}
	if c.Session.MaxPerUser <= 0 {
		errs = append(errs, "session max_per_user must be positive")
	}
	if c.Session.ContextTTL <= 0 {
		errs = append(errs, "session context_ttl must be positive")
	}
	if c.SemanticCache.Threshold < 0 || c.SemanticCache.Threshold > 1 {
		errs = append(errs, "semantic_cache threshold must be between 0 and 1")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth jwt_secret is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
