package semcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/llm/embedding"
	"go.uber.org/zap"
)

// keyPrefix 下的键仅作索引用，条目匹配完全基于向量相似度.
const keyPrefix = "cache:"

// Config 语义缓存配置.
type Config struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Threshold float64       `json:"threshold" yaml:"threshold"` // 余弦相似度命中阈值 [0,1]
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultConfig 返回默认语义缓存配置.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Threshold: 0.92,
		TTL:       24 * time.Hour,
	}
}

// Entry 是持久化到 Redis 的缓存条目.
type Entry struct {
	Query         string    `json:"query"`
	Response      string    `json:"response"`
	Provider      string    `json:"provider"`
	UserID        string    `json:"user_id,omitempty"`
	Embedding     []float64 `json:"embedding"`
	ModelRevision string    `json:"model_revision"`
	CreatedAt     time.Time `json:"created_at"`
}

// Hit 是一次缓存命中的结果.
type Hit struct {
	Response string  `json:"response"`
	Provider string  `json:"provider"`
	Score    float64 `json:"score"`
}

// Stats 汇总缓存当前状态.
type Stats struct {
	EntryCount int     `json:"entry_count"`
	ByteSize   int64   `json:"byte_size"`
	Threshold  float64 `json:"threshold"`
	Enabled    bool    `json:"enabled"`
}

// Cache 基于嵌入相似度的语义响应缓存.
// 缓存层所有故障都降级为未命中或空操作，绝不中断对话回合.
type Cache struct {
	store    *cache.Manager
	embedder embedding.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewCache 创建语义缓存.
func NewCache(store *cache.Manager, embedder embedding.Provider, cfg Config, logger *zap.Logger) *Cache {
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.92
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Cache{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

func (c *Cache) Enabled() bool { return c.cfg.Enabled }

// Lookup 在缓存中查找与 query 语义相近的已缓存响应.
// 相似度最高且达到阈值的条目命中；相同分数保留先扫描到的条目.
// 嵌入或 Redis 故障记录警告并按未命中返回.
func (c *Cache) Lookup(ctx context.Context, query string) (*Hit, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		c.logger.Warn("semantic cache embed failed, treating as miss", zap.Error(err))
		return nil, false
	}

	keys, err := c.store.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("semantic cache scan failed, treating as miss", zap.Error(err))
		return nil, false
	}

	revision := c.embedder.ModelRevision()
	var best *Entry
	var bestScore float64

	for _, key := range keys {
		var entry Entry
		if err := c.store.GetJSON(ctx, key, &entry); err != nil {
			if !cache.IsCacheMiss(err) {
				c.logger.Warn("semantic cache entry read failed", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		// 旧模型修订的向量不可比较，跳过
		if entry.ModelRevision != revision {
			continue
		}

		score := embedding.Cosine(vec, entry.Embedding)
		if score > bestScore {
			bestScore = score
			e := entry
			best = &e
		}
	}

	if best == nil || bestScore < c.cfg.Threshold {
		return nil, false
	}

	c.logger.Debug("semantic cache hit",
		zap.Float64("score", bestScore),
		zap.String("provider", best.Provider))
	return &Hit{
		Response: best.Response,
		Provider: best.Provider,
		Score:    bestScore,
	}, true
}

// Store 在回合完成后写入查询与响应.
// 故障记录警告后静默返回，不影响调用方.
func (c *Cache) Store(ctx context.Context, query, response, provider, userID string) {
	if !c.cfg.Enabled {
		return
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		c.logger.Warn("semantic cache embed failed, skipping store", zap.Error(err))
		return
	}

	entry := Entry{
		Query:         query,
		Response:      response,
		Provider:      provider,
		UserID:        userID,
		Embedding:     vec,
		ModelRevision: c.embedder.ModelRevision(),
		CreatedAt:     time.Now(),
	}

	if err := c.store.SetJSON(ctx, Key(query), entry, c.cfg.TTL); err != nil {
		c.logger.Warn("semantic cache store failed", zap.Error(err))
	}
}

// InvalidateForUser 删除指定用户写入的所有缓存条目.
func (c *Cache) InvalidateForUser(ctx context.Context, userID string) {
	keys, err := c.store.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("semantic cache scan failed during invalidation", zap.Error(err))
		return
	}

	var toDelete []string
	for _, key := range keys {
		var entry Entry
		if err := c.store.GetJSON(ctx, key, &entry); err != nil {
			continue
		}
		if entry.UserID == userID {
			toDelete = append(toDelete, key)
		}
	}

	if len(toDelete) == 0 {
		return
	}
	if err := c.store.Delete(ctx, toDelete...); err != nil {
		c.logger.Warn("semantic cache invalidation failed", zap.Error(err))
		return
	}
	c.logger.Info("semantic cache invalidated",
		zap.String("user_id", userID),
		zap.Int("entries", len(toDelete)))
}

// Stats 返回缓存当前条目数与占用字节数.
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Threshold: c.cfg.Threshold,
		Enabled:   c.cfg.Enabled,
	}

	keys, err := c.store.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("semantic cache scan failed during stats", zap.Error(err))
		return stats
	}

	stats.EntryCount = len(keys)
	for _, key := range keys {
		n, err := c.store.StrLen(ctx, key)
		if err != nil {
			continue
		}
		stats.ByteSize += n
	}
	return stats
}

// Key 计算查询对应的 Redis 键.
func Key(query string) string {
	sum := md5.Sum([]byte(query))
	return keyPrefix + hex.EncodeToString(sum[:])
}
