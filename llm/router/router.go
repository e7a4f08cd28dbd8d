package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxflow/voxflow/llm"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 成本/复杂度路由器
// =============================================================================

// 路由目标，同时作为成本表的键.
const (
	RouteGemini = "gemini-flash" // 最便宜，简单查询
	RouteOpenAI = "gpt-4o-mini"  // 中档
	RouteClaude = "claude-haiku" // 最高能力档
)

// Complexity 分类器产出的复杂度等级.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// 代码/编程意图关键字，命中即无条件走最高能力档.
// 子串匹配而非整词: "classer"、"coder" 这类派生词同样意味着代码诉求
var codeKeywords = []string{"code", "script", "fonction", "class"}

func hasCodeKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Config 路由器配置.
type Config struct {
	LongQueryWords  int           `json:"long_query_words" yaml:"long_query_words"` // 超长查询阈值（词数）
	ClassifyTimeout time.Duration `json:"classify_timeout" yaml:"classify_timeout"`
	CallTimeout     time.Duration `json:"call_timeout" yaml:"call_timeout"` // 单次生成调用的 deadline
	HistoryWindow   int           `json:"history_window" yaml:"history_window"`
}

// DefaultConfig 返回默认路由配置.
func DefaultConfig() Config {
	return Config{
		LongQueryWords:  500,
		ClassifyTimeout: 5 * time.Second,
		CallTimeout:     30 * time.Second,
		HistoryWindow:   5,
	}
}

// Result 一次路由调用的归一化结果.
type Result struct {
	Text       string     `json:"text"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Tokens     int        `json:"tokens"`
	Cost       float64    `json:"cost"`
	Complexity Complexity `json:"complexity,omitempty"`
}

// Router 按成本/复杂度策略选择生成后端并调用它.
// 提供者调用失败原样向上传播，不做静默跨提供者回退.
type Router struct {
	providers  map[string]llm.Provider
	classifier llm.Provider
	costs      *CostTracker
	cfg        Config
	logger     *zap.Logger
}

// NewRouter 创建路由器. providers 以路由名为键；classifier 用于复杂度分类
// （通常是最便宜的后端）.
func NewRouter(providers map[string]llm.Provider, classifier llm.Provider, cfg Config, logger *zap.Logger) *Router {
	if cfg.LongQueryWords == 0 {
		cfg.LongQueryWords = 500
	}
	if cfg.ClassifyTimeout == 0 {
		cfg.ClassifyTimeout = 5 * time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = 5
	}
	return &Router{
		providers:  providers,
		classifier: classifier,
		costs:      NewCostTracker(),
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "router")),
	}
}

// Costs 返回进程级成本计数器.
func (r *Router) Costs() *CostTracker { return r.costs }

// Route 选择提供者、构建 system preamble 并执行生成调用.
// forced 非空时跳过选择规则直接使用指定提供者.
func (r *Router) Route(ctx context.Context, query string, identity types.Identity, turns []types.Turn, forced string) (*Result, error) {
	var target string
	var complexity Complexity

	if forced != "" {
		if _, ok := r.providers[forced]; !ok {
			return nil, fmt.Errorf("forced provider %q is not configured", forced)
		}
		target = forced
	} else {
		target, complexity = r.selectProvider(ctx, query)
	}

	provider, ok := r.providers[target]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", target)
	}

	preamble := BuildPreamble(identity, turns, r.cfg.HistoryWindow)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	resp, err := provider.Completion(callCtx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: preamble},
			{Role: llm.RoleUser, Content: query},
		},
	})
	if err != nil {
		// 失败原样传播，记录出错的提供者
		r.logger.Error("provider call failed",
			zap.String("provider", target),
			zap.Error(err))
		return nil, err
	}

	text := resp.Text()
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		// 上游未返回用量，本地估算
		tokens = EstimateTokens(preamble+query) + EstimateTokens(text)
	}
	cost := r.costs.Record(target, tokens)

	return &Result{
		Text:       text,
		Provider:   target,
		Model:      resp.Model,
		Tokens:     tokens,
		Cost:       cost,
		Complexity: complexity,
	}, nil
}

// selectProvider 执行选择规则，返回路由目标与复杂度（规则 1/2 命中时复杂度为空）.
func (r *Router) selectProvider(ctx context.Context, query string) (string, Complexity) {
	// 规则 1: 代码关键字 → 最高能力档
	if hasCodeKeyword(query) {
		r.logger.Debug("route: code keyword", zap.String("provider", RouteClaude))
		return RouteClaude, ""
	}

	// 规则 2: 超长查询 → 最高能力档
	if len(strings.Fields(query)) > r.cfg.LongQueryWords {
		r.logger.Debug("route: long query", zap.String("provider", RouteClaude))
		return RouteClaude, ""
	}

	// 规则 3: 分类器判定复杂度，失败保守回退 medium（绝不降为 simple）
	complexity := r.classify(ctx, query)

	// 规则 4: 复杂度 → 提供者
	var target string
	switch complexity {
	case ComplexitySimple:
		target = RouteGemini
	case ComplexityComplex:
		target = RouteClaude
	default:
		target = RouteOpenAI
	}
	r.logger.Debug("route: classified",
		zap.String("complexity", string(complexity)),
		zap.String("provider", target))
	return target, complexity
}

const classifyPrompt = `Classify the complexity of the user query into exactly one of: simple, medium, complex.
- simple: greetings, small talk, single-fact questions
- medium: explanations, multi-step answers
- complex: reasoning, analysis, technical depth
Answer with the single word only.`

func (r *Router) classify(ctx context.Context, query string) Complexity {
	classifyCtx, cancel := context.WithTimeout(ctx, r.cfg.ClassifyTimeout)
	defer cancel()

	resp, err := r.classifier.Completion(classifyCtx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifyPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		MaxTokens: 8,
	})
	if err != nil {
		r.logger.Warn("complexity classification failed, defaulting to medium", zap.Error(err))
		return ComplexityMedium
	}

	label := strings.ToLower(strings.TrimSpace(resp.Text()))
	switch {
	case strings.Contains(label, string(ComplexitySimple)):
		return ComplexitySimple
	case strings.Contains(label, string(ComplexityComplex)):
		return ComplexityComplex
	case strings.Contains(label, string(ComplexityMedium)):
		return ComplexityMedium
	default:
		r.logger.Warn("unrecognized complexity label, defaulting to medium", zap.String("label", label))
		return ComplexityMedium
	}
}
