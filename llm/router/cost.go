package router

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// =============================================================================
// 📊 成本核算
// =============================================================================

// 每百万 token 的美元单价，静态表.
var providerRates = map[string]float64{
	RouteGemini: 0.10,
	RouteOpenAI: 0.15,
	RouteClaude: 1.00,
}

// ProviderCost 单个提供者的累计用量.
type ProviderCost struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// CostSnapshot 进程生命周期内的成本总览.
type CostSnapshot struct {
	Providers map[string]ProviderCost `json:"providers"`
	TotalCost float64                 `json:"total_cost"`
}

// CostTracker 跨会话共享的运行成本计数器，互斥访问.
type CostTracker struct {
	mu     sync.Mutex
	totals map[string]*ProviderCost
}

// NewCostTracker 创建成本计数器.
func NewCostTracker() *CostTracker {
	return &CostTracker{totals: make(map[string]*ProviderCost)}
}

// Record 记账一次调用，返回本次调用的估算成本（美元）.
func (t *CostTracker) Record(provider string, tokens int) float64 {
	cost := float64(tokens) / 1_000_000 * providerRates[provider]

	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.totals[provider]
	if !ok {
		pc = &ProviderCost{}
		t.totals[provider] = pc
	}
	pc.Requests++
	pc.Tokens += int64(tokens)
	pc.Cost += cost

	return cost
}

// Snapshot 返回当前累计值的副本.
func (t *CostTracker) Snapshot() CostSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := CostSnapshot{Providers: make(map[string]ProviderCost, len(t.totals))}
	for name, pc := range t.totals {
		snap.Providers[name] = *pc
		snap.TotalCost += pc.Cost
	}
	return snap
}

// =============================================================================
// 🔢 Token 估算
// =============================================================================

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens 估算文本的 token 数.
// 上游未返回用量时使用；tiktoken 初始化失败回退到 len/4 粗估.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
