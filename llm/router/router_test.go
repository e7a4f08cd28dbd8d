package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/llm"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 路由器测试
// =============================================================================

// fakeProvider 回放预置响应并记录收到的请求.
type fakeProvider struct {
	name     string
	reply    string
	tokens   int
	err      error
	lastReq  *llm.ChatRequest
	callsNum int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	f.callsNum++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Provider: f.name,
		Model:    f.name,
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply},
		}},
		Usage: llm.ChatUsage{TotalTokens: f.tokens},
	}, nil
}

type routerFixture struct {
	router     *Router
	gemini     *fakeProvider
	openai     *fakeProvider
	claude     *fakeProvider
	classifier *fakeProvider
}

func newRouterFixture(t *testing.T, classifierReply string) *routerFixture {
	t.Helper()
	f := &routerFixture{
		gemini:     &fakeProvider{name: RouteGemini, reply: "réponse gemini", tokens: 10},
		openai:     &fakeProvider{name: RouteOpenAI, reply: "réponse openai", tokens: 20},
		claude:     &fakeProvider{name: RouteClaude, reply: "réponse claude", tokens: 30},
		classifier: &fakeProvider{name: "classifier", reply: classifierReply, tokens: 2},
	}
	f.router = NewRouter(map[string]llm.Provider{
		RouteGemini: f.gemini,
		RouteOpenAI: f.openai,
		RouteClaude: f.claude,
	}, f.classifier, DefaultConfig(), zap.NewNop())
	return f
}

func identity() types.Identity {
	return types.Identity{UserID: "u1", Role: types.RoleUser, Organization: "acme"}
}

func TestRouter_CodeKeywordSelectsClaude(t *testing.T) {
	f := newRouterFixture(t, "simple")

	queries := []string{
		"écris du code pour trier une liste",
		"peux-tu corriger ce script",
		"explique cette fonction",
		"what does this class do",
		"CODE review please",
	}
	for _, q := range queries {
		res, err := f.router.Route(context.Background(), q, identity(), nil, "")
		require.NoError(t, err, q)
		assert.Equal(t, RouteClaude, res.Provider, q)
	}
	assert.Zero(t, f.classifier.callsNum, "keyword rule must bypass classification")
}

func TestRouter_KeywordMatchesSubstrings(t *testing.T) {
	f := newRouterFixture(t, "simple")

	// 派生词也命中: "classique" 含 class，"coder" 含 code
	for _, q := range []string{"un exemple classique", "je veux coder un jeu"} {
		res, err := f.router.Route(context.Background(), q, identity(), nil, "")
		require.NoError(t, err)
		assert.Equal(t, RouteClaude, res.Provider, q)
	}
	assert.Zero(t, f.classifier.callsNum, "keyword rule bypasses the classifier")
}

func TestRouter_LongQuerySelectsClaude(t *testing.T) {
	f := newRouterFixture(t, "simple")

	long := strings.Repeat("mot ", 501)
	res, err := f.router.Route(context.Background(), long, identity(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, RouteClaude, res.Provider)
	assert.Zero(t, f.classifier.callsNum)
}

func TestRouter_ComplexityMapping(t *testing.T) {
	cases := []struct {
		label    string
		provider string
	}{
		{"simple", RouteGemini},
		{"medium", RouteOpenAI},
		{"complex", RouteClaude},
		{"Complex.", RouteClaude}, // 模型输出带标点
	}
	for _, tc := range cases {
		f := newRouterFixture(t, tc.label)
		res, err := f.router.Route(context.Background(), "bonjour comment ça va", identity(), nil, "")
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.provider, res.Provider, tc.label)
	}
}

func TestRouter_ClassifierFailureDefaultsToMedium(t *testing.T) {
	f := newRouterFixture(t, "")
	f.classifier.err = errors.New("classifier down")

	res, err := f.router.Route(context.Background(), "bonjour", identity(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, RouteOpenAI, res.Provider, "failure must not downgrade to simple")
	assert.Equal(t, ComplexityMedium, res.Complexity)
}

func TestRouter_UnrecognizedLabelDefaultsToMedium(t *testing.T) {
	f := newRouterFixture(t, "banana")

	res, err := f.router.Route(context.Background(), "bonjour", identity(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, RouteOpenAI, res.Provider)
}

func TestRouter_ForcedProviderSkipsRules(t *testing.T) {
	f := newRouterFixture(t, "simple")

	// 代码关键字本应走 claude，但 forced 覆盖
	res, err := f.router.Route(context.Background(), "écris du code", identity(), nil, RouteGemini)
	require.NoError(t, err)
	assert.Equal(t, RouteGemini, res.Provider)
	assert.Zero(t, f.classifier.callsNum)
}

func TestRouter_ForcedUnknownProvider(t *testing.T) {
	f := newRouterFixture(t, "simple")

	_, err := f.router.Route(context.Background(), "bonjour", identity(), nil, "gpt-5-ultra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRouter_ProviderFailurePropagates(t *testing.T) {
	f := newRouterFixture(t, "simple")
	upstream := &llm.Error{Code: llm.ErrRateLimited, Message: "rate limited", Provider: RouteGemini}
	f.gemini.err = upstream

	_, err := f.router.Route(context.Background(), "bonjour", identity(), nil, "")
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr), "provider error must propagate unmodified")
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
	assert.Equal(t, 1, f.gemini.callsNum)
	assert.Zero(t, f.openai.callsNum, "no silent fallback to another provider")
	assert.Zero(t, f.claude.callsNum)
}

func TestRouter_PreambleReachesProvider(t *testing.T) {
	f := newRouterFixture(t, "simple")

	turns := []types.Turn{
		{UserText: "bonjour", AssistantText: "salut!", Provider: RouteGemini, Timestamp: time.Now()},
	}
	_, err := f.router.Route(context.Background(), "et maintenant?", identity(), turns, "")
	require.NoError(t, err)

	require.NotNil(t, f.gemini.lastReq)
	require.Len(t, f.gemini.lastReq.Messages, 2)
	system := f.gemini.lastReq.Messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, `role "user"`)
	assert.Contains(t, system.Content, "User: bonjour")
	assert.Contains(t, system.Content, "Assistant: salut!")
	assert.Equal(t, "et maintenant?", f.gemini.lastReq.Messages[1].Content)
}

func TestRouter_CostAccumulates(t *testing.T) {
	f := newRouterFixture(t, "simple")

	for i := 0; i < 3; i++ {
		_, err := f.router.Route(context.Background(), "bonjour", identity(), nil, "")
		require.NoError(t, err)
	}

	snap := f.router.Costs().Snapshot()
	pc := snap.Providers[RouteGemini]
	assert.Equal(t, int64(3), pc.Requests)
	assert.Equal(t, int64(30), pc.Tokens)
	assert.InDelta(t, 30.0/1_000_000*0.10, pc.Cost, 1e-12)
	assert.InDelta(t, pc.Cost, snap.TotalCost, 1e-12)
}

func TestRouter_TokensEstimatedWhenUsageMissing(t *testing.T) {
	f := newRouterFixture(t, "simple")
	f.gemini.tokens = 0

	res, err := f.router.Route(context.Background(), "bonjour tout le monde", identity(), nil, "")
	require.NoError(t, err)
	assert.Greater(t, res.Tokens, 0, "missing usage falls back to local estimate")
}
