package admission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"beanwise-ai-api/internal/application/budget"
	"beanwise-ai-api/internal/infrastructure/llm"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	apperrors "beanwise-ai-api/pkg/errors"
)

type fakeLimiter struct {
	allowed bool
	status  *redis.Status
	err     error
	calls   int
}

func (f *fakeLimiter) CheckAndIncrement(ctx context.Context, clientKey string) (bool, *redis.Status, error) {
	f.calls++
	if f.err != nil {
		return false, nil, f.err
	}
	status := f.status
	if status == nil {
		status = &redis.Status{ClientKey: clientKey}
	}
	return f.allowed, status, nil
}

type fakeCache struct {
	payload     []byte
	hit         bool
	lookupErr   error
	storeErr    error
	lookupCalls int
	storeCalls  int
	stored      []byte
}

func (f *fakeCache) Lookup(ctx context.Context, embedding []float32) ([]byte, bool, error) {
	f.lookupCalls++
	return f.payload, f.hit, f.lookupErr
}

func (f *fakeCache) Store(ctx context.Context, id, query string, embedding []float32, payload []byte) error {
	f.storeCalls++
	f.stored = payload
	return f.storeErr
}

type fakeLedger struct {
	allow        bool
	reserveCalls int
	commits      []float64
}

func (f *fakeLedger) Reserve(estimatedCost float64) (bool, *budget.Stats) {
	f.reserveCalls++
	return f.allow, &budget.Stats{}
}

func (f *fakeLedger) Commit(actualCost float64) {
	f.commits = append(f.commits, actualCost)
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vec}, nil
}

type fakeUpstream struct {
	completion *llm.Completion
	err        error
	calls      int
}

func (f *fakeUpstream) Complete(ctx context.Context, query string) (*llm.Completion, error) {
	f.calls++
	return f.completion, f.err
}

type deps struct {
	limiter  *fakeLimiter
	cache    *fakeCache
	ledger   *fakeLedger
	embedder *fakeEmbedder
	upstream *fakeUpstream
}

func newTestGateway(d *deps) *Gateway {
	return NewGateway(d.limiter, d.cache, d.ledger, d.embedder, d.upstream,
		budget.NewUsageRecorder(nil),
		Options{
			EstimatedCostPerQuery:  0.02,
			UpstreamTimeout:        time.Second,
			MaxUpstreamConcurrency: 2,
		})
}

func happyDeps() *deps {
	return &deps{
		limiter:  &fakeLimiter{allowed: true},
		cache:    &fakeCache{},
		ledger:   &fakeLedger{allow: true},
		embedder: &fakeEmbedder{vec: []float32{1, 0, 0}},
		upstream: &fakeUpstream{completion: &llm.Completion{
			Answer:   "grind coarser",
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Cost:     0.013,
		}},
	}
}

func TestAdmitServedFromUpstream(t *testing.T) {
	d := happyDeps()
	g := newTestGateway(d)

	result, err := g.Admit(context.Background(), "10.0.0.1", "why is my pour-over bitter")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("source = %s, want upstream", result.Source)
	}
	if string(result.Answer) != "grind coarser" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Cost != 0.013 {
		t.Errorf("cost = %v, want 0.013", result.Cost)
	}

	if len(d.ledger.commits) != 1 || d.ledger.commits[0] != 0.013 {
		t.Errorf("commits = %v, want [0.013]", d.ledger.commits)
	}
	if d.cache.storeCalls != 1 {
		t.Errorf("cache store calls = %d, want 1", d.cache.storeCalls)
	}
	if string(d.cache.stored) != "grind coarser" {
		t.Errorf("cached payload = %q", d.cache.stored)
	}
}

func TestAdmitRateLimited(t *testing.T) {
	d := happyDeps()
	d.limiter.allowed = false
	resetAt := time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC)
	d.limiter.status = &redis.Status{
		ClientKey: "10.0.0.1",
		Minute:    redis.WindowStatus{Count: 11, Limit: 10, ResetAt: resetAt},
		Day:       redis.WindowStatus{Count: 42, Limit: 200, ResetAt: resetAt.Add(11*time.Hour + 29*time.Minute)},
	}
	g := newTestGateway(d)

	_, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err == nil {
		t.Fatal("expected rate limited error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeRateLimited {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.CodeRateLimited)
	}

	// 拒绝必须带上窗口状态：计数、上限与重置时间
	if !strings.Contains(appErr.Detail, "minute window 11/10") {
		t.Errorf("detail = %q, want minute counts and limit", appErr.Detail)
	}
	if !strings.Contains(appErr.Detail, "daily window 42/200") {
		t.Errorf("detail = %q, want daily counts and limit", appErr.Detail)
	}
	if !strings.Contains(appErr.Detail, "2026-03-10T12:31:00Z") {
		t.Errorf("detail = %q, want window reset time", appErr.Detail)
	}

	// 被限流的请求不触碰缓存、预算和上游
	if d.cache.lookupCalls != 0 {
		t.Error("cache consulted for rate limited request")
	}
	if d.ledger.reserveCalls != 0 {
		t.Error("budget reserved for rate limited request")
	}
	if d.upstream.calls != 0 {
		t.Error("upstream called for rate limited request")
	}
}

func TestAdmitRateLimitStoreFailureRejects(t *testing.T) {
	d := happyDeps()
	d.limiter.err = errors.New("redis down")
	g := newTestGateway(d)

	_, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err == nil {
		t.Fatal("expected rejection when rate limit store is down")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeStoreUnavailable {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.CodeStoreUnavailable)
	}
	if d.upstream.calls != 0 {
		t.Error("upstream called despite fail-closed rejection")
	}
}

func TestAdmitCacheHitSkipsBudgetAndUpstream(t *testing.T) {
	d := happyDeps()
	d.cache.hit = true
	d.cache.payload = []byte("cached answer")
	g := newTestGateway(d)

	result, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Source != SourceCache {
		t.Errorf("source = %s, want cache", result.Source)
	}
	if string(result.Answer) != "cached answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Cost != 0 {
		t.Errorf("cost = %v, want 0 for cache hit", result.Cost)
	}

	if d.ledger.reserveCalls != 0 {
		t.Error("budget reserved for cache hit")
	}
	if d.upstream.calls != 0 {
		t.Error("upstream called for cache hit")
	}
}

func TestAdmitBudgetExceeded(t *testing.T) {
	d := happyDeps()
	d.ledger.allow = false
	g := newTestGateway(d)

	_, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if !errors.Is(err, apperrors.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if d.upstream.calls != 0 {
		t.Error("upstream called despite exhausted budget")
	}
	if len(d.ledger.commits) != 0 {
		t.Error("cost committed despite rejection")
	}
}

func TestAdmitUpstreamFailureNoCommitNoCache(t *testing.T) {
	d := happyDeps()
	d.upstream.completion = nil
	d.upstream.err = errors.New("provider 502")
	g := newTestGateway(d)

	_, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err == nil {
		t.Fatal("expected upstream error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeUpstreamUnavailable {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.CodeUpstreamUnavailable)
	}

	// 失败的调用不入账也不污染缓存
	if len(d.ledger.commits) != 0 {
		t.Errorf("commits = %v, want none", d.ledger.commits)
	}
	if d.cache.storeCalls != 0 {
		t.Error("failed response stored in cache")
	}
}

func TestAdmitCacheFailureDegradesToUpstream(t *testing.T) {
	d := happyDeps()
	d.cache.lookupErr = errors.New("cache store down")
	g := newTestGateway(d)

	result, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err != nil {
		t.Fatalf("admit should degrade, got: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("source = %s, want upstream", result.Source)
	}
	if d.upstream.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", d.upstream.calls)
	}
}

func TestAdmitEmbeddingFailureBypassesCache(t *testing.T) {
	d := happyDeps()
	d.embedder.err = errors.New("embedding service down")
	g := newTestGateway(d)

	result, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err != nil {
		t.Fatalf("admit should degrade, got: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("source = %s, want upstream", result.Source)
	}
	if d.cache.lookupCalls != 0 {
		t.Error("cache consulted without an embedding")
	}
	// 没有向量就没法写缓存
	if d.cache.storeCalls != 0 {
		t.Error("cache store called without an embedding")
	}
	// 上游结果照常入账
	if len(d.ledger.commits) != 1 {
		t.Errorf("commits = %v, want one", d.ledger.commits)
	}
}

func TestAdmitCacheStoreFailureStillServes(t *testing.T) {
	d := happyDeps()
	d.cache.storeErr = errors.New("insert failed")
	g := newTestGateway(d)

	result, err := g.Admit(context.Background(), "10.0.0.1", "q")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if string(result.Answer) != "grind coarser" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(d.ledger.commits) != 1 {
		t.Error("successful upstream call must be committed even if cache write fails")
	}
}
