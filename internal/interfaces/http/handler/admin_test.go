package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"beanwise-ai-api/internal/application/budget"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	"beanwise-ai-api/internal/infrastructure/semcache"
)

type fakeLedger struct {
	stats  *budget.Stats
	resets int
}

func (f *fakeLedger) GetStats() *budget.Stats { return f.stats }
func (f *fakeLedger) ResetDaily()             { f.resets++ }

type fakeLimiter struct {
	status  *redis.Status
	active  *redis.ActiveClients
	cleared int
	err     error
}

func (f *fakeLimiter) Status(ctx context.Context, clientKey string) (*redis.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.status
	s.ClientKey = clientKey
	return &s, nil
}

func (f *fakeLimiter) ActiveClients(ctx context.Context) (*redis.ActiveClients, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.active, nil
}

func (f *fakeLimiter) ResetAll(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.cleared, nil
}

type fakeCacheAdmin struct {
	stats  *semcache.Stats
	clears int
	err    error
}

func (f *fakeCacheAdmin) GetStats(ctx context.Context) (*semcache.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func (f *fakeCacheAdmin) Clear(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.clears++
	return nil
}

func setupAdminRouter(ledger *fakeLedger, limiter *fakeLimiter, cache *fakeCacheAdmin) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewAdminHandler(ledger, limiter, cache, 10, 200)

	r := gin.New()
	r.GET("/cost/today", h.CostToday)
	r.POST("/cost/reset", h.CostReset)
	r.GET("/ratelimit/status", h.RateLimitStatus)
	r.GET("/ratelimit/ip/:client", h.RateLimitClient)
	r.POST("/ratelimit/reset", h.RateLimitReset)
	r.GET("/cache/semantic/stats", h.CacheStats)
	r.POST("/cache/semantic/clear", h.CacheClear)
	return r
}

func defaultFakes() (*fakeLedger, *fakeLimiter, *fakeCacheAdmin) {
	ledger := &fakeLedger{stats: &budget.Stats{
		CurrentCost:      1.2,
		DailyLimit:       5.0,
		RemainingBudget:  3.8,
		QueryCount:       60,
		RemainingQueries: -1,
		Date:             "2026-03-10",
	}}
	limiter := &fakeLimiter{
		status: &redis.Status{
			Minute: redis.WindowStatus{Count: 3, Limit: 10},
			Day:    redis.WindowStatus{Count: 42, Limit: 200},
		},
		active:  &redis.ActiveClients{MinuteClients: 2, DayClients: 7},
		cleared: 9,
	}
	cache := &fakeCacheAdmin{stats: &semcache.Stats{
		CachedQueries: 12,
		CacheHits:     30,
		CacheMisses:   10,
		HitRate:       0.75,
	}}
	return ledger, limiter, cache
}

func doRequest(t *testing.T, r *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body %q: %v", w.Body.String(), err)
	}
	return w, body
}

func TestCostToday(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodGet, "/cost/today")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var data budget.Stats
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.CurrentCost != 1.2 || data.RemainingBudget != 3.8 {
		t.Errorf("stats = %+v", data)
	}
	if data.RemainingQueries != -1 {
		t.Errorf("remaining queries = %d, want -1", data.RemainingQueries)
	}
}

func TestCostReset(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodPost, "/cost/reset")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ledger.resets != 1 {
		t.Errorf("resets = %d, want 1", ledger.resets)
	}

	var data struct {
		Target  string `json:"target"`
		Status  string `json:"status"`
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Target != "cost" || data.Status != "ok" {
		t.Errorf("result = %+v", data)
	}
	// 清账是破坏性操作，响应里必须带后果提示
	if data.Warning == "" {
		t.Error("cost reset response missing warning")
	}
}

func TestRateLimitStatus(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodGet, "/ratelimit/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var data struct {
		PerMinuteLimit int `json:"per_minute_limit"`
		PerDayLimit    int `json:"per_day_limit"`
		MinuteClients  int `json:"minute_clients"`
		DayClients     int `json:"day_clients"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.PerMinuteLimit != 10 || data.PerDayLimit != 200 {
		t.Errorf("limits = %+v", data)
	}
	if data.MinuteClients != 2 || data.DayClients != 7 {
		t.Errorf("active clients = %+v", data)
	}
}

func TestRateLimitClient(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodGet, "/ratelimit/ip/203.0.113.7")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var data redis.Status
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ClientKey != "203.0.113.7" {
		t.Errorf("client key = %q", data.ClientKey)
	}
	if data.Minute.Count != 3 || data.Day.Count != 42 {
		t.Errorf("counts = %+v", data)
	}
}

func TestRateLimitReset(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodPost, "/ratelimit/reset")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var data struct {
		Target  string `json:"target"`
		Cleared int    `json:"cleared"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Target != "ratelimit" || data.Cleared != 9 {
		t.Errorf("result = %+v", data)
	}
}

func TestRateLimitStoreDown(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	limiter.err = errors.New("redis down")
	r := setupAdminRouter(ledger, limiter, cache)

	w, _ := doRequest(t, r, http.MethodGet, "/ratelimit/status")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCacheStats(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodGet, "/cache/semantic/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var data semcache.Stats
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.CachedQueries != 12 || data.HitRate != 0.75 {
		t.Errorf("stats = %+v", data)
	}
}

func TestCacheClear(t *testing.T) {
	ledger, limiter, cache := defaultFakes()
	r := setupAdminRouter(ledger, limiter, cache)

	w, body := doRequest(t, r, http.MethodPost, "/cache/semantic/clear")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if cache.clears != 1 {
		t.Errorf("clears = %d, want 1", cache.clears)
	}

	var data struct {
		Target  string `json:"target"`
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Target != "cache" {
		t.Errorf("target = %q, want cache", data.Target)
	}
	// 清缓存后查询会回源变贵，响应里必须提示
	if !strings.Contains(data.Warning, "upstream cost") {
		t.Errorf("warning = %q, want repopulation cost note", data.Warning)
	}
}
