package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"beanwise-ai-api/internal/application/admission"
	apperrors "beanwise-ai-api/pkg/errors"
)

type fakeGateway struct {
	result    *admission.Result
	err       error
	clientKey string
	query     string
}

func (f *fakeGateway) Admit(ctx context.Context, clientKey, query string) (*admission.Result, error) {
	f.clientKey = clientKey
	f.query = query
	return f.result, f.err
}

func setupQueryRouter(g *fakeGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/v1/query", NewQueryHandler(g).Query)
	return r
}

func postQuery(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestQuerySuccess(t *testing.T) {
	g := &fakeGateway{result: &admission.Result{
		Answer: []byte("grind coarser"),
		Source: admission.SourceUpstream,
		Cost:   0.013,
		Model:  "gpt-4o-mini",
	}}
	r := setupQueryRouter(g)

	w := postQuery(t, r, `{"query":"why is my pour-over bitter"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if g.query != "why is my pour-over bitter" {
		t.Errorf("gateway got query %q", g.query)
	}

	var body struct {
		Data struct {
			Answer string  `json:"answer"`
			Source string  `json:"source"`
			Cost   float64 `json:"cost"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Answer != "grind coarser" || body.Data.Source != "upstream" {
		t.Errorf("data = %+v", body.Data)
	}
}

func TestQueryMissingBody(t *testing.T) {
	g := &fakeGateway{}
	r := setupQueryRouter(g)

	w := postQuery(t, r, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestQueryRateLimited(t *testing.T) {
	g := &fakeGateway{err: apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded").
		WithDetail("minute window 11/10 resets at 2026-03-10T12:31:00Z; daily window 42/200 resets at 2026-03-11T00:00:00Z")}
	r := setupQueryRouter(g)

	w := postQuery(t, r, `{"query":"q"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var body struct {
		Code      string `json:"code"`
		Detail    string `json:"detail"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(apperrors.CodeRateLimited) {
		t.Errorf("code = %q", body.Code)
	}
	if !body.Retryable {
		t.Error("rate limited response should be retryable")
	}

	// 窗口计数与重置时间必须透传给客户端
	if !strings.Contains(body.Detail, "11/10") || !strings.Contains(body.Detail, "resets at") {
		t.Errorf("detail = %q, want window counts and reset time", body.Detail)
	}
}

func TestQueryBudgetExceeded(t *testing.T) {
	g := &fakeGateway{err: apperrors.ErrBudgetExceeded}
	r := setupQueryRouter(g)

	w := postQuery(t, r, `{"query":"q"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var body struct {
		Code      string `json:"code"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(apperrors.CodeBudgetExceeded) {
		t.Errorf("code = %q", body.Code)
	}
	if body.Retryable {
		t.Error("budget exceeded should not be marked retryable")
	}
}

func TestQueryUpstreamUnavailable(t *testing.T) {
	g := &fakeGateway{err: apperrors.Wrap(nil, apperrors.CodeUpstreamUnavailable, "upstream provider unavailable")}
	r := setupQueryRouter(g)

	w := postQuery(t, r, `{"query":"q"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
