package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/auth"
	"github.com/keyhub-gw/keyhub/internal/balancer"
	"github.com/keyhub-gw/keyhub/internal/proxydial"
	"github.com/keyhub-gw/keyhub/internal/ratelimit"
	"github.com/keyhub-gw/keyhub/internal/testutil"
)

// fakeAuth authenticates every request as the configured token.
type fakeAuth struct {
	token *gateway.Token

	mu          sync.Mutex
	invalidated []string
}

func (f *fakeAuth) Authenticate(context.Context, *http.Request) (*gateway.Token, error) {
	if f.token == nil {
		return nil, auth.ErrInvalidToken
	}
	return f.token, nil
}

func (f *fakeAuth) Invalidate(tokenID string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, tokenID)
	f.mu.Unlock()
}

// captureRecorder collects request logs synchronously.
type captureRecorder struct {
	mu   sync.Mutex
	logs []gateway.RequestLog
}

func (c *captureRecorder) Record(l gateway.RequestLog) {
	c.mu.Lock()
	c.logs = append(c.logs, l)
	c.mu.Unlock()
}

func (c *captureRecorder) all() []gateway.RequestLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.RequestLog(nil), c.logs...)
}

type testEnv struct {
	store    *testutil.FakeStore
	auth     *fakeAuth
	recorder *captureRecorder
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewFakeStore()
	fa := &fakeAuth{token: &gateway.Token{ID: "tok-1", Name: "test", Enabled: true}}
	rec := &captureRecorder{}
	h := New(Deps{
		Store:       store,
		Auth:        fa,
		RateLimiter: ratelimit.NewRegistry(),
		Balancer:    balancer.New(),
		Dialer:      proxydial.NewDialer(),
		Recorder:    rec,
	})
	return &testEnv{store: store, auth: fa, recorder: rec, handler: h}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// decodeEnvelope unmarshals a management response envelope.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, w.Body.String())
	}
	return env
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Timestamp == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header should be set")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "client-id-1")
	w := env.do(t, req)
	if got := w.Header().Get("X-Request-Id"); got != "client-id-1" {
		t.Errorf("X-Request-Id = %q, want client-id-1", got)
	}
}

func TestAuthRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.auth.token = nil

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	var body authErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Invalid token" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRateLimitRejects(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.auth.token.RateLimit = 2

	for i := range 2 {
		w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
	}
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	var body apiError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != "rate_limit_error" || body.Error.Message != "Rate limit exceeded" {
		t.Errorf("body = %+v", body)
	}
}

func TestTypesForModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		model string
		want  string
	}{
		{"gpt-4o", gateway.ChannelOpenAI},
		{"gpt-4o-mini-2024", gateway.ChannelOpenAI},
		{"claude-3-haiku-20240307", gateway.ChannelAnthropic},
		{"claude-3-5-sonnet-latest", gateway.ChannelAnthropic},
		{"gemini-1.5-flash-8b", gateway.ChannelGemini},
		{"o1-mini", gateway.ChannelOpenAI},
		{"totally-unknown", gateway.ChannelOpenAI},
	}
	for _, tc := range cases {
		types := typesForModel(tc.model)
		if types[0] != tc.want {
			t.Errorf("typesForModel(%q) = %v, want head %q", tc.model, types, tc.want)
		}
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.CreateChannel(ctx, &gateway.Channel{
		ID: "ch-a", Type: gateway.ChannelAnthropic, Enabled: true,
	})
	env.store.CreateChannel(ctx, &gateway.Channel{
		ID: "ch-off", Type: gateway.ChannelOpenAI, Enabled: false,
	})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body modelList
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "list" {
		t.Errorf("object = %q", body.Object)
	}
	for _, m := range body.Data {
		if m.OwnedBy != gateway.ChannelAnthropic {
			t.Errorf("model %s owned_by %q, want anthropic only (openai channel disabled)", m.ID, m.OwnedBy)
		}
	}
	if len(body.Data) != 5 {
		t.Errorf("models = %d, want the 5 claude entries", len(body.Data))
	}
}

func TestListModelsHonorsAllowedChannels(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.CreateChannel(ctx, &gateway.Channel{ID: "ch-a", Type: gateway.ChannelOpenAI, Enabled: true})
	env.store.CreateChannel(ctx, &gateway.Channel{ID: "ch-b", Type: gateway.ChannelGemini, Enabled: true})
	env.auth.token.AllowedChannels = []string{"ch-b"}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	var body modelList
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, m := range body.Data {
		if m.OwnedBy != gateway.ChannelGemini {
			t.Errorf("model %s owned_by %q, want gemini only", m.ID, m.OwnedBy)
		}
	}
	if len(body.Data) != 3 {
		t.Errorf("models = %d, want the 3 gemini entries", len(body.Data))
	}
}
