package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeData unmarshals the data field of a success envelope.
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("success = false, error = %q", env.Error)
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (data: %s)", err, env.Data)
	}
	return out
}

func wantBadRequest(t *testing.T, w *httptest.ResponseRecorder, errMsg string) {
	t.Helper()
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body: %s)", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error != errMsg {
		t.Errorf("envelope = %+v, want error %q", env, errMsg)
	}
}

func TestCreateChannelDefaults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/channels",
		`{"name":"openai main","type":"openai","baseUrl":"https://api.openai.com"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	ch := decodeData[gateway.Channel](t, w)
	if ch.ID == "" || ch.CreatedAt == 0 {
		t.Errorf("channel = %+v, want id and createdAt set", ch)
	}
	if ch.TestMethod != gateway.TestChat {
		t.Errorf("testMethod = %q, want chat default", ch.TestMethod)
	}
	if ch.LoadBalanceStrategy != gateway.StrategyRoundRobin {
		t.Errorf("strategy = %q, want round-robin default", ch.LoadBalanceStrategy)
	}
	if !ch.Enabled {
		t.Error("new channels default to enabled")
	}
}

func TestCreateChannelValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cases := []struct {
		body string
		err  string
	}{
		{`{"type":"openai","baseUrl":"https://x.test"}`, "name is required"},
		{`{"name":"a","type":"bedrock","baseUrl":"https://x.test"}`, "invalid channel type"},
		{`{"name":"a","type":"openai","baseUrl":"not a url"}`, "baseUrl must be a valid absolute URL"},
		{`{"name":"a","type":"openai","baseUrl":"ftp://x.test"}`, "baseUrl must be a valid absolute URL"},
	}
	for _, tc := range cases {
		w := env.do(t, jsonRequest(http.MethodPost, "/api/channels", tc.body))
		wantBadRequest(t, w, tc.err)
	}
}

func TestUpdateChannel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Name: "old", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	w := env.do(t, jsonRequest(http.MethodPut, "/api/channels/ch-1", `{"name":"new","enabled":false}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	ch := decodeData[gateway.Channel](t, w)
	if ch.Name != "new" || ch.Enabled {
		t.Errorf("channel = %+v", ch)
	}
	if ch.Type != gateway.ChannelOpenAI {
		t.Error("unspecified fields must keep their values")
	}
	if ch.UpdatedAt == 0 {
		t.Error("update should touch updatedAt")
	}
}

func TestUpdateChannelNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPut, "/api/channels/nope", `{"name":"x"}`))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteChannelCascades(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env,
		&gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true},
		&gateway.APIKey{ID: "key-1", Key: "sk-one"},
		&gateway.APIKey{ID: "key-2", Key: "sk-two"},
	)

	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/channels/ch-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env := decodeEnvelope(t, w); env.Message != "channel deleted" {
		t.Errorf("message = %q", env.Message)
	}

	keys, err := env.store.ListKeys(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("keys left = %d, want cascade delete", len(keys))
	}
}

func TestCreateKeyMasksSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	w := env.do(t, jsonRequest(http.MethodPost, "/api/keys",
		`{"channelId":"ch-1","key":"sk-1234567890abcd"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	key := decodeData[gateway.APIKey](t, w)
	if key.Key != "sk-1****abcd" {
		t.Errorf("masked key = %q", key.Key)
	}
	if key.Status != gateway.KeyUnknown || key.Priority != gateway.DefaultPriority || key.Weight != gateway.DefaultWeight {
		t.Errorf("defaults = %+v", key)
	}

	// The store keeps the full secret.
	stored, _ := env.store.GetKey(context.Background(), key.ID)
	if stored.Key != "sk-1234567890abcd" {
		t.Errorf("stored key = %q", stored.Key)
	}
}

func TestCreateKeyValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	cases := []struct {
		body string
		err  string
	}{
		{`{"key":"sk-x"}`, "channelId is required"},
		{`{"channelId":"ch-1"}`, "key is required"},
		{`{"channelId":"missing","key":"sk-x"}`, "channel does not exist"},
		{`{"channelId":"ch-1","key":"sk-x","priority":0}`, "priority must be between 1 and 100"},
		{`{"channelId":"ch-1","key":"sk-x","weight":101}`, "weight must be between 1 and 100"},
	}
	for _, tc := range cases {
		w := env.do(t, jsonRequest(http.MethodPost, "/api/keys", tc.body))
		wantBadRequest(t, w, tc.err)
	}
}

func TestImportKeys(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	w := env.do(t, jsonRequest(http.MethodPost, "/api/keys/import",
		`{"channelId":"ch-1","keys":"sk-aaaaaaaaaa\n  sk-bbbbbbbbbb  \n\nsk-cccccccccc\n"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeData[importKeysResponse](t, w)
	if resp.Imported != 3 || len(resp.Keys) != 3 {
		t.Fatalf("imported = %d, keys = %d, want 3", resp.Imported, len(resp.Keys))
	}
	for _, k := range resp.Keys {
		if !strings.Contains(k.Key, "****") {
			t.Errorf("imported key %q not masked", k.Key)
		}
	}

	keys, _ := env.store.ListKeys(context.Background(), "ch-1")
	if len(keys) != 3 {
		t.Errorf("stored keys = %d", len(keys))
	}
	// Whitespace is trimmed before storage.
	var secrets []string
	for _, k := range keys {
		secrets = append(secrets, k.Key)
	}
	if !slices.Contains(secrets, "sk-bbbbbbbbbb") {
		t.Errorf("secrets = %v, want trimmed sk-bbbbbbbbbb", secrets)
	}
}

func TestImportKeysCustomDelimiter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	w := env.do(t, jsonRequest(http.MethodPost, "/api/keys/import",
		`{"channelId":"ch-1","keys":"sk-aaaaaaaaaa,sk-bbbbbbbbbb","delimiter":","}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decodeData[importKeysResponse](t, w); resp.Imported != 2 {
		t.Errorf("imported = %d, want 2", resp.Imported)
	}
}

func TestImportKeysEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env, &gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true})

	w := env.do(t, jsonRequest(http.MethodPost, "/api/keys/import",
		`{"channelId":"ch-1","keys":"  \n \n"}`))
	wantBadRequest(t, w, "no keys to import")
}

func TestUpdateKeyStatusRestricted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env,
		&gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true},
		&gateway.APIKey{ID: "key-1", Key: "sk-1234567890"},
	)

	w := env.do(t, jsonRequest(http.MethodPut, "/api/keys/key-1", `{"status":"active"}`))
	wantBadRequest(t, w, "status can only be set to disabled or unknown")

	w = env.do(t, jsonRequest(http.MethodPut, "/api/keys/key-1", `{"status":"disabled"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	key := decodeData[gateway.APIKey](t, w)
	if key.Status != gateway.KeyDisabled {
		t.Errorf("status = %q", key.Status)
	}
}

func TestCheckEndpointsWithoutChecker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedChannel(t, env,
		&gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true},
		&gateway.APIKey{ID: "key-1", Key: "sk-1234567890"},
	)

	for _, path := range []string{"/api/keys/key-1/check", "/api/keys/check-all"} {
		w := env.do(t, httptest.NewRequest(http.MethodPost, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestCreateTokenReturnsRawValueOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/tokens", `{"name":"ci","rateLimit":10}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decodeData[gateway.Token](t, w)
	if !strings.HasPrefix(created.Token, gateway.TokenPrefix) {
		t.Errorf("token = %q, want raw value with %q prefix", created.Token, gateway.TokenPrefix)
	}
	if strings.Contains(created.Token, "****") {
		t.Error("creation response must carry the unmasked token")
	}
	if !created.Enabled || created.RateLimit != 10 {
		t.Errorf("token = %+v", created)
	}
	if created.AllowedChannels == nil {
		t.Error("allowedChannels defaults to an empty list")
	}

	// Every later read is masked.
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))
	listed := decodeData[[]gateway.Token](t, w)
	if len(listed) != 1 {
		t.Fatalf("tokens = %d", len(listed))
	}
	if listed[0].Token == created.Token || !strings.Contains(listed[0].Token, "****") {
		t.Errorf("listed token = %q, want masked", listed[0].Token)
	}
}

func TestUpdateTokenInvalidatesCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := &gateway.Token{ID: "tok-x", Name: "old", Token: gateway.NewTokenValue(), Enabled: true}
	if err := env.store.CreateToken(context.Background(), tok); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, jsonRequest(http.MethodPut, "/api/tokens/tok-x", `{"enabled":false}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	env.auth.mu.Lock()
	defer env.auth.mu.Unlock()
	if !slices.Contains(env.auth.invalidated, "tok-x") {
		t.Errorf("invalidated = %v, want tok-x", env.auth.invalidated)
	}
}

func TestDeleteTokenInvalidatesCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tok := &gateway.Token{ID: "tok-x", Name: "old", Token: gateway.NewTokenValue(), Enabled: true}
	if err := env.store.CreateToken(context.Background(), tok); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/tokens/tok-x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	env.auth.mu.Lock()
	defer env.auth.mu.Unlock()
	if !slices.Contains(env.auth.invalidated, "tok-x") {
		t.Errorf("invalidated = %v, want tok-x", env.auth.invalidated)
	}
}

func TestCreateProxyMasksPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/proxies",
		`{"name":"dc1","type":"socks5","host":"10.0.0.1","port":1080,"username":"u","password":"hunter2"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	p := decodeData[gateway.Proxy](t, w)
	if p.Password != "****" {
		t.Errorf("password = %q, want masked", p.Password)
	}
	if !p.Enabled {
		t.Error("new proxies default to enabled")
	}

	stored, _ := env.store.GetProxy(context.Background(), p.ID)
	if stored.Password != "hunter2" {
		t.Errorf("stored password = %q", stored.Password)
	}
}

func TestCreateProxyValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cases := []struct {
		body string
		err  string
	}{
		{`{"type":"socks5","host":"h","port":1080}`, "name is required"},
		{`{"name":"p","type":"wireguard","host":"h","port":1080}`, "invalid proxy type"},
		{`{"name":"p","type":"socks5","port":1080}`, "host is required"},
		{`{"name":"p","type":"socks5","host":"h","port":0}`, "port must be between 1 and 65535"},
		{`{"name":"p","type":"socks5","host":"h","port":70000}`, "port must be between 1 and 65535"},
	}
	for _, tc := range cases {
		w := env.do(t, jsonRequest(http.MethodPost, "/api/proxies", tc.body))
		wantBadRequest(t, w, tc.err)
	}
}

func TestTestProxyNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/proxies/nope/test", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	seedChannel(t, env,
		&gateway.Channel{ID: "ch-1", Type: gateway.ChannelOpenAI, BaseURL: "https://a.test", Enabled: true},
		&gateway.APIKey{ID: "key-1", Key: "sk-one"},
		&gateway.APIKey{ID: "key-2", Key: "sk-two", Status: gateway.KeyInvalid},
	)
	seedChannel(t, env, &gateway.Channel{ID: "ch-2", Type: gateway.ChannelGemini, BaseURL: "https://b.test", Enabled: false})

	now := gateway.Now()
	env.store.InsertLogs(ctx, []gateway.RequestLog{
		{ID: "l1", Timestamp: now, ChannelID: "ch-1", KeyID: "key-1", Status: 200, Latency: 100},
		{ID: "l2", Timestamp: now, ChannelID: "ch-1", KeyID: "key-1", Status: 500, Latency: 300},
	})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	stats := decodeData[dashboardStats](t, w)
	if stats.TotalChannels != 2 || stats.EnabledChannels != 1 {
		t.Errorf("channels = %+v", stats)
	}
	if stats.TotalKeys != 2 || stats.ActiveKeys != 1 {
		t.Errorf("keys = %+v", stats)
	}
	if stats.RequestsLast24h != 2 || stats.SuccessLast24h != 1 || stats.FailedLast24h != 1 {
		t.Errorf("traffic = %+v", stats)
	}
	if stats.AvgLatencyMs != 200 {
		t.Errorf("avgLatencyMs = %v", stats.AvgLatencyMs)
	}
}

func TestQueryLogsDefaults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	page := decodeData[logPage](t, w)
	if page.Limit != 50 || page.Offset != 0 {
		t.Errorf("page = %+v, want default limit 50", page)
	}
	if page.Logs == nil {
		t.Error("logs should be an empty list, not null")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	got := decodeData[gateway.Settings](t, w)
	if got != gateway.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", got)
	}

	w = env.do(t, jsonRequest(http.MethodPut, "/api/settings", `{"checkInterval":60000}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got = decodeData[gateway.Settings](t, w)
	if got.CheckInterval != 60000 {
		t.Errorf("checkInterval = %d", got.CheckInterval)
	}
	if got.MaxLogsRetention != gateway.DefaultSettings().MaxLogsRetention {
		t.Error("unspecified settings keep their values")
	}

	w = env.do(t, jsonRequest(http.MethodPut, "/api/settings", `{"checkInterval":-5}`))
	wantBadRequest(t, w, "checkInterval must be positive")
}
