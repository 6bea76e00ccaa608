package provider

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

func TestForType(t *testing.T) {
	t.Parallel()
	for _, typ := range gateway.ChannelTypes {
		a := ForType(typ)
		if a == nil {
			t.Errorf("ForType(%q) = nil", typ)
			continue
		}
		if a.Type() != typ {
			t.Errorf("ForType(%q).Type() = %q", typ, a.Type())
		}
	}
	if ForType("bogus") != nil {
		t.Error("ForType(bogus) should be nil")
	}
}

func TestOpenAIAuthAndEndpoints(t *testing.T) {
	t.Parallel()
	a := ForType(gateway.ChannelOpenAI)

	req, _ := http.NewRequest(http.MethodPost, "https://example.com", nil)
	a.ApplyAuth(req, "sk-test")
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}

	if got := a.ChatURL("https://api.openai.com/", "gpt-4o"); got != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("ChatURL = %q", got)
	}
	if got := a.ModelsURL("https://api.openai.com"); got != "https://api.openai.com/v1/models" {
		t.Errorf("ModelsURL = %q", got)
	}
	if got := a.BalanceURL("https://api.openai.com"); got != "https://api.openai.com/dashboard/billing/credit_grants" {
		t.Errorf("BalanceURL = %q", got)
	}
	if got := a.EndpointURL("https://api.openai.com", "/v1/embeddings", "x"); got != "https://api.openai.com/v1/embeddings" {
		t.Errorf("EndpointURL = %q", got)
	}
}

func TestAnthropicAuthAndEndpoints(t *testing.T) {
	t.Parallel()
	a := ForType(gateway.ChannelAnthropic)

	req, _ := http.NewRequest(http.MethodPost, "https://example.com", nil)
	a.ApplyAuth(req, "sk-ant")
	if got := req.Header.Get("x-api-key"); got != "sk-ant" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("anthropic-version = %q", got)
	}

	if got := a.EndpointURL("https://api.anthropic.com", "/v1/chat/completions", "claude-3-haiku"); got != "https://api.anthropic.com/v1/messages" {
		t.Errorf("EndpointURL = %q", got)
	}
	if got := a.BalanceURL("https://api.anthropic.com"); got != "" {
		t.Errorf("BalanceURL = %q, want empty", got)
	}
}

func TestGeminiAuthAndEndpoints(t *testing.T) {
	t.Parallel()
	a := ForType(gateway.ChannelGemini)

	req, _ := http.NewRequest(http.MethodPost, "https://gen.example.com/v1beta/models/gemini-pro:generateContent", nil)
	a.ApplyAuth(req, "AIza-test")
	if got := req.URL.Query().Get("key"); got != "AIza-test" {
		t.Errorf("key query param = %q", got)
	}

	got := a.EndpointURL("https://gen.example.com/", "/v1/chat/completions", "gemini-pro")
	want := "https://gen.example.com/v1beta/models/gemini-pro:generateContent"
	if got != want {
		t.Errorf("EndpointURL = %q, want %q", got, want)
	}
	if got := a.ModelsURL("https://gen.example.com"); got != "https://gen.example.com/v1beta/models" {
		t.Errorf("ModelsURL = %q", got)
	}
}

func TestProbeBodies(t *testing.T) {
	t.Parallel()

	body := ForType(gateway.ChannelOpenAI).ProbeBody("gpt-3.5-turbo")
	if got := gjson.GetBytes(body, "model").String(); got != "gpt-3.5-turbo" {
		t.Errorf("openai probe model = %q", got)
	}
	if got := gjson.GetBytes(body, "max_tokens").Int(); got != 1 {
		t.Errorf("openai probe max_tokens = %d", got)
	}
	if got := gjson.GetBytes(body, "messages.0.content").String(); got != "hi" {
		t.Errorf("openai probe content = %q", got)
	}

	body = ForType(gateway.ChannelGemini).ProbeBody("gemini-pro")
	if got := gjson.GetBytes(body, "contents.0.parts.0.text").String(); got != "hi" {
		t.Errorf("gemini probe text = %q", got)
	}
	if got := gjson.GetBytes(body, "generationConfig.maxOutputTokens").Int(); got != 1 {
		t.Errorf("gemini probe maxOutputTokens = %d", got)
	}
}

func TestDefaultProbeModels(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		gateway.ChannelOpenAI:           "gpt-3.5-turbo",
		gateway.ChannelOpenAICompatible: "gpt-3.5-turbo",
		gateway.ChannelAnthropic:        "claude-3-haiku-20240307",
		gateway.ChannelGemini:           "gemini-pro",
	}
	for typ, want := range cases {
		if got := ForType(typ).DefaultProbeModel(); got != want {
			t.Errorf("%s default probe model = %q, want %q", typ, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantStatus gateway.KeyStatus
		wantErr    bool
	}{
		{200, gateway.KeyActive, false},
		{201, gateway.KeyActive, false},
		{401, gateway.KeyInvalid, true},
		{403, gateway.KeyInvalid, true},
		{429, gateway.KeyQuotaExceeded, true},
		{500, gateway.KeyInvalid, true},
		{404, gateway.KeyInvalid, true},
	}
	for _, tc := range cases {
		status, errMsg := Classify(tc.status, []byte("upstream said no"))
		if status != tc.wantStatus {
			t.Errorf("Classify(%d) status = %q, want %q", tc.status, status, tc.wantStatus)
		}
		if (errMsg != "") != tc.wantErr {
			t.Errorf("Classify(%d) error = %q, wantErr = %v", tc.status, errMsg, tc.wantErr)
		}
	}
}

func TestClassifyTruncatesBody(t *testing.T) {
	t.Parallel()
	body := []byte(strings.Repeat("x", 500))
	_, errMsg := Classify(500, body)
	want := "HTTP 500: " + strings.Repeat("x", 200)
	if errMsg != want {
		t.Errorf("error length = %d, want %d", len(errMsg), len(want))
	}
}

func TestTrimBase(t *testing.T) {
	t.Parallel()
	if got := trimBase("https://x.example///"); got != "https://x.example" {
		t.Errorf("trimBase = %q", got)
	}
	if got := trimBase("https://x.example"); got != "https://x.example" {
		t.Errorf("trimBase = %q", got)
	}
}
