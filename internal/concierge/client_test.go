package concierge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/config"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "shopper-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type chatServer struct {
	*httptest.Server
	hits     atomic.Int32
	lastAuth string
	lastBody ChatRequest
}

func newChatServer(t *testing.T, status int, body string) *chatServer {
	t.Helper()
	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		cs.lastAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &cs.lastBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(config.ConciergeConfig{BaseURL: baseURL + "/", Provider: "gemini", UseRAG: true, Timeout: 5})
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func userRequest(content string) ChatRequest {
	return ChatRequest{
		Messages: []Message{{Role: "user", Content: content}},
		Provider: ProviderGemini,
		UseRAG:   true,
	}
}

func Test_ParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{
		"":           ProviderGemini,
		"gemini":     ProviderGemini,
		"OpenAI":     ProviderOpenAI,
		" grok ":     ProviderGrok,
		"openrouter": ProviderOpenRouter,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseProvider("claude")
	assert.ErrorContains(t, err, "unknown provider")
}

func Test_NewClient_Validation(t *testing.T) {
	_, err := NewClient(config.ConciergeConfig{})
	assert.ErrorContains(t, err, "base URL")

	_, err = NewClient(config.ConciergeConfig{BaseURL: "http://x", Provider: "nope"})
	assert.ErrorContains(t, err, "unknown provider")

	c, err := NewClient(config.ConciergeConfig{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/chat", c.Endpoint())
}

func Test_Chat_HappyPath(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"response":"Our oil heaters start at PKR 9,999.","provider":"openai"}`)
	c := newTestClient(t, srv.URL)
	token := signedToken(t, fixedNow.Add(time.Hour))

	out, err := c.Chat(context.Background(), token, userRequest("cheapest heater?")).Get()
	require.NoError(t, err)

	assert.Equal(t, "Our oil heaters start at PKR 9,999.", out.Response)
	assert.Equal(t, "openai", out.Provider)
	assert.Equal(t, "Bearer "+token, srv.lastAuth)
	assert.Equal(t, ProviderGemini, srv.lastBody.Provider)
	assert.True(t, srv.lastBody.UseRAG)
	require.Len(t, srv.lastBody.Messages, 1)
	assert.Equal(t, "cheapest heater?", srv.lastBody.Messages[0].Content)
}

func Test_Reply_Cases(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"401 asks to sign in", http.StatusUnauthorized, `{"detail":"Token expired"}`, MsgSignIn},
		{"429 ignores body", http.StatusTooManyRequests, `{"detail":"slow down buddy"}`, MsgRateLimited},
		{"string detail surfaced", http.StatusBadRequest, `{"detail":"Message too long"}`, "Message too long"},
		{"object detail surfaced", http.StatusServiceUnavailable, `{"detail":{"message":"All AI providers failed.","errors":["gemini failed"]}}`, "All AI providers failed."},
		{"no detail falls back to status", http.StatusInternalServerError, `oops`, "The service returned an error (HTTP 500)."},
		{"empty response", http.StatusOK, `{"response":""}`, MsgEmpty},
		{"malformed JSON", http.StatusOK, `{"response":`, MsgUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, tt.status, tt.body)
			c := newTestClient(t, srv.URL)
			got := c.Reply(context.Background(), "opaque-session", userRequest("hi"))
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Reply_NetworkFailure(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL)
	srv.Close()

	got := c.Reply(context.Background(), "opaque-session", userRequest("hi"))
	assert.Equal(t, MsgUnavailable, got)
}

func Test_Chat_SessionChecksNeverSend(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"response":"x"}`)
	c := newTestClient(t, srv.URL)
	req := userRequest("hi")

	for name, token := range map[string]string{
		"empty":   "",
		"blank":   "   ",
		"expired": signedToken(t, fixedNow.Add(-time.Minute)),
	} {
		res := c.Chat(context.Background(), token, req)
		require.False(t, res.OK(), name)
		assert.Equal(t, apiclient.KindUnauthenticated, res.Fault().Kind, name)
		assert.Equal(t, MsgSignIn, c.Reply(context.Background(), token, req), name)
	}
	assert.Zero(t, srv.hits.Load())
}

func Test_Chat_OpaqueTokenIsSent(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"response":"ok"}`)
	c := newTestClient(t, srv.URL)

	res := c.Chat(context.Background(), "not-a-jwt", userRequest("hi"))
	require.True(t, res.OK())
	assert.Equal(t, int32(1), srv.hits.Load())
}

func Test_Chat_InvalidRequest(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"response":"x"}`)
	c := newTestClient(t, srv.URL)

	res := c.Chat(context.Background(), "tok", ChatRequest{})
	assert.Equal(t, apiclient.KindInvalidRequest, res.Fault().Kind)

	res = c.Chat(context.Background(), "tok", ChatRequest{Messages: []Message{{Role: "robot", Content: "x"}}})
	assert.Equal(t, apiclient.KindInvalidRequest, res.Fault().Kind)

	res = c.Chat(context.Background(), "tok", ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}, Provider: "bard"})
	assert.Equal(t, apiclient.KindInvalidRequest, res.Fault().Kind)

	assert.Zero(t, srv.hits.Load())
}

func Test_Render(t *testing.T) {
	tests := []struct {
		name string
		res  apiclient.Result[ChatReply]
		want string
	}{
		{"reply text", apiclient.Success(ChatReply{Response: "Try the fan heater."}), "Try the fan heater."},
		{"blank reply", apiclient.Success(ChatReply{Response: "  "}), MsgEmpty},
		{"unauthenticated", apiclient.Failure[ChatReply](&apiclient.Fault{Kind: apiclient.KindUnauthenticated}), MsgSignIn},
		{"payment required", apiclient.Failure[ChatReply](&apiclient.Fault{Kind: apiclient.KindPaymentRequired, Status: 402}), MsgUnavailable},
		{"upstream detail", apiclient.Failure[ChatReply](&apiclient.Fault{Kind: apiclient.KindUpstream, Status: 400, Detail: "Message too long"}), "Message too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.res))
		})
	}
}
