package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// recordingObserver captures Observe calls.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) Observe(service, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, service+":"+outcome)
}

func mustDescriptor(t *testing.T, endpoint string, opts ...DescriptorOption) Descriptor {
	t.Helper()
	d, err := NewJSON(endpoint, map[string]any{"query": "{ shop { name } }"}, opts...)
	if err != nil {
		t.Fatalf("NewJSON() error = %v", err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

func Test_NewJSON_BuildsImmutableDescriptor(t *testing.T) {
	d := mustDescriptor(t, "https://example.com/api/graphql.json",
		WithHeader("X-Shopify-Storefront-Access-Token", "tok"),
		WithQuery("access_token", "secret"),
		WithService("storefront"),
	)

	if d.Method() != http.MethodPost {
		t.Errorf("Method() = %q, want POST", d.Method())
	}
	if !strings.Contains(d.Endpoint(), "access_token=secret") {
		t.Errorf("Endpoint() = %q, want access_token query", d.Endpoint())
	}
	if strings.Contains(d.RedactedEndpoint(), "secret") {
		t.Errorf("RedactedEndpoint() leaked credential: %q", d.RedactedEndpoint())
	}
	if d.Service() != "storefront" {
		t.Errorf("Service() = %q", d.Service())
	}

	h := d.Header()
	h.Set("X-Shopify-Storefront-Access-Token", "mutated")
	if got := d.Header().Get("X-Shopify-Storefront-Access-Token"); got != "tok" {
		t.Errorf("header mutated through copy: %q", got)
	}

	b := d.Body()
	b[0] = 'X'
	if d.Body()[0] != '{' {
		t.Error("body mutated through copy")
	}
}

func Test_NewJSON_Errors(t *testing.T) {
	if _, err := NewJSON("", nil); !IsKind(err, KindInvalidRequest) {
		t.Errorf("empty endpoint error = %v, want invalid_request", err)
	}
	if _, err := NewJSON("http://x", make(chan int)); !IsKind(err, KindInvalidRequest) {
		t.Errorf("unmarshalable payload error = %v, want invalid_request", err)
	}
	if _, err := NewJSON("http://[::1", nil, WithQuery("a", "b")); !IsKind(err, KindInvalidRequest) {
		t.Errorf("bad endpoint query error = %v, want invalid_request", err)
	}
}

// ---------------------------------------------------------------------------
// Client.Send
// ---------------------------------------------------------------------------

func Test_Send_HappyPath(t *testing.T) {
	var gotHeader, gotBody, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hello"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(5*time.Second, WithObserver(obs))
	reply, err := c.Send(context.Background(), mustDescriptor(t, srv.URL, WithBearer("session"), WithService("concierge")))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Status != http.StatusOK || string(reply.Body) != `{"response":"hello"}` {
		t.Errorf("reply = %d %s", reply.Status, reply.Body)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotHeader != "Bearer session" {
		t.Errorf("Authorization = %q", gotHeader)
	}
	if !strings.Contains(gotBody, `"query"`) {
		t.Errorf("body = %q", gotBody)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "concierge:ok" {
		t.Errorf("observer outcomes = %v", obs.outcomes)
	}
}

func Test_Send_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   Kind
		wantDetail string
	}{
		{name: "401 unauthenticated", status: 401, body: `{"detail":"Token expired"}`, wantKind: KindUnauthenticated, wantDetail: "Token expired"},
		{name: "429 rate limited with body", status: 429, body: `{"detail":"slow down"}`, wantKind: KindRateLimited, wantDetail: "slow down"},
		{name: "429 rate limited without body", status: 429, body: ``, wantKind: KindRateLimited},
		{name: "402 payment required", status: 402, body: `{"errors":[{"message":"plan"}]}`, wantKind: KindPaymentRequired, wantDetail: "plan"},
		{name: "500 upstream", status: 500, body: `{"detail":{"message":"All AI providers failed.","errors":["x"]}}`, wantKind: KindUpstream, wantDetail: "All AI providers failed."},
		{name: "400 error object", status: 400, body: `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`, wantKind: KindUpstream, wantDetail: "Invalid parameter"},
		{name: "503 html body", status: 503, body: `<html>down</html>`, wantKind: KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reply, err := New(0).Send(context.Background(), mustDescriptor(t, srv.URL))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if reply != nil {
				t.Error("expected nil reply on error")
			}
			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("error %T is not a *Fault", err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", f.Kind, tt.wantKind)
			}
			if f.Status != tt.status {
				t.Errorf("Status = %d, want %d", f.Status, tt.status)
			}
			if f.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", f.Detail, tt.wantDetail)
			}
		})
	}
}

func Test_Send_TransportFailureIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	obs := &recordingObserver{}
	c := New(time.Second, WithLogger(zap.New(core)), WithObserver(obs))

	_, err := c.Send(context.Background(), mustDescriptor(t, url+"?access_token=secret", WithService("conversions")))
	if !IsKind(err, KindTransport) {
		t.Fatalf("error = %v, want transport fault", err)
	}

	entries := logs.FilterMessage("upstream request failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != "transport" || fields["service"] != "conversions" {
		t.Errorf("log fields = %v", fields)
	}
	if strings.Contains(fields["endpoint"].(string), "secret") {
		t.Errorf("logged endpoint leaked credential: %v", fields["endpoint"])
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaked credential: %v", err)
	}
	if strings.Contains(fields["error"].(string), "secret") {
		t.Errorf("logged error leaked credential: %v", fields["error"])
	}
	if !strings.Contains(err.Error(), url) {
		t.Errorf("error = %v, want redacted endpoint %s", err, url)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "conversions:transport" {
		t.Errorf("observer outcomes = %v", obs.outcomes)
	}
}

func Test_Send_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(0).Send(ctx, mustDescriptor(t, srv.URL))
	if !IsKind(err, KindTransport) {
		t.Fatalf("error = %v, want transport fault", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false for %v", err)
	}
}

func Test_Send_IdempotentRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"collection":{"title":"Heaters"}}}`))
	}))
	defer srv.Close()

	c := New(0)
	d := mustDescriptor(t, srv.URL)
	first, err := c.Send(context.Background(), d)
	if err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	second, err := c.Send(context.Background(), d)
	if err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("repeated calls differ: %s vs %s", first.Body, second.Body)
	}
}

// ---------------------------------------------------------------------------
// Decode / TimeoutSeconds
// ---------------------------------------------------------------------------

func Test_Decode(t *testing.T) {
	type payload struct {
		Response string `json:"response"`
	}
	v, err := Decode[payload]([]byte(`{"response":"hi"}`))
	if err != nil || v.Response != "hi" {
		t.Errorf("Decode() = %+v, %v", v, err)
	}
	if _, err := Decode[payload]([]byte(`not json`)); !IsKind(err, KindDecode) {
		t.Errorf("Decode(bad) error = %v, want decode fault", err)
	}
}

func Test_TimeoutSeconds(t *testing.T) {
	if TimeoutSeconds(0) != 0 || TimeoutSeconds(-3) != 0 {
		t.Error("non-positive seconds should map to zero")
	}
	if TimeoutSeconds(5) != 5*time.Second {
		t.Errorf("TimeoutSeconds(5) = %v", TimeoutSeconds(5))
	}
}
