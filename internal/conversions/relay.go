package conversions

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
)

// maxRelayBody caps a relayed event body.
const maxRelayBody = 64 << 10

// FlatEvent is the single-event shape posted by storefront pages. Personal
// data arrives in clear text and is hashed before it is forwarded.
type FlatEvent struct {
	EventName      string         `json:"event_name"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	TestEventCode  string         `json:"test_event_code,omitempty"`
	UserData       FlatUserData   `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// FlatUserData is the clear-text user data of a FlatEvent.
type FlatUserData struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	FBP       string `json:"fbp,omitempty"`
	FBC       string `json:"fbc,omitempty"`
}

// Event converts f to an Event, taking the client address and user agent
// from r.
func (f FlatEvent) Event(r *http.Request) Event {
	return Event{
		Name:      f.EventName,
		ID:        f.EventID,
		SourceURL: f.EventSourceURL,
		User: UserData{
			Email:     f.UserData.Email,
			Phone:     f.UserData.Phone,
			FirstName: f.UserData.FirstName,
			LastName:  f.UserData.LastName,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
			FBP:       f.UserData.FBP,
			FBC:       f.UserData.FBC,
		},
		Custom: f.CustomData,
	}
}

// clientIP prefers X-Real-IP, then the first X-Forwarded-For hop, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RelayOptions configures RelayHandler.
type RelayOptions struct {
	// TestEventCode is used when the posted event carries none.
	TestEventCode string
	// AllowedOrigins lists the browser origins allowed to post events. "*"
	// allows any origin; an empty list allows none.
	AllowedOrigins []string
}

// RelayHandler accepts a FlatEvent and forwards it through sender. The
// platform's receipt is returned as JSON; failures are returned as
// {"error": "..."} with a status matching the fault kind. CORS headers are
// set on every response and preflight requests are answered with 204.
func RelayHandler(sender Sender, opts RelayOptions, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w.Header(), r.Header.Get("Origin"), opts.AllowedOrigins)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRelayBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		var flat FlatEvent
		if err := json.Unmarshal(body, &flat); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}

		testCode := flat.TestEventCode
		if testCode == "" {
			testCode = opts.TestEventCode
		}

		res := sender.SendTest(r.Context(), testCode, flat.Event(r))
		receipt, err := res.Get()
		if err != nil {
			fault := res.Fault()
			logger.Warn("relayed conversion event failed",
				zap.String("event_name", flat.EventName),
				zap.String("event_id", flat.EventID),
				zap.Stringer("kind", fault.Kind),
			)
			writeJSON(w, relayStatus(fault.Kind), map[string]string{"error": fault.Message()})
			return
		}

		logger.Info("relayed conversion event",
			zap.String("event_name", flat.EventName),
			zap.String("event_id", flat.EventID),
			zap.String("fbtrace_id", receipt.FBTraceID),
		)
		writeJSON(w, http.StatusOK, receipt)
	})
}

// Headers a browser may send with a relayed event.
const relayAllowHeaders = "authorization, x-client-info, apikey, content-type"

// setCORS writes the CORS response headers for origin. Nothing is written
// for an origin that is not allowed, so the browser blocks the response.
func setCORS(h http.Header, origin string, allowed []string) {
	h.Add("Vary", "Origin")
	allow := ""
	for _, o := range allowed {
		if o == "*" {
			allow = "*"
			break
		}
		if origin != "" && strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			allow = origin
		}
	}
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", relayAllowHeaders)
}

func relayStatus(k apiclient.Kind) int {
	switch k {
	case apiclient.KindInvalidRequest:
		return http.StatusBadRequest
	case apiclient.KindRateLimited:
		return http.StatusTooManyRequests
	case apiclient.KindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
