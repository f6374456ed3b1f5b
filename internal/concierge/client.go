// Package concierge is the client for the AI concierge chat backend. Every
// failure is turned into a short message fit to show a shopper.
package concierge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/config"
)

const serviceName = "concierge"

// User-facing replies.
const (
	MsgSignIn      = "Please sign in to chat with our AI concierge."
	MsgRateLimited = "You're sending messages too quickly. Please wait a moment and try again."
	MsgUnavailable = "The concierge is currently unavailable. Please try again later."
	MsgEmpty       = "No response received."
)

// UserMessages overrides the default fault text for chat replies. Upstream
// faults are not listed so the backend's own detail is shown.
var UserMessages = apiclient.Messages{
	apiclient.KindTransport:       MsgUnavailable,
	apiclient.KindUnauthenticated: MsgSignIn,
	apiclient.KindRateLimited:     MsgRateLimited,
	apiclient.KindPaymentRequired: MsgUnavailable,
	apiclient.KindDecode:          MsgUnavailable,
}

// Provider names an LLM provider the backend can route to.
type Provider string

// Supported providers.
const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenAI     Provider = "openai"
	ProviderGrok       Provider = "grok"
	ProviderOpenRouter Provider = "openrouter"
)

// ParseProvider validates s. The empty string selects gemini.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProviderGemini, nil
	case ProviderGemini, ProviderOpenAI, ProviderGrok, ProviderOpenRouter:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q: must be gemini, openai, grok, or openrouter", s)
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to /chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	Provider Provider  `json:"provider"`
	UseRAG   bool      `json:"use_rag"`
}

// ChatReply is the backend's answer. Provider reports which provider
// actually answered when the backend fell back.
type ChatReply struct {
	Response string `json:"response"`
	Provider string `json:"provider,omitempty"`
}

var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// Client talks to one concierge backend.
type Client struct {
	api      *apiclient.Client
	endpoint string
	now      func() time.Time
}

// NewClient returns a Client for the backend at cfg.BaseURL.
func NewClient(cfg config.ConciergeConfig, opts ...apiclient.Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("concierge: base URL is required")
	}
	if _, err := ParseProvider(cfg.Provider); err != nil {
		return nil, fmt.Errorf("concierge: %w", err)
	}
	return &Client{
		api:      apiclient.New(apiclient.TimeoutSeconds(cfg.Timeout), opts...),
		endpoint: base + "/chat",
		now:      time.Now,
	}, nil
}

// Endpoint returns the chat URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Chat sends one request with the shopper's session token. A missing token,
// or a JWT whose exp has passed, fails as KindUnauthenticated without
// contacting the backend.
func (c *Client) Chat(ctx context.Context, token string, req ChatRequest) apiclient.Result[ChatReply] {
	if err := c.checkSession(token); err != nil {
		return apiclient.Failure[ChatReply](err)
	}
	if err := validate(&req); err != nil {
		return apiclient.Failure[ChatReply](err)
	}

	desc, err := apiclient.NewJSON(c.endpoint, req,
		apiclient.WithBearer(token),
		apiclient.WithService(serviceName),
	)
	if err != nil {
		return apiclient.Failure[ChatReply](err)
	}

	reply, err := c.api.Send(ctx, desc)
	if err != nil {
		return apiclient.Failure[ChatReply](err)
	}

	out, err := apiclient.Decode[ChatReply](reply.Body)
	if err != nil {
		c.api.Logger().Warn("concierge reply not understood",
			zap.String("provider", string(req.Provider)),
			zap.Error(err),
		)
		return apiclient.Failure[ChatReply](err)
	}
	return apiclient.Success(out)
}

// Reply is Chat for display: it always returns a human-readable string and
// never an error.
func (c *Client) Reply(ctx context.Context, token string, req ChatRequest) string {
	return Render(c.Chat(ctx, token, req))
}

// Render turns a chat result into the text shown to the shopper: the reply,
// MsgEmpty for a blank reply, or the UserMessages text for a failure.
func Render(res apiclient.Result[ChatReply]) string {
	if !res.OK() {
		return res.Fault().MessageWith(UserMessages)
	}
	text := res.Or(ChatReply{}).Response
	if strings.TrimSpace(text) == "" {
		return MsgEmpty
	}
	return text
}

// checkSession rejects empty tokens and JWTs that have expired. Tokens that
// are not JWTs are left for the backend to judge.
func (c *Client) checkSession(token string) error {
	if strings.TrimSpace(token) == "" {
		return &apiclient.Fault{Kind: apiclient.KindUnauthenticated, Detail: "no session token"}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !c.now().Before(exp.Time) {
		return &apiclient.Fault{Kind: apiclient.KindUnauthenticated, Detail: "session expired"}
	}
	return nil
}

func validate(req *ChatRequest) error {
	if len(req.Messages) == 0 {
		return &apiclient.Fault{Kind: apiclient.KindInvalidRequest, Detail: "at least one message is required"}
	}
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return &apiclient.Fault{Kind: apiclient.KindInvalidRequest, Detail: fmt.Sprintf("message %d: invalid role %q", i, m.Role)}
		}
	}
	p, err := ParseProvider(string(req.Provider))
	if err != nil {
		return &apiclient.Fault{Kind: apiclient.KindInvalidRequest, Detail: err.Error()}
	}
	req.Provider = p
	return nil
}
