package concierge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/safety"
	"github.com/jamesprial/storefront-mcp/internal/tools"
)

// Chatter is the subset of *Client used by the tools.
type Chatter interface {
	Chat(ctx context.Context, token string, req ChatRequest) apiclient.Result[ChatReply]
}

var _ Chatter = (*Client)(nil)

// ChatTools returns the concierge tool registrations. provider and useRAG
// are the defaults applied when the caller does not choose.
func ChatTools(chat Chatter, provider Provider, useRAG bool, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolChat(chat, provider, useRAG, audit),
	}
}

func toolChat(chat Chatter, defaultProvider Provider, defaultRAG bool, audit *safety.AuditLogger) tools.Registration {
	const toolName = "concierge_chat"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Send one message to the AI shopping concierge on behalf of a signed-in shopper and return its reply."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The shopper's message"),
		),
		mcp.WithString("session_token",
			mcp.Description("The shopper's session token; without it the shopper is asked to sign in"),
		),
		mcp.WithString("provider",
			mcp.Description("LLM provider: gemini, openai, grok or openrouter"),
		),
		mcp.WithBoolean("use_rag",
			mcp.Description("Ground the answer in the store's knowledge base"),
		),
		mcp.WithString("history",
			mcp.Description(`Optional JSON array of earlier turns, e.g. [{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		message := req.GetString("message", "")
		token := req.GetString("session_token", "")
		providerArg := req.GetString("provider", string(defaultProvider))
		useRAG := req.GetBool("use_rag", defaultRAG)
		history := req.GetString("history", "")

		params := map[string]any{
			"provider":      providerArg,
			"use_rag":       useRAG,
			"session_token": token,
		}

		if strings.TrimSpace(message) == "" {
			tools.LogAudit(audit, toolName, params, "error: message is required", start)
			return tools.ErrorResult("message is required"), nil
		}

		provider, err := ParseProvider(providerArg)
		if err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		var turns []Message
		if history != "" {
			if err := json.Unmarshal([]byte(history), &turns); err != nil {
				errMsg := fmt.Sprintf("parse history JSON: %v", err)
				tools.LogAudit(audit, toolName, params, "error: "+errMsg, start)
				return tools.ErrorResult(errMsg), nil
			}
		}
		turns = append(turns, Message{Role: "user", Content: message})

		res := chat.Chat(ctx, token, ChatRequest{Messages: turns, Provider: provider, UseRAG: useRAG})
		if res.OK() {
			tools.LogAudit(audit, toolName, params, "ok: "+res.Or(ChatReply{}).Provider, start)
		} else {
			tools.LogFailure(audit, toolName, params, res.Fault(), start)
		}
		return mcp.NewToolResultText(Render(res)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
