package conversions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/safety"
	"github.com/jamesprial/storefront-mcp/internal/tools"
)

const toolNameSendEvent = "conversions_send_event"

// GatedTools lists conversions tool names that require confirmation because
// they publish data to a third party.
var GatedTools = []string{toolNameSendEvent}

// Sender is the subset of *Client used by the tools.
type Sender interface {
	SendTest(ctx context.Context, testCode string, events ...Event) apiclient.Result[Receipt]
}

var _ Sender = (*Client)(nil)

// ToolOptions carries the configuration the tools need beyond the client.
type ToolOptions struct {
	// TestEventCode is used when the caller does not pass one.
	TestEventCode string
	FullGID       bool
}

// ConversionTools returns the tool registrations for the Conversions API.
func ConversionTools(sender Sender, opts ToolOptions, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolSendEvent(sender, opts, confirm, audit),
	}
}

func toolSendEvent(sender Sender, opts ToolOptions, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameSendEvent,
		mcp.WithDescription("Send one server-side conversion event (e.g. PageView, ViewContent, AddToCart, Purchase). Requires confirmation."),
		mcp.WithString("event_name",
			mcp.Required(),
			mcp.Description("Standard or custom event name"),
		),
		mcp.WithString("event_source_url",
			mcp.Description("URL of the page the event happened on"),
		),
		mcp.WithString("event_id",
			mcp.Description("Deduplication id shared with the browser pixel (default: random UUID)"),
		),
		mcp.WithString("product_ids",
			mcp.Description("Comma separated product GIDs for content_ids"),
		),
		mcp.WithString("content_name",
			mcp.Description("Product or page name"),
		),
		mcp.WithNumber("value",
			mcp.Description("Monetary value of the event"),
		),
		mcp.WithString("currency",
			mcp.Description("ISO 4217 currency code; required for value to be sent"),
		),
		mcp.WithString("email",
			mcp.Description("Shopper email; hashed before sending"),
		),
		mcp.WithString("phone",
			mcp.Description("Shopper phone; hashed before sending"),
		),
		mcp.WithString("test_event_code",
			mcp.Description("Route the event to the test console"),
		),
		mcp.WithString("confirmation_token",
			mcp.Description("Token from a previous confirmation prompt"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		name := req.GetString("event_name", "")
		testCode := req.GetString("test_event_code", opts.TestEventCode)
		token := req.GetString("confirmation_token", "")

		event := Event{
			Name:      name,
			ID:        req.GetString("event_id", ""),
			SourceURL: req.GetString("event_source_url", ""),
			User: UserData{
				Email: req.GetString("email", ""),
				Phone: req.GetString("phone", ""),
			},
		}
		if ids := req.GetString("product_ids", ""); ids != "" {
			content := ProductContent{
				Name:     req.GetString("content_name", ""),
				Value:    req.GetFloat("value", 0),
				Currency: req.GetString("currency", ""),
			}
			for _, id := range strings.Split(ids, ",") {
				if id = strings.TrimSpace(id); id != "" {
					content.ProductIDs = append(content.ProductIDs, id)
				}
			}
			event.Custom = content.CustomData(opts.FullGID)
		}

		params := map[string]any{
			"event_name":      name,
			"event_id":        event.ID,
			"test_event_code": testCode,
			"email":           event.User.Email,
			"phone":           event.User.Phone,
		}

		if name == "" {
			tools.LogAudit(audit, toolNameSendEvent, params, "error: event_name is required", start)
			return tools.ErrorResult("event_name is required"), nil
		}

		if confirm.NeedsConfirmation(toolNameSendEvent) && !confirm.Confirm(token, toolNameSendEvent, name) {
			desc := fmt.Sprintf("This sends a live %s event to the Conversions API.", name)
			if testCode != "" {
				desc = fmt.Sprintf("This sends a %s event to the Conversions API test console (code %s).", name, testCode)
			}
			return tools.ConfirmPrompt(confirm, toolNameSendEvent, name, desc), nil
		}

		receipt, err := sender.SendTest(ctx, testCode, event).Get()
		if err != nil {
			tools.LogFailure(audit, toolNameSendEvent, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		tools.LogAudit(audit, toolNameSendEvent, params, "ok: "+receipt.FBTraceID, start)
		return tools.JSONResult(receipt), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
