package conversions

import (
	"context"
	"regexp"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/safety"
)

type mockSender struct {
	calls    int
	lastCode string
	last     []Event
	result   apiclient.Result[Receipt]
}

func (m *mockSender) SendTest(_ context.Context, testCode string, events ...Event) apiclient.Result[Receipt] {
	m.calls++
	m.lastCode = testCode
	m.last = events
	return m.result
}

var tokenPattern = regexp.MustCompile(`confirmation_token="([a-f0-9]+)"`)

func callSendEvent(t *testing.T, sender Sender, opts ToolOptions, confirm *safety.ConfirmationTracker, args map[string]any) string {
	t.Helper()
	regs := ConversionTools(sender, opts, confirm, nil)
	require.Len(t, regs, 1)
	req := mcp.CallToolRequest{}
	req.Params.Name = toolNameSendEvent
	req.Params.Arguments = args
	res, err := regs[0].Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func Test_SendEventTool_RequiresConfirmation(t *testing.T) {
	sender := &mockSender{result: apiclient.Success(Receipt{EventsReceived: 1, FBTraceID: "trace"})}
	confirm := safety.NewConfirmationTracker(GatedTools)
	opts := ToolOptions{TestEventCode: "TEST441", FullGID: false}
	args := map[string]any{
		"event_name":  "ViewContent",
		"product_ids": "gid://shopify/Product/42, gid://shopify/Product/43",
		"email":       "shopper@example.com",
	}

	prompt := callSendEvent(t, sender, opts, confirm, args)
	assert.Contains(t, prompt, "Confirmation required for conversions_send_event")
	assert.Contains(t, prompt, "TEST441")
	assert.Zero(t, sender.calls)

	m := tokenPattern.FindStringSubmatch(prompt)
	require.Len(t, m, 2)
	args["confirmation_token"] = m[1]

	text := callSendEvent(t, sender, opts, confirm, args)
	assert.Contains(t, text, `"fbtrace_id": "trace"`)
	require.Equal(t, 1, sender.calls)
	assert.Equal(t, "TEST441", sender.lastCode)
	require.Len(t, sender.last, 1)
	assert.Equal(t, []string{"42", "43"}, sender.last[0].Custom["content_ids"])
	assert.Equal(t, "shopper@example.com", sender.last[0].User.Email)

	// The token is spent.
	again := callSendEvent(t, sender, opts, confirm, args)
	assert.Contains(t, again, "Confirmation required")
	assert.Equal(t, 1, sender.calls)
}

func Test_SendEventTool_TokenBoundToEventName(t *testing.T) {
	sender := &mockSender{result: apiclient.Success(Receipt{})}
	confirm := safety.NewConfirmationTracker(GatedTools)

	prompt := callSendEvent(t, sender, ToolOptions{}, confirm, map[string]any{"event_name": "PageView"})
	token := tokenPattern.FindStringSubmatch(prompt)[1]

	text := callSendEvent(t, sender, ToolOptions{}, confirm, map[string]any{"event_name": "Purchase", "confirmation_token": token})
	assert.Contains(t, text, "Confirmation required")
	assert.Zero(t, sender.calls)
}

func Test_SendEventTool_Failures(t *testing.T) {
	confirm := safety.NewConfirmationTracker(nil)

	text := callSendEvent(t, &mockSender{}, ToolOptions{}, confirm, map[string]any{})
	assert.Equal(t, "error: event_name is required", text)

	sender := &mockSender{result: apiclient.Failure[Receipt](&apiclient.Fault{Kind: apiclient.KindLogical, Detail: "Invalid parameter"})}
	text = callSendEvent(t, sender, ToolOptions{}, confirm, map[string]any{"event_name": "Purchase"})
	assert.Equal(t, "error: Invalid parameter", text)
}
