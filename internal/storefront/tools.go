package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/storefront-mcp/internal/safety"
	"github.com/jamesprial/storefront-mcp/internal/tools"
)

// CatalogTools returns the tool registrations for catalog reads and
// checkout creation. limit bounds concurrent requests for count batches.
func CatalogTools(mgr CatalogManager, limit int, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolCollections(mgr, audit),
		toolProducts(mgr, audit),
		toolProduct(mgr, audit),
		toolCollection(mgr, audit),
		toolCategoryCounts(mgr, limit, audit),
		toolCheckout(mgr, audit),
	}
}

func toolCollections(mgr CatalogManager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_collections"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List storefront collections with their handles, titles and descriptions."),
		mcp.WithNumber("first",
			mcp.Description("Maximum number of collections to return (default: 20)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		first := req.GetInt("first", 20)
		params := map[string]any{"first": first}

		cols, err := mgr.Collections(ctx, first)
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		if len(cols) == 0 {
			tools.LogAudit(audit, toolName, params, "ok: empty", start)
			return mcp.NewToolResultText("No collections found."), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(cols), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolProducts(mgr CatalogManager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_products"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List or search storefront products. Returns a summary projection unless full is set."),
		mcp.WithNumber("first",
			mcp.Description("Maximum number of products to return (default: 20)"),
		),
		mcp.WithString("search",
			mcp.Description("Optional storefront search query, e.g. title:heater"),
		),
		mcp.WithBoolean("full",
			mcp.Description("Return descriptions, all media, up to 10 variants and options (default: false)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		first := req.GetInt("first", 20)
		search := req.GetString("search", "")
		full := req.GetBool("full", false)
		params := map[string]any{"first": first, "search": search, "full": full}

		products, err := mgr.Products(ctx, first, search, full)
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		if len(products) == 0 {
			tools.LogAudit(audit, toolName, params, "ok: empty", start)
			return mcp.NewToolResultText("No products found."), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(products), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolProduct(mgr CatalogManager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_product"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get a single product by handle, including media, variants and options."),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The product handle"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		handle := req.GetString("handle", "")
		params := map[string]any{"handle": handle}

		p, err := mgr.ProductByHandle(ctx, handle)
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}
		if p == nil {
			tools.LogAudit(audit, toolName, params, "ok: not found", start)
			return mcp.NewToolResultText(fmt.Sprintf("Product %q not found.", handle)), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(p), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolCollection(mgr CatalogManager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_collection"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get a collection by handle together with a page of its products."),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The collection handle, e.g. heaters"),
		),
		mcp.WithNumber("first",
			mcp.Description("Maximum number of products to include (default: 12)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		handle := req.GetString("handle", "")
		first := req.GetInt("first", 12)
		params := map[string]any{"handle": handle, "first": first}

		c, err := mgr.CollectionByHandle(ctx, handle, first)
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}
		if c == nil {
			tools.LogAudit(audit, toolName, params, "ok: not found", start)
			return mcp.NewToolResultText(fmt.Sprintf("Collection %q not found.", handle)), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(c), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// splitHandles parses a comma separated handle list, dropping blanks.
func splitHandles(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func toolCategoryCounts(mgr CatalogManager, limit int, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_category_counts"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Count products per collection. With no handles, every collection is listed and counted."),
		mcp.WithString("handles",
			mcp.Description("Comma separated collection handles. Leave empty to count all collections."),
		),
		mcp.WithNumber("first",
			mcp.Description("Page size used for each count (default: 10)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		raw := req.GetString("handles", "")
		first := req.GetInt("first", 10)
		params := map[string]any{"handles": raw, "first": first}

		var (
			counts []CategoryCount
			err    error
		)
		if handles := splitHandles(raw); len(handles) > 0 {
			counts = mgr.CountCategories(ctx, handles, first, limit)
		} else {
			counts, err = mgr.CollectionCounts(ctx, MaxPageSize, first, limit)
		}
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		failed := 0
		for _, c := range counts {
			if c.Err != nil {
				failed++
			}
		}
		result := "ok"
		if failed > 0 {
			result = fmt.Sprintf("ok: %d of %d failed", failed, len(counts))
		}

		tools.LogAudit(audit, toolName, params, result, start)
		return tools.JSONResult(counts), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolCheckout(mgr CatalogManager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "storefront_checkout"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Create a cart from variant ids and quantities and return its checkout URL."),
		mcp.WithString("lines",
			mcp.Required(),
			mcp.Description(`JSON array of cart lines, e.g. [{"merchandiseId":"gid://shopify/ProductVariant/1","quantity":2}]`),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		raw := req.GetString("lines", "")
		params := map[string]any{"lines": raw}

		var lines []CartLine
		if err := json.Unmarshal([]byte(raw), &lines); err != nil {
			errMsg := fmt.Sprintf("parse lines JSON: %v", err)
			tools.LogAudit(audit, toolName, params, "error: "+errMsg, start)
			return tools.ErrorResult(errMsg), nil
		}

		checkout, err := mgr.CreateCheckout(ctx, lines)
		if err != nil {
			tools.LogFailure(audit, toolName, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(checkout), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
