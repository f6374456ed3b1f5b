package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/storefront-mcp/internal/safety"
	"github.com/jamesprial/storefront-mcp/internal/tools"
)

const toolNameGraphQLQuery = "storefront_graphql_query"

// GraphQLTools returns the storefront GraphQL escape hatch registration.
func GraphQLTools(client Client, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolGraphQLQuery(client, audit),
	}
}

func toolGraphQLQuery(client Client, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGraphQLQuery,
		mcp.WithDescription("Execute a raw GraphQL query against the storefront API. Use when the catalog tools do not cover the data you need."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The GraphQL query string to execute."),
		),
		mcp.WithString("variables",
			mcp.Description("Optional JSON object string of variables to pass with the query."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		query := req.GetString("query", "")
		variablesStr := req.GetString("variables", "")

		params := map[string]any{
			"query":     query,
			"variables": variablesStr,
		}

		if query == "" {
			tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: query is required", start)
			return tools.ErrorResult("query is required"), nil
		}

		var parsedVars map[string]any
		if variablesStr != "" {
			if err := json.Unmarshal([]byte(variablesStr), &parsedVars); err != nil {
				errMsg := fmt.Sprintf("parse variables JSON: %v", err)
				tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+errMsg, start)
				return tools.ErrorResult(errMsg), nil
			}
		}

		data, err := client.Execute(ctx, query, parsedVars)
		if err != nil {
			tools.LogFailure(audit, toolNameGraphQLQuery, params, err, start)
			return tools.FaultResult(err, nil), nil
		}

		var parsed any
		if data != nil {
			if err := json.Unmarshal(data, &parsed); err != nil {
				tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+err.Error(), start)
				return tools.ErrorResult(err.Error()), nil
			}
		}

		tools.LogAudit(audit, toolNameGraphQLQuery, params, "ok", start)
		return tools.JSONResult(parsed), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
