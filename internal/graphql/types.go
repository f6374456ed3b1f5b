package graphql

import (
	"context"
	"encoding/json"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
)

// Request is the JSON body shape for a GraphQL HTTP request.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Envelope is the JSON body shape for a GraphQL HTTP response. Data and
// Errors may coexist; callers must check Errors first.
type Envelope struct {
	Data       json.RawMessage           `json:"data"`
	Errors     []apiclient.UpstreamError `json:"errors"`
	Extensions map[string]any            `json:"extensions,omitempty"`
}

// Client defines the interface for executing GraphQL queries.
type Client interface {
	Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}
