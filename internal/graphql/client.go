// Package graphql provides a GraphQL HTTP client for the storefront API.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/config"
)

// TokenHeader carries the storefront access token.
const TokenHeader = "X-Shopify-Storefront-Access-Token"

const serviceName = "storefront"

// HTTPClient is a concrete implementation of the Client interface that sends
// GraphQL requests through an apiclient.Client.
type HTTPClient struct {
	api      *apiclient.Client
	endpoint string
	token    string
}

// NewHTTPClient constructs an HTTPClient from the provided StorefrontConfig.
// It returns an error if no endpoint can be derived. An empty access token is
// accepted at construction time but causes Execute to return an
// unauthenticated fault without contacting the server.
func NewHTTPClient(cfg config.StorefrontConfig, opts ...apiclient.Option) (*HTTPClient, error) {
	endpoint := cfg.Endpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("graphql: storefront domain or URL is required")
	}

	return &HTTPClient{
		api:      apiclient.New(apiclient.TimeoutSeconds(cfg.Timeout), opts...),
		endpoint: normalizeURL(endpoint),
		token:    cfg.AccessToken,
	}, nil
}

// normalizeURL trims trailing slashes from rawURL and appends /graphql.json
// unless the path already ends in a GraphQL endpoint.
func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if strings.HasSuffix(u, "/graphql.json") || strings.HasSuffix(u, "/graphql") {
		return u
	}
	return u + "/graphql.json"
}

// Endpoint returns the normalized GraphQL endpoint.
func (c *HTTPClient) Endpoint() string { return c.endpoint }

// Execute sends a GraphQL query to the configured endpoint and returns the
// raw JSON bytes of the "data" field on success. Variables may be nil, in
// which case the "variables" key is omitted from the request body. A response
// whose data is null or absent yields nil bytes and no error.
//
// Execute returns an *apiclient.Fault if:
//   - the client was constructed without an access token (KindUnauthenticated)
//   - the request cannot be sent or the server responds non-2xx
//   - the response body cannot be decoded as JSON (KindDecode)
//   - the response contains one or more GraphQL errors (KindLogical); data is
//     not returned in that case even when present
func (c *HTTPClient) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	if c.token == "" {
		return nil, &apiclient.Fault{Kind: apiclient.KindUnauthenticated, Detail: "storefront access token is not configured"}
	}

	desc, err := apiclient.NewJSON(c.endpoint,
		Request{Query: query, Variables: variables},
		apiclient.WithHeader(TokenHeader, c.token),
		apiclient.WithService(serviceName),
	)
	if err != nil {
		return nil, fmt.Errorf("graphql: %w", err)
	}

	reply, err := c.api.Send(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("graphql: %w", err)
	}

	env, err := apiclient.Decode[Envelope](reply.Body)
	if err != nil {
		return nil, fmt.Errorf("graphql: %w", err)
	}

	if len(env.Errors) > 0 {
		return nil, &apiclient.Fault{Kind: apiclient.KindLogical, Status: reply.Status, Errors: env.Errors}
	}

	if isNull(env.Data) {
		return nil, nil
	}
	return []byte(env.Data), nil
}

// isNull reports whether raw is empty or the JSON literal null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Do executes query through client and decodes the data field into T. A null
// data field decodes to the zero value of T.
func Do[T any](ctx context.Context, client Client, query string, variables map[string]any) apiclient.Result[T] {
	data, err := client.Execute(ctx, query, variables)
	if err != nil {
		return apiclient.Failure[T](err)
	}
	if data == nil {
		var zero T
		return apiclient.Success(zero)
	}
	v, err := apiclient.Decode[T](data)
	if err != nil {
		return apiclient.Failure[T](err)
	}
	return apiclient.Success(v)
}
