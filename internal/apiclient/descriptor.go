// Package apiclient implements the authenticated request/response exchange
// shared by the storefront, conversions and concierge clients: one POST of a
// JSON body to a fixed endpoint, a JSON reply, and a uniform Fault when
// anything goes wrong.
package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Descriptor describes a single POST request. It is immutable once built;
// accessors return copies.
type Descriptor struct {
	service  string
	endpoint string
	header   http.Header
	body     []byte
}

// DescriptorOption customises a Descriptor under construction.
type DescriptorOption func(*Descriptor) error

// WithHeader sets a request header.
func WithHeader(key, value string) DescriptorOption {
	return func(d *Descriptor) error {
		d.header.Set(key, value)
		return nil
	}
}

// WithBearer sets "Authorization: Bearer <token>".
func WithBearer(token string) DescriptorOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithQuery adds a query parameter to the endpoint.
func WithQuery(key, value string) DescriptorOption {
	return func(d *Descriptor) error {
		u, err := url.Parse(d.endpoint)
		if err != nil {
			return fmt.Errorf("parse endpoint: %w", err)
		}
		q := u.Query()
		q.Set(key, value)
		u.RawQuery = q.Encode()
		d.endpoint = u.String()
		return nil
	}
}

// WithService labels the request for logs and metrics.
func WithService(name string) DescriptorOption {
	return func(d *Descriptor) error {
		d.service = name
		return nil
	}
}

// NewJSON builds a Descriptor whose body is payload encoded as JSON.
func NewJSON(endpoint string, payload any, opts ...DescriptorOption) (Descriptor, error) {
	if endpoint == "" {
		return Descriptor{}, &Fault{Kind: KindInvalidRequest, Detail: "endpoint is required"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Descriptor{}, &Fault{Kind: KindInvalidRequest, Detail: "marshal request", Err: err}
	}

	d := Descriptor{
		service:  "default",
		endpoint: endpoint,
		header:   make(http.Header),
		body:     body,
	}
	d.header.Set("Content-Type", "application/json")
	d.header.Set("Accept", "application/json")

	for _, opt := range opts {
		if err := opt(&d); err != nil {
			return Descriptor{}, &Fault{Kind: KindInvalidRequest, Detail: err.Error(), Err: err}
		}
	}
	return d, nil
}

// Method is always POST.
func (d Descriptor) Method() string { return http.MethodPost }

// Endpoint returns the full URL including query parameters.
func (d Descriptor) Endpoint() string { return d.endpoint }

// Service returns the label used in logs and metrics.
func (d Descriptor) Service() string { return d.service }

// Header returns a copy of the request headers.
func (d Descriptor) Header() http.Header { return d.header.Clone() }

// Body returns a copy of the serialized request body.
func (d Descriptor) Body() []byte {
	out := make([]byte, len(d.body))
	copy(out, d.body)
	return out
}

// RedactedEndpoint returns the endpoint without its query string, which may
// carry credentials.
func (d Descriptor) RedactedEndpoint() string {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "<invalid endpoint>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
