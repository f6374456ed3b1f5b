package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 8 << 20
)

// Doer is the subset of *http.Client used by Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives the outcome of every Send. outcome is "ok" or a
// Kind.String() value.
type Observer interface {
	Observe(service, outcome string, elapsed time.Duration)
}

// Reply is a successful (2xx) HTTP response.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client performs single request/response exchanges. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	doer     Doer
	logger   *zap.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the underlying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New returns a Client whose HTTP timeout is timeout, or 30 seconds when
// timeout is zero or negative.
func New(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		doer:   &http.Client{Timeout: timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TimeoutSeconds converts a config value in seconds to a duration. Zero or
// negative values yield zero so New applies its default.
func TimeoutSeconds(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

// Send performs one POST described by d and waits for the response.
//
// Send returns a *Fault when:
//   - the request cannot be created or sent (KindTransport)
//   - the response body cannot be read (KindTransport)
//   - the server responds with a non-2xx status (see Classify)
func (c *Client) Send(ctx context.Context, d Descriptor) (*Reply, error) {
	start := time.Now()
	reply, err := c.send(ctx, d)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		f := AsFault(err)
		outcome = f.Kind.String()
		c.logger.Warn("upstream request failed",
			zap.String("service", d.Service()),
			zap.String("endpoint", d.RedactedEndpoint()),
			zap.String("kind", outcome),
			zap.Int("status", f.Status),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("upstream request completed",
			zap.String("service", d.Service()),
			zap.String("endpoint", d.RedactedEndpoint()),
			zap.Int("status", reply.Status),
			zap.Duration("elapsed", elapsed),
		)
	}
	if c.observer != nil {
		c.observer.Observe(d.Service(), outcome, elapsed)
	}
	return reply, err
}

func (c *Client) send(ctx context.Context, d Descriptor) (*Reply, error) {
	req, err := http.NewRequestWithContext(ctx, d.Method(), d.Endpoint(), bytes.NewReader(d.Body()))
	if err != nil {
		return nil, &Fault{Kind: KindInvalidRequest, Detail: "create request", Err: redactURLError(err, d)}
	}
	req.Header = d.Header()

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &Fault{Kind: KindTransport, Err: fmt.Errorf("request failed: %w", redactURLError(err, d))}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Fault{Kind: KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Classify(resp.StatusCode, body)
	}

	return &Reply{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// redactURLError replaces the URL carried by a *url.Error with the
// endpoint minus its query string, which may hold an access token.
func redactURLError(err error, d Descriptor) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = d.RedactedEndpoint()
	}
	return err
}

// Decode unmarshals a reply body into T, mapping failures to KindDecode.
func Decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &Fault{Kind: KindDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return v, nil
}
