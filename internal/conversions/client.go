package conversions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/config"
)

const serviceName = "conversions"

// MaxEventsPerRequest is the platform's batch limit.
const MaxEventsPerRequest = 1000

// Receipt is the platform's acknowledgement of a batch.
type Receipt struct {
	EventsReceived int      `json:"events_received"`
	FBTraceID      string   `json:"fbtrace_id"`
	Messages       []string `json:"messages,omitempty"`
}

type platformError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type eventsResponse struct {
	Receipt
	Error *platformError `json:"error"`
}

// Client posts events for one pixel.
type Client struct {
	api      *apiclient.Client
	endpoint string
	token    string
	testCode string
	now      func() time.Time
	newID    func() string
}

// NewClient returns a Client for the pixel and access token in cfg.
func NewClient(cfg config.ConversionsConfig, opts ...apiclient.Option) (*Client, error) {
	if cfg.PixelID == "" {
		return nil, errors.New("conversions: pixel id is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("conversions: access token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v18.0"
	}

	return &Client{
		api:      apiclient.New(apiclient.TimeoutSeconds(cfg.Timeout), opts...),
		endpoint: fmt.Sprintf("%s/%s/%s/events", base, version, cfg.PixelID),
		token:    cfg.AccessToken,
		testCode: cfg.TestEventCode,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Endpoint returns the events endpoint without the access token.
func (c *Client) Endpoint() string { return c.endpoint }

// Send posts events using the configured test event code, if any.
func (c *Client) Send(ctx context.Context, events ...Event) apiclient.Result[Receipt] {
	return c.SendTest(ctx, c.testCode, events...)
}

// SendTest posts events routed to the test console identified by testCode.
// An empty testCode sends live events.
//
// A 2xx reply whose body carries an error object is a KindLogical failure;
// the platform's message is kept in the fault.
func (c *Client) SendTest(ctx context.Context, testCode string, events ...Event) apiclient.Result[Receipt] {
	if len(events) == 0 {
		return apiclient.Failure[Receipt](&apiclient.Fault{Kind: apiclient.KindInvalidRequest, Detail: "at least one event is required"})
	}
	if len(events) > MaxEventsPerRequest {
		return apiclient.Failure[Receipt](&apiclient.Fault{
			Kind:   apiclient.KindInvalidRequest,
			Detail: fmt.Sprintf("at most %d events per request, got %d", MaxEventsPerRequest, len(events)),
		})
	}

	payload := eventsPayload{Data: make([]wireEvent, len(events)), TestEventCode: testCode}
	names := make([]string, len(events))
	for i, e := range events {
		if strings.TrimSpace(e.Name) == "" {
			return apiclient.Failure[Receipt](&apiclient.Fault{Kind: apiclient.KindInvalidRequest, Detail: fmt.Sprintf("event %d: name is required", i)})
		}
		payload.Data[i] = c.wire(e)
		names[i] = e.Name
	}

	desc, err := apiclient.NewJSON(c.endpoint, payload,
		apiclient.WithQuery("access_token", c.token),
		apiclient.WithService(serviceName),
	)
	if err != nil {
		return apiclient.Failure[Receipt](err)
	}

	reply, err := c.api.Send(ctx, desc)
	if err != nil {
		return apiclient.Failure[Receipt](err)
	}

	resp, err := apiclient.Decode[eventsResponse](reply.Body)
	if err != nil {
		return apiclient.Failure[Receipt](err)
	}
	if resp.Error != nil {
		c.api.Logger().Warn("conversions event rejected",
			zap.Strings("event_name", names),
			zap.String("error", resp.Error.Message),
			zap.Int("code", resp.Error.Code),
			zap.String("fbtrace_id", resp.Error.FBTraceID),
		)
		return apiclient.Failure[Receipt](&apiclient.Fault{
			Kind:   apiclient.KindLogical,
			Status: reply.Status,
			Detail: resp.Error.Message,
			Errors: []apiclient.UpstreamError{{
				Message:    resp.Error.Message,
				Extensions: map[string]any{"type": resp.Error.Type, "code": resp.Error.Code},
			}},
		})
	}

	return apiclient.Success(resp.Receipt)
}

func (c *Client) wire(e Event) wireEvent {
	id := e.ID
	if id == "" {
		id = c.newID()
	}
	ts := e.Time
	if ts.IsZero() {
		ts = c.now()
	}
	source := e.ActionSource
	if source == "" {
		source = DefaultActionSource
	}
	return wireEvent{
		EventName:      e.Name,
		EventTime:      ts.Unix(),
		EventID:        id,
		ActionSource:   source,
		EventSourceURL: e.SourceURL,
		UserData:       e.User.wire(),
		CustomData:     e.Custom,
	}
}
