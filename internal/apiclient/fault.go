package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies why an upstream call failed.
type Kind int

const (
	// KindTransport covers DNS failures, refused connections, timeouts and
	// cancelled contexts: no HTTP response was received.
	KindTransport Kind = iota + 1
	// KindUnauthenticated means the credential was missing, expired or
	// rejected with HTTP 401.
	KindUnauthenticated
	// KindRateLimited means the upstream answered HTTP 429.
	KindRateLimited
	// KindPaymentRequired means the upstream answered HTTP 402.
	KindPaymentRequired
	// KindUpstream is any other non-2xx status.
	KindUpstream
	// KindLogical is a well-formed 2xx response carrying an errors payload.
	KindLogical
	// KindDecode means the response body was not the expected JSON.
	KindDecode
	// KindInvalidRequest means the request was rejected before sending.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindPaymentRequired:
		return "payment_required"
	case KindUpstream:
		return "upstream"
	case KindLogical:
		return "logical"
	case KindDecode:
		return "decode"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// UpstreamError is one entry of a GraphQL-style errors array.
type UpstreamError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Fault is the uniform failure description returned by every client in this
// module. Use errors.As to recover it from a wrapped error.
type Fault struct {
	Kind Kind
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	// Detail is the upstream's own explanation, when it gave one.
	Detail string
	// Errors holds the upstream errors array for KindLogical faults.
	Errors []UpstreamError
	// Err is the underlying cause, if any.
	Err error
}

func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Kind.String())
	if f.Status != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", f.Status)
	}
	if msgs := f.ErrorMessages(); len(msgs) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(msgs, "; "))
	} else if f.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Detail)
	}
	if f.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

func (f *Fault) Unwrap() error { return f.Err }

// ErrorMessages returns the message of every upstream error entry.
func (f *Fault) ErrorMessages() []string {
	if len(f.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

// Messages maps fault kinds to user-facing text.
type Messages map[Kind]string

// DefaultMessages is the user-facing text used when a caller supplies no
// override for a kind.
var DefaultMessages = Messages{
	KindTransport:       "The service could not be reached. Please check your connection and try again.",
	KindUnauthenticated: "Please sign in to continue.",
	KindRateLimited:     "Too many requests. Please wait a moment and try again.",
	KindPaymentRequired: "The store's API access requires an active billing plan.",
	KindDecode:          "The service returned an unexpected response.",
	KindInvalidRequest:  "The request was invalid.",
}

// Message returns a short human-readable description using DefaultMessages.
func (f *Fault) Message() string {
	return f.MessageWith(nil)
}

// MessageWith returns a short human-readable description, preferring
// overrides over DefaultMessages. Upstream and logical faults surface the
// upstream's own wording when no override exists.
func (f *Fault) MessageWith(overrides Messages) string {
	if msg, ok := overrides[f.Kind]; ok {
		return msg
	}
	switch f.Kind {
	case KindUpstream:
		if f.Detail != "" {
			return f.Detail
		}
		return fmt.Sprintf("The service returned an error (HTTP %d).", f.Status)
	case KindLogical:
		if msgs := f.ErrorMessages(); len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
		if f.Detail != "" {
			return f.Detail
		}
		return "The service reported an error."
	case KindInvalidRequest:
		if f.Detail != "" {
			return f.Detail
		}
	}
	if msg, ok := DefaultMessages[f.Kind]; ok {
		return msg
	}
	return "Something went wrong."
}

// AsFault converts any error into a Fault. Errors that already wrap a Fault
// return it; context errors become transport faults; anything else is an
// invalid request.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Kind: KindTransport, Err: err}
	}
	return &Fault{Kind: KindInvalidRequest, Detail: err.Error(), Err: err}
}

// Describe returns the user-facing text for err, never the raw error chain.
func Describe(err error, overrides Messages) string {
	if err == nil {
		return ""
	}
	return AsFault(err).MessageWith(overrides)
}

// IsKind reports whether err carries a Fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

// Classify maps a non-2xx status and its body to a Fault. The body is
// searched for the conventional detail fields so the upstream's own wording
// can be surfaced.
func Classify(status int, body []byte) *Fault {
	f := &Fault{Status: status, Detail: ExtractDetail(body)}
	switch status {
	case http.StatusUnauthorized:
		f.Kind = KindUnauthenticated
	case http.StatusTooManyRequests:
		f.Kind = KindRateLimited
	case http.StatusPaymentRequired:
		f.Kind = KindPaymentRequired
	default:
		f.Kind = KindUpstream
	}
	return f
}

// ExtractDetail pulls a human-readable message out of an error body. It
// understands {"detail": "..."}, {"detail": {"message": "..."}},
// {"error": "..."}, {"error": {"message": "..."}}, {"message": "..."},
// {"errors": "..."} and {"errors": [{"message": "..."}]}. It returns "" when nothing matches.
func ExtractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if msg := messageFrom(raw); msg != "" {
			return msg
		}
	}
	if raw, ok := fields["errors"]; ok {
		if msg := messageFrom(raw); msg != "" {
			return msg
		}
		var errs []UpstreamError
		if json.Unmarshal(raw, &errs) == nil && len(errs) > 0 {
			return errs[0].Message
		}
	}
	return ""
}

// messageFrom reads either a JSON string or an object with a message field.
func messageFrom(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}
