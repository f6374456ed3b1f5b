// Package conversions sends server-side marketing events to the social
// platform's Conversions API.
package conversions

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jamesprial/storefront-mcp/internal/storefront"
)

// DefaultActionSource is used when an Event leaves ActionSource empty.
const DefaultActionSource = "website"

// UserData identifies the shopper. Email, Phone, FirstName and LastName are
// personal data: they are normalised and SHA-256 hashed before they leave
// the process. The remaining fields are sent as given.
type UserData struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	ClientIP  string
	UserAgent string
	// FBP and FBC are the browser and click id cookies.
	FBP string
	FBC string
}

// Event is a single conversion event.
type Event struct {
	Name string
	// ID deduplicates against the browser pixel. A random UUID is used when
	// empty.
	ID           string
	Time         time.Time
	SourceURL    string
	ActionSource string
	User         UserData
	Custom       map[string]any
}

// ProductContent is the catalog-facing description of a viewed or bought
// product.
type ProductContent struct {
	ProductIDs []string
	Name       string
	Value      float64
	Currency   string
}

// CustomData renders c as custom_data, formatting product ids for the ad
// catalog.
func (c ProductContent) CustomData(fullGID bool) map[string]any {
	ids := make([]string, len(c.ProductIDs))
	for i, id := range c.ProductIDs {
		ids[i] = storefront.FormatProductID(id, fullGID)
	}
	out := map[string]any{
		"content_ids":  ids,
		"content_type": "product",
	}
	if c.Name != "" {
		out["content_name"] = c.Name
	}
	if c.Currency != "" {
		out["value"] = c.Value
		out["currency"] = c.Currency
	}
	return out
}

type wireUserData struct {
	Em              string `json:"em,omitempty"`
	Ph              string `json:"ph,omitempty"`
	Fn              string `json:"fn,omitempty"`
	Ln              string `json:"ln,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	Fbp             string `json:"fbp,omitempty"`
	Fbc             string `json:"fbc,omitempty"`
}

type wireEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id,omitempty"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       wireUserData   `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

type eventsPayload struct {
	Data          []wireEvent `json:"data"`
	TestEventCode string      `json:"test_event_code,omitempty"`
}

// HashPII returns the lowercase hex SHA-256 of the trimmed, lowercased value,
// or "" for a blank value.
func HashPII(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func (u UserData) wire() wireUserData {
	return wireUserData{
		Em:              HashPII(u.Email),
		Ph:              HashPII(u.Phone),
		Fn:              HashPII(u.FirstName),
		Ln:              HashPII(u.LastName),
		ClientIPAddress: u.ClientIP,
		ClientUserAgent: u.UserAgent,
		Fbp:             u.FBP,
		Fbc:             u.FBC,
	}
}
