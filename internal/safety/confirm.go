package safety

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const tokenTTL = 5 * time.Minute

// pendingConfirmation holds the metadata for an outstanding confirmation token.
type pendingConfirmation struct {
	tool      string
	resource  string
	createdAt time.Time
}

// ConfirmationTracker manages single-use, time-limited confirmation tokens for
// tools that publish data to a third party. A token only confirms the exact
// tool and resource it was issued for.
type ConfirmationTracker struct {
	gated map[string]struct{}
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]pendingConfirmation
}

// NewConfirmationTracker returns a ConfirmationTracker gating the given tool
// names. A nil or empty slice means no tools require confirmation.
func NewConfirmationTracker(gatedTools []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		gated:  make(map[string]struct{}, len(gatedTools)),
		now:    time.Now,
		tokens: make(map[string]pendingConfirmation),
	}
	for _, tool := range gatedTools {
		ct.gated[tool] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether tool is gated.
func (ct *ConfirmationTracker) NeedsConfirmation(tool string) bool {
	_, ok := ct.gated[tool]
	return ok
}

// sweepExpired removes all expired tokens. The caller must hold ct.mu.
func (ct *ConfirmationTracker) sweepExpired() {
	now := ct.now()
	for token, pending := range ct.tokens {
		if now.Sub(pending.createdAt) > tokenTTL {
			delete(ct.tokens, token)
		}
	}
}

// RequestConfirmation issues a token for tool acting on resource. Tokens are
// valid for 5 minutes and are single-use.
func (ct *ConfirmationTracker) RequestConfirmation(tool, resource string) string {
	token := generateToken()

	ct.mu.Lock()
	ct.sweepExpired()
	ct.tokens[token] = pendingConfirmation{
		tool:      tool,
		resource:  resource,
		createdAt: ct.now(),
	}
	ct.mu.Unlock()

	return token
}

// Confirm consumes token and reports whether it was issued for the same tool
// and resource and has not expired. The token is spent even when the
// tool or resource does not match.
func (ct *ConfirmationTracker) Confirm(token, tool, resource string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pending, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(pending.createdAt) > tokenTTL {
		return false
	}
	return pending.tool == tool && pending.resource == resource
}

// generateToken returns a cryptographically random hex-encoded token string.
func generateToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b[:])
}
