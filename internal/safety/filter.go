// Package safety provides handle filtering, confirmation and audit logging for
// storefront tool invocations that read from or publish to third parties.
package safety

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotAllowed is returned by Filter.Check for a rejected name.
var ErrNotAllowed = errors.New("not allowed by configuration")

// Filter controls access to catalog handles using an allowlist and a denylist.
// Glob patterns (as understood by path.Match) are supported in both lists and
// matching ignores case, since storefront handles are lowercase slugs.
//
// Rules:
//   - If both lists are empty (or nil), every handle is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, a handle must match at least one
//     allowlist pattern to be permitted.
//
// A nil *Filter allows everything.
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter from the provided allowlist and denylist
// pattern slices. Either or both may be nil or empty.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: lowerAll(allowlist),
		denylist:  lowerAll(denylist),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// IsAllowed reports whether name is permitted by this filter.
func (f *Filter) IsAllowed(name string) bool {
	if f == nil {
		return true
	}
	name = strings.ToLower(name)

	for _, pattern := range f.denylist {
		if matchGlob(pattern, name) {
			return false
		}
	}

	if len(f.allowlist) == 0 {
		return true
	}

	for _, pattern := range f.allowlist {
		if matchGlob(pattern, name) {
			return true
		}
	}

	return false
}

// Check returns an error wrapping ErrNotAllowed when name is rejected.
func (f *Filter) Check(name string) error {
	if f.IsAllowed(name) {
		return nil
	}
	return fmt.Errorf("handle %q: %w", name, ErrNotAllowed)
}

// matchGlob returns true when name matches the given glob pattern.
// Malformed patterns are treated as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
