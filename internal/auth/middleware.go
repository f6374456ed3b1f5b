// Package auth provides HTTP middleware for bearer token authentication.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// BearerToken returns the token carried by an "Authorization: Bearer <token>"
// header, or "" when the header is absent or malformed. The prefix is
// case-sensitive and must be followed by exactly one space.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return ""
	}
	return h[len(bearerPrefix):]
}

// NewAuthMiddleware returns an HTTP middleware that enforces bearer token
// authentication. If the configured token is empty, authentication is disabled
// and all requests pass through to the next handler unconditionally.
//
// When enabled, any missing header, wrong token, lowercase prefix or empty
// token value results in a 401 Unauthorized response and the next handler is
// never called. Rejections are logged at warn level without the token.
func NewAuthMiddleware(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := BearerToken(r)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("rejected unauthenticated request",
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("path", r.URL.Path),
					zap.Bool("header_present", r.Header.Get("Authorization") != ""),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
