// Package middleware holds the HTTP middleware chain: session extraction,
// request logging, rate limiting, CORS, and metrics.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	clientIPKey  contextKey = "client_ip"
)

// HeaderSessionID carries the browser-generated analysis session ID.
const HeaderSessionID = "X-Session-ID"

const maxSessionIDLen = 128

// ContextGetSessionID returns the session ID set by Session, or "".
func ContextGetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// ContextGetClientIP returns the client IP set by Session, or "".
func ContextGetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// Session extracts the session ID header and the client IP into the request
// context.  Requests without a session header pass through; handlers that
// need a session reject them with a 400.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := strings.TrimSpace(r.Header.Get(HeaderSessionID))
		if len(sid) > maxSessionIDLen {
			sid = sid[:maxSessionIDLen]
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		ctx = context.WithValue(ctx, clientIPKey, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop, the address the original
// client used, over the proxy's RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
