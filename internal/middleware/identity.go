// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/glamlab/stylist-gateway/internal/httputil"
	"github.com/glamlab/stylist-gateway/internal/initdata"
	"github.com/glamlab/stylist-gateway/internal/logging"
)

// InitDataHeader carries the signed payload from the mini-app client.
const InitDataHeader = "X-Telegram-Init-Data"

type identityContextKey struct{}

// IdentityMiddleware resolves the request identity: a verified signed payload,
// a previously minted session token, or - when the guest policy allows it -
// an anonymous fallback.
type IdentityMiddleware struct {
	botToken    string
	jwtSecret   []byte
	allowGuests bool
	logger      *logging.Logger
}

// NewIdentityMiddleware creates the identity middleware. allowGuests is the
// explicit policy switch for unauthenticated traffic: when false, requests
// without a valid signature or session are rejected outright.
func NewIdentityMiddleware(botToken string, jwtSecret []byte, allowGuests bool, logger *logging.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{
		botToken:    botToken,
		jwtSecret:   jwtSecret,
		allowGuests: allowGuests,
		logger:      logger,
	}
}

// Handler returns the middleware handler.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.resolve(r)
		if err != nil {
			if !m.allowGuests {
				m.logger.WithContext(r.Context()).WithError(err).Warn("authentication failed")
				httputil.WriteError(w, err, false)
				return
			}
			// Degraded guest tier: invalid or missing credentials become an
			// anonymous identity. Only the outcome is logged, never the payload.
			m.logger.WithContext(r.Context()).Debug("serving request as guest")
			identity = initdata.Anonymous(clientHint(r))
		}

		ctx := ContextWithIdentity(r.Context(), identity)
		ctx = logging.WithIdentity(ctx, identity.Key, string(identity.Provenance))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve tries the signed payload first, then a session token.
func (m *IdentityMiddleware) resolve(r *http.Request) (*initdata.Identity, error) {
	if raw := r.Header.Get(InitDataHeader); raw != "" {
		return initdata.Verify(raw, m.botToken)
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return ParseSessionToken(strings.TrimPrefix(authHeader, "Bearer "), m.jwtSecret)
	}

	return nil, missingCredentials()
}

// ContextWithIdentity stores the identity in ctx.
func ContextWithIdentity(ctx context.Context, identity *initdata.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the request identity, or nil.
func IdentityFromContext(ctx context.Context) *initdata.Identity {
	if identity, ok := ctx.Value(identityContextKey{}).(*initdata.Identity); ok {
		return identity
	}
	return nil
}

// clientHint derives a stable guest key from connection-level information so
// repeat visits from the same client share credits and history.
func clientHint(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
