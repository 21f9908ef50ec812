package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AuthMiddleware guards the mutating control endpoints with a bearer token
// checked against a bcrypt hash.
type AuthMiddleware struct {
	hash   []byte
	logger zerolog.Logger

	// verified caches the digest of the last accepted token so bcrypt runs
	// once per token rather than once per request.
	verified atomic.Pointer[[sha256.Size]byte]
}

// NewAuthMiddleware creates a new auth middleware. An empty hash disables
// the check.
func NewAuthMiddleware(tokenHash string, logger zerolog.Logger) *AuthMiddleware {
	if tokenHash == "" {
		logger.Warn().Msg("CONTROL_TOKEN_HASH not set, control endpoints are unauthenticated")
	}
	return &AuthMiddleware{hash: []byte(tokenHash), logger: logger}
}

// RequireAuth middleware verifies the bearer token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.hash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if !m.valid(token) {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "invalid_token").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("rejected control request")
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) valid(token string) bool {
	digest := sha256.Sum256([]byte(token))
	if last := m.verified.Load(); last != nil && subtle.ConstantTimeCompare(last[:], digest[:]) == 1 {
		return true
	}

	if bcrypt.CompareHashAndPassword(m.hash, []byte(token)) != nil {
		return false
	}
	m.verified.Store(&digest)
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "msg": message})
}
