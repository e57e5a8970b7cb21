package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

type contextKey string

const callerKey contextKey = "escrow-caller"

// Claims are the JWT claims the API accepts. Address is the on-ledger
// identity all role checks run against.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate validates a Bearer JWT signed with the shared secret and
// stores the caller address on the request context. Paths listed in
// skipPaths pass through unauthenticated.
func Authenticate(next http.Handler, secret []byte, skipPaths []string, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi-auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing Authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid Authorization header format"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			log.WithError(err).Warn("token validation failed")
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}
		if strings.TrimSpace(claims.Address) == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("token carries no address"))
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, strings.TrimSpace(claims.Address))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken mints a token for the given address. Used by tests and
// operational tooling.
func IssueToken(secret []byte, address string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Address: address})
	return token.SignedString(secret)
}

// DevCallerHeader establishes the caller identity from the
// X-Caller-Address header without any verification. It exists for local
// development only and must be wired explicitly; it is never a fallback.
func DevCallerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := strings.TrimSpace(r.Header.Get("X-Caller-Address")); v != "" {
			r = r.WithContext(context.WithValue(r.Context(), callerKey, v))
		}
		next.ServeHTTP(w, r)
	})
}

// callerFrom extracts the caller address established by Authenticate or
// DevCallerHeader. Without either middleware no request carries an
// identity and every mutating route is rejected.
func callerFrom(r *http.Request) (string, bool) {
	if v, ok := r.Context().Value(callerKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
