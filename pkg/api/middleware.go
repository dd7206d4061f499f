package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/nlpipe/nlpipe/pkg/auth"
)

// Context key type for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// ClaimsFromContext retrieves verified token claims from the request
// context. Returns nil if no claims are present.
//
// This function should only be called within handler code that runs after
// the TokenAuth middleware has processed the request. In routes without
// TokenAuth, or when authentication is disabled, it returns nil.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractToken extracts the token from a "Token <jwt>" Authorization
// header, the scheme every NLPipe client sends.
// Returns the token string and true if successful, or empty string and
// false if the header is missing or malformed.
func extractToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Token") {
		return "", false
	}

	return parts[1], true
}

// TokenAuth is a middleware that validates "Token" scheme credentials in
// the Authorization header. If valid, the claims are stored in the request
// context. If invalid or missing, it returns 403 Forbidden with a
// "Login Failed" body, which is what existing clients match on.
func TokenAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Login Failed: no authentication supplied", http.StatusForbidden)
				return
			}

			tokenString, ok := extractToken(r)
			if !ok {
				http.Error(w, "Login Failed: incorrectly formatted authorization header", http.StatusForbidden)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				http.Error(w, "Login Failed: invalid token", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
