// Package httpauth glues a net/http routing layer to the auth core: it
// extracts bearer tokens, asks the core for an access decision and attaches
// the authenticated subject to the request context. Routing itself stays
// with the consumer.
package httpauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gatekit.org/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authorizer is the slice of the auth service this middleware needs.
type Authorizer interface {
	AuthorizeRequest(ctx context.Context, tokenString, permission string) (auth.AccessDecision, error)
}

// PermissionFunc resolves the permission guarding a request. Returning ""
// lets the request through unauthenticated.
type PermissionFunc func(*http.Request) string

// Middleware authenticates and authorizes requests before handing them to
// next. Token failures map to 401 (expired tokens carry a WWW-Authenticate
// hint so clients run the refresh flow); denials map to 403.
func Middleware(svc Authorizer, permissionFor PermissionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perm := ""
			if permissionFor != nil {
				perm = permissionFor(r)
			}
			if perm == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := ExtractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			decision, err := svc.AuthorizeRequest(r.Context(), token, perm)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if !decision.Allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := auth.ContextWithSubject(r.Context(), decision.Subject)
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken pulls the token out of an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
