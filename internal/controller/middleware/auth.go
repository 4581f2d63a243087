// Package middleware contains HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"runbox/internal/auth"
	"runbox/pkg/api"
)

// requesterKey is the context key for the authenticated caller.
type requesterKey struct{}

// tokenVerifier validates a bearer token and resolves the caller.
type tokenVerifier interface {
	Verify(token string) (*auth.Requester, error)
}

// Auth validates the Authorization header and stores the requester in the
// request context. Every job and session operation is scoped to the caller.
func Auth(tokens tokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w)
				return
			}

			requester, err := tokens.Verify(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), requesterKey{}, requester)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequesterFromContext extracts the authenticated caller from the context.
func RequesterFromContext(ctx context.Context) (*auth.Requester, bool) {
	v, ok := ctx.Value(requesterKey{}).(*auth.Requester)
	return v, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: "Unauthorized",
		Code:  "401",
	})
}
