package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// AnonymousActor is recorded when authentication is disabled.
const AnonymousActor = "anonymous"

// APIKeyHeader is accepted as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

type actorKey struct{}

// AuthMiddleware resolves the caller's API key to an actor name and stores
// it in the request context for auditing. A nil provider lets every request
// through as AnonymousActor.
func AuthMiddleware(provider ports.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider == nil {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), AnonymousActor)))
				return
			}

			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeUnauthorized(w, "Missing API key")
				return
			}

			authCtx, err := provider.Authenticate(r.Context(), apiKey)
			if err != nil {
				AddError(r.Context(), err)
				writeUnauthorized(w, "Invalid API key")
				return
			}

			AddLogField(r.Context(), "actor", authCtx.User)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), authCtx.User)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(auth)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"status": "danger", "message": msg})
}

// WithActor returns a context carrying the acting user.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor retrieves the acting user from context, or AnonymousActor.
func GetActor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return AnonymousActor
}
