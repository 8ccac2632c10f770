package middleware

import (
	"net/http"

	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/contextkeys"
	"github.com/grantbase/grantbase/pkg/httputil"
)

// PermissionsMiddleware computes the actor's effective grant snapshot once
// per request and stores it in the context. Handlers that answer several
// authorization questions per request resolve against the snapshot instead
// of re-reading grants.
type PermissionsMiddleware struct {
	resolver *authz.Resolver
}

// NewPermissionsMiddleware creates a new permissions middleware
func NewPermissionsMiddleware(resolver *authz.Resolver) *PermissionsMiddleware {
	return &PermissionsMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with snapshot computation. Requests without
// an auth context pass through; the snapshot is only meaningful for an
// authenticated actor.
func (m *PermissionsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if authCtx == nil || authCtx.Actor == nil {
			next.ServeHTTP(w, r)
			return
		}

		snap, err := m.resolver.Snapshot(r.Context(), authCtx.Actor)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		ctx := contextkeys.WithPermissions(r.Context(), snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSnapshot extracts the permission snapshot from a request
func GetSnapshot(r *http.Request) *authz.Snapshot {
	snap, ok := r.Context().Value(contextkeys.PermissionsKey).(*authz.Snapshot)
	if !ok {
		return nil
	}
	return snap
}
