package sponsorship

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/contextkeys"
	"github.com/grantbase/grantbase/pkg/errs"
	"github.com/grantbase/grantbase/pkg/httputil"
)

// Handlers provides HTTP handlers for fiscal sponsorship edges. Every route
// requires MANAGE on the sponsee changemaker; administrators pass through
// the resolver's bypass.
type Handlers struct {
	store    *Store
	resolver *authz.Resolver
}

// NewHandlers creates new sponsorship handlers
func NewHandlers(store *Store, resolver *authz.Resolver) *Handlers {
	return &Handlers{store: store, resolver: resolver}
}

// RegisterRoutes registers all sponsorship routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/changemakers/{sponsee}/fiscalSponsors/{sponsor}", h.UpsertSponsor).Methods("PUT")
	router.HandleFunc("/changemakers/{sponsee}/fiscalSponsors/{sponsor}", h.RemoveSponsor).Methods("DELETE")
	router.HandleFunc("/changemakers/{id}/fiscalSponsors", h.ListSponsors).Methods("GET")
}

// UpsertSponsor records a sponsorship edge; repeat calls are no-ops
func (h *Handlers) UpsertSponsor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sponseeID, sponsorID, ok := parseEdgePath(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireManage(w, r, sponseeID)
	if !ok {
		return
	}

	edge, err := h.store.Upsert(ctx, sponseeID, sponsorID, actor.ID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, edge)
}

// RemoveSponsor deletes a sponsorship edge
func (h *Handlers) RemoveSponsor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sponseeID, sponsorID, ok := parseEdgePath(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireManage(w, r, sponseeID); !ok {
		return
	}

	edge, err := h.store.Remove(ctx, sponseeID, sponsorID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, edge)
}

// ListSponsors lists a changemaker's sponsorship edges
func (h *Handlers) ListSponsors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sponseeID, err := pathInt64(r, "id")
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	if _, ok := h.requireManage(w, r, sponseeID); !ok {
		return
	}

	edges, err := h.store.ListEdges(ctx, sponseeID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[Edge]{
		Entries: edges,
		Total:   len(edges),
	})
}

// requireManage admits administrators and actors holding MANAGE on the
// sponsee changemaker
func (h *Handlers) requireManage(w http.ResponseWriter, r *http.Request, sponseeID int64) (*auth.Actor, bool) {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok || authCtx == nil || authCtx.Actor == nil {
		httputil.WriteErr(w, errs.NewUnauthorized("authentication required"))
		return nil, false
	}

	allowed, err := h.resolver.IsAuthorized(r.Context(), authCtx.Actor,
		authz.VerbManage, authz.EntityChangemaker, authz.IntKey(sponseeID))
	if err != nil {
		httputil.WriteErr(w, err)
		return nil, false
	}
	if !allowed {
		httputil.WriteErr(w, errs.NewUnauthorized("manage access to the changemaker required"))
		return nil, false
	}
	return authCtx.Actor, true
}

func parseEdgePath(w http.ResponseWriter, r *http.Request) (sponseeID, sponsorID int64, ok bool) {
	sponseeID, err := pathInt64(r, "sponsee")
	if err != nil {
		httputil.WriteErr(w, err)
		return 0, 0, false
	}
	sponsorID, err = pathInt64(r, "sponsor")
	if err != nil {
		httputil.WriteErr(w, err)
		return 0, 0, false
	}
	return sponseeID, sponsorID, true
}

func pathInt64(r *http.Request, key string) (int64, error) {
	raw := mux.Vars(r)[key]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewValidation(key + " must be a positive integer")
	}
	return id, nil
}
