package membership

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/contextkeys"
	"github.com/grantbase/grantbase/pkg/errs"
	"github.com/grantbase/grantbase/pkg/httputil"
)

// Handlers provides HTTP handlers for ephemeral membership management.
// All routes are administrator only; memberships are operational state, not
// something actors self-manage.
type Handlers struct {
	store *Store
}

// NewHandlers creates new membership handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers all membership routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ephemeralMemberships", h.CreateMembership).Methods("POST")
	router.HandleFunc("/ephemeralMemberships", h.ListMemberships).Methods("GET")
	router.HandleFunc("/ephemeralMemberships/{id}", h.DeleteMembership).Methods("DELETE")
}

type createMembershipRequest struct {
	ActorID  string    `json:"actorId"`
	GroupID  string    `json:"groupId"`
	NotAfter time.Time `json:"notAfter"`
}

// CreateMembership adds an actor to a group until notAfter
func (h *Handlers) CreateMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := requireAdministrator(w, r)
	if !ok {
		return
	}

	var req createMembershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := h.store.Create(ctx, req.ActorID, req.GroupID, req.NotAfter, authCtx.Actor.ID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteCreated(w, m)
}

// ListMemberships lists memberships, optionally filtered by actor
func (h *Handlers) ListMemberships(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdministrator(w, r); !ok {
		return
	}

	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}
	actorID := httputil.ParseQueryString(r, "actorId", "")

	memberships, total, err := h.store.List(ctx, actorID, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[EphemeralMembership]{
		Entries: memberships,
		Total:   total,
	})
}

// DeleteMembership hard-deletes a membership row
func (h *Handlers) DeleteMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdministrator(w, r); !ok {
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func requireAdministrator(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, bool) {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok || authCtx == nil || authCtx.Actor == nil {
		httputil.WriteErr(w, errs.NewUnauthorized("authentication required"))
		return nil, false
	}
	if !authCtx.Actor.IsAdministrator {
		httputil.WriteErr(w, errs.NewUnauthorized("administrator access required"))
		return nil, false
	}
	return authCtx, true
}
