package collaborative

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/contextkeys"
	"github.com/grantbase/grantbase/pkg/errs"
	"github.com/grantbase/grantbase/pkg/httputil"
)

// Handlers provides HTTP handlers for funder collaboratives. Inviting and
// managing members requires MANAGE on the collaborative funder; accepting
// an invitation requires MANAGE on the invited funder. Administrators pass
// through the resolver's bypass in both cases.
type Handlers struct {
	store    *Store
	resolver *authz.Resolver
}

// NewHandlers creates new collaborative handlers
func NewHandlers(store *Store, resolver *authz.Resolver) *Handlers {
	return &Handlers{store: store, resolver: resolver}
}

// RegisterRoutes registers all collaborative routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/funderCollaboratives", h.CreateCollaborative).Methods("POST")
	router.HandleFunc("/funderCollaboratives", h.ListCollaboratives).Methods("GET")

	router.HandleFunc("/funderCollaboratives/{shortCode}/invitations", h.Invite).Methods("POST")
	router.HandleFunc("/funderCollaboratives/{shortCode}/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/funderCollaboratives/{shortCode}/invitations/{funder}", h.Respond).Methods("PATCH")

	router.HandleFunc("/funderCollaboratives/{shortCode}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/funderCollaboratives/{shortCode}/members/{funder}", h.RemoveMember).Methods("DELETE")
}

type createCollaborativeRequest struct {
	ShortCode string `json:"shortCode"`
	Name      string `json:"name"`
}

// CreateCollaborative flags a funder short code as a collaborative.
// Administrator only: it mints a new protected entity.
func (h *Handlers) CreateCollaborative(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	if !actor.IsAdministrator {
		httputil.WriteErr(w, errs.NewUnauthorized("administrator access required"))
		return
	}

	var req createCollaborativeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	c, err := h.store.CreateCollaborative(ctx, req.ShortCode, req.Name, actor.ID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteCreated(w, c)
}

// ListCollaboratives lists collaboratives. Any authenticated actor may read
// the directory.
func (h *Handlers) ListCollaboratives(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.caller(w, r); !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	collaboratives, total, err := h.store.ListCollaboratives(ctx, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[Collaborative]{
		Entries: collaboratives,
		Total:   total,
	})
}

type inviteRequest struct {
	FunderShortCode string `json:"funderShortCode"`
}

// Invite creates a pending invitation
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := mux.Vars(r)["shortCode"]

	actor, ok := h.requireManageFunder(w, r, shortCode)
	if !ok {
		return
	}

	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := h.store.Invite(ctx, shortCode, req.FunderShortCode, actor.ID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteCreated(w, inv)
}

// ListInvitations lists a collaborative's invitations, history included
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := mux.Vars(r)["shortCode"]

	if _, ok := h.requireManageFunder(w, r, shortCode); !ok {
		return
	}

	invitations, err := h.store.ListInvitations(ctx, shortCode)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[Invitation]{
		Entries: invitations,
		Total:   len(invitations),
	})
}

type respondRequest struct {
	Status InvitationStatus `json:"status"`
}

// Respond accepts or rejects a pending invitation. The responder must hold
// MANAGE on the invited funder, not on the collaborative.
func (h *Handlers) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	shortCode := vars["shortCode"]
	funder := vars["funder"]

	if _, ok := h.requireManageFunder(w, r, funder); !ok {
		return
	}

	var req respondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := h.store.Respond(ctx, shortCode, funder, req.Status)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, inv)
}

// ListMembers lists a collaborative's members. Any authenticated actor may
// read membership; it is the directory counterpart of the resolver walk.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := mux.Vars(r)["shortCode"]

	if _, ok := h.caller(w, r); !ok {
		return
	}

	members, err := h.store.ListMembers(ctx, shortCode)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[Membership]{
		Entries: members,
		Total:   len(members),
	})
}

// RemoveMember drops a member from a collaborative
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	shortCode := vars["shortCode"]
	funder := vars["funder"]

	if _, ok := h.requireManageFunder(w, r, shortCode); !ok {
		return
	}

	if err := h.store.RemoveMember(ctx, shortCode, funder); err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *Handlers) caller(w http.ResponseWriter, r *http.Request) (*auth.Actor, bool) {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok || authCtx == nil || authCtx.Actor == nil {
		httputil.WriteErr(w, errs.NewUnauthorized("authentication required"))
		return nil, false
	}
	return authCtx.Actor, true
}

// requireManageFunder admits administrators and actors holding MANAGE on
// the named funder
func (h *Handlers) requireManageFunder(w http.ResponseWriter, r *http.Request, funderShortCode string) (*auth.Actor, bool) {
	actor, ok := h.caller(w, r)
	if !ok {
		return nil, false
	}

	allowed, err := h.resolver.IsAuthorized(r.Context(), actor,
		authz.VerbManage, authz.EntityFunder, authz.CodeKey(funderShortCode))
	if err != nil {
		httputil.WriteErr(w, err)
		return nil, false
	}
	if !allowed {
		httputil.WriteErr(w, errs.NewUnauthorized("manage access to funder "+funderShortCode+" required"))
		return nil, false
	}
	return actor, true
}
