package authz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/contextkeys"
	"github.com/grantbase/grantbase/pkg/errs"
	"github.com/grantbase/grantbase/pkg/httputil"
)

// ActorGetter loads actors by id, used when an administrator checks
// authorization on behalf of another actor
type ActorGetter interface {
	GetActor(ctx context.Context, actorID string) (*auth.Actor, error)
}

// Handlers provides HTTP handlers for grant management and authorization
// checks
type Handlers struct {
	store    *Store
	resolver *Resolver
	actors   ActorGetter
}

// NewHandlers creates new authorization handlers
func NewHandlers(store *Store, resolver *Resolver, actors ActorGetter) *Handlers {
	return &Handlers{
		store:    store,
		resolver: resolver,
		actors:   actors,
	}
}

// RegisterRoutes registers all authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissionGrants", h.CreateGrant).Methods("POST")
	router.HandleFunc("/permissionGrants", h.ListGrants).Methods("GET")
	router.HandleFunc("/permissionGrants/{id}", h.GetGrant).Methods("GET")
	router.HandleFunc("/permissionGrants/{id}", h.DeleteGrant).Methods("DELETE")

	router.HandleFunc("/authorization/check", h.Check).Methods("POST")
}

// CreateGrant creates a permission grant. Administrator only. The body is
// validated against every grant variant before anything touches the store.
func (h *Handlers) CreateGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := h.requireAdministrator(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	grant, err := h.store.Create(ctx, body, authCtx.Actor.ID)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteCreated(w, grant)
}

// ListGrants lists grants with optional filtering. Administrator only.
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdministrator(w, r); !ok {
		return
	}

	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	filter := Filter{
		GranteeActorID: httputil.ParseQueryString(r, "granteeActorId", ""),
		GranteeGroupID: httputil.ParseQueryString(r, "granteeGroupId", ""),
	}
	if kind := httputil.ParseQueryString(r, "contextEntityKind", ""); kind != "" {
		if !ValidEntityKind(EntityKind(kind)) {
			httputil.WriteErr(w, errs.NewValidation("unknown contextEntityKind: "+kind))
			return
		}
		filter.ContextEntityKind = EntityKind(kind)
	}

	grants, total, err := h.store.List(ctx, filter, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, httputil.Bundle[PermissionGrant]{
		Entries: grants,
		Total:   total,
	})
}

// GetGrant retrieves a grant by id. Administrator only.
func (h *Handlers) GetGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdministrator(w, r); !ok {
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	grant, err := h.store.Get(ctx, id)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, grant)
}

// DeleteGrant removes a grant and returns the removed record. Administrator
// only.
func (h *Handlers) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdministrator(w, r); !ok {
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	grant, err := h.store.Delete(ctx, id)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, grant)
}

// checkRequest carries an authorization question. The target key field name
// varies by entity kind, so the body is decoded in two passes.
type checkRequest struct {
	ActorID           string     `json:"actorId,omitempty"`
	Verb              Verb       `json:"verb"`
	ContextEntityKind EntityKind `json:"contextEntityKind"`
	Target            TargetKey  `json:"-"`
}

// checkResponse answers one
type checkResponse struct {
	ActorID           string     `json:"actorId"`
	Verb              Verb       `json:"verb"`
	ContextEntityKind EntityKind `json:"contextEntityKind"`
	Allowed           bool       `json:"allowed"`
	CheckedAt         time.Time  `json:"checkedAt"`
}

// Check answers an authorization question for the calling actor, or, for
// administrators, any actor named in the body
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := getAuthContext(r)
	if authCtx == nil || authCtx.Actor == nil {
		httputil.WriteErr(w, errs.NewUnauthorized("authentication required"))
		return
	}

	req, err := parseCheckRequest(r)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	actor := authCtx.Actor
	if req.ActorID != "" && req.ActorID != actor.ID {
		if !actor.IsAdministrator {
			httputil.WriteErr(w, errs.NewUnauthorized("only administrators may check other actors"))
			return
		}
		actor, err = h.actors.GetActor(ctx, req.ActorID)
		if err != nil {
			httputil.WriteErr(w, err)
			return
		}
	}

	allowed, err := h.resolver.IsAuthorized(ctx, actor, req.Verb, req.ContextEntityKind, req.Target)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}

	httputil.WriteSuccess(w, checkResponse{
		ActorID:           actor.ID,
		Verb:              req.Verb,
		ContextEntityKind: req.ContextEntityKind,
		Allowed:           allowed,
		CheckedAt:         time.Now().UTC(),
	})
}

func parseCheckRequest(r *http.Request) (*checkRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, errs.NewValidation("request body must be a JSON object")
	}

	var req checkRequest
	if raw, ok := fields["actorId"]; ok {
		if err := json.Unmarshal(raw, &req.ActorID); err != nil {
			return nil, errs.NewValidation("actorId must be a string")
		}
	}
	if err := json.Unmarshal(fields["verb"], &req.Verb); err != nil || !ValidVerb(req.Verb) {
		return nil, errs.NewValidation("verb must be one of view, create, edit, delete, manage")
	}
	if err := json.Unmarshal(fields["contextEntityKind"], &req.ContextEntityKind); err != nil {
		return nil, errs.NewValidation("contextEntityKind is required")
	}
	desc, ok := DescriptorFor(req.ContextEntityKind)
	if !ok {
		return nil, errs.NewValidation("unknown contextEntityKind: " + string(req.ContextEntityKind))
	}

	target, err := parseTargetKey(desc, fields)
	if err != nil {
		return nil, errs.NewValidation(err.Error())
	}
	req.Target = target
	return &req, nil
}

func (h *Handlers) requireAdministrator(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, bool) {
	authCtx := getAuthContext(r)
	if authCtx == nil || authCtx.Actor == nil {
		httputil.WriteErr(w, errs.NewUnauthorized("authentication required"))
		return nil, false
	}
	if !authCtx.Actor.IsAdministrator {
		httputil.WriteErr(w, errs.NewUnauthorized("administrator access required"))
		return nil, false
	}
	return authCtx, true
}

func getAuthContext(r *http.Request) *auth.AuthContext {
	if authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext); ok {
		return authCtx
	}
	return nil
}
