package authz

import (
	"encoding/json"
	"fmt"
	"time"
)

// Verb represents an action category a grant can authorize
type Verb string

const (
	VerbView   Verb = "view"
	VerbCreate Verb = "create"
	VerbEdit   Verb = "edit"
	VerbDelete Verb = "delete"
	VerbManage Verb = "manage"
)

// AllVerbs returns every valid verb
func AllVerbs() []Verb {
	return []Verb{VerbView, VerbCreate, VerbEdit, VerbDelete, VerbManage}
}

// ValidVerb reports whether v is a member of the verb enum
func ValidVerb(v Verb) bool {
	switch v {
	case VerbView, VerbCreate, VerbEdit, VerbDelete, VerbManage:
		return true
	}
	return false
}

// EntityKind identifies the kind of protected resource a grant's target key
// points at
type EntityKind string

const (
	EntityChangemaker           EntityKind = "changemaker"
	EntityFunder                EntityKind = "funder"
	EntityDataProvider          EntityKind = "data_provider"
	EntityOpportunity           EntityKind = "opportunity"
	EntityProposal              EntityKind = "proposal"
	EntityProposalVersion       EntityKind = "proposal_version"
	EntityApplicationForm       EntityKind = "application_form"
	EntityApplicationFormField  EntityKind = "application_form_field"
	EntityProposalFieldValue    EntityKind = "proposal_field_value"
	EntitySource                EntityKind = "source"
	EntityBulkUpload            EntityKind = "bulk_upload"
	EntityChangemakerFieldValue EntityKind = "changemaker_field_value"
)

// GranteeKind discriminates individual-actor grants from group grants
type GranteeKind string

const (
	GranteeIndividual GranteeKind = "individual"
	GranteeGroup      GranteeKind = "group"
)

// AllGranteeKinds returns both grantee kinds
func AllGranteeKinds() []GranteeKind {
	return []GranteeKind{GranteeIndividual, GranteeGroup}
}

// KeyType is the wire type of an entity kind's target key
type KeyType int

const (
	// KeyTypeID is a positive integer surrogate key
	KeyTypeID KeyType = iota
	// KeyTypeShortCode is a lowercase short-code string key
	KeyTypeShortCode
)

// TargetKey is the polymorphic target of a grant or an authorization check.
// Exactly one of ID or ShortCode is meaningful, determined by the entity
// kind's descriptor.
type TargetKey struct {
	ID        int64
	ShortCode string
}

// IntKey builds a TargetKey for an integer-keyed entity kind
func IntKey(id int64) TargetKey {
	return TargetKey{ID: id}
}

// CodeKey builds a TargetKey for a short-code-keyed entity kind
func CodeKey(code string) TargetKey {
	return TargetKey{ShortCode: code}
}

// String renders the key for logs and cache keys
func (k TargetKey) String() string {
	if k.ShortCode != "" {
		return k.ShortCode
	}
	return fmt.Sprintf("%d", k.ID)
}

// PermissionGrant is the central polymorphic record: one grantee (individual
// actor or group), one target entity, a scope of entity kinds the grant
// extends over, and a set of verbs. Grants are immutable after creation;
// there is no update operation, only create and delete.
type PermissionGrant struct {
	ID                string       `json:"id"`
	GranteeKind       GranteeKind  `json:"granteeKind"`
	GranteeActorID    string       `json:"granteeActorId,omitempty"`
	GranteeGroupID    string       `json:"granteeGroupId,omitempty"`
	ContextEntityKind EntityKind   `json:"contextEntityKind"`
	Target            TargetKey    `json:"-"`
	Scope             []EntityKind `json:"scope"`
	Verbs             []Verb       `json:"verbs"`
	CreatedBy         string       `json:"createdBy"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// InScope reports whether the grant's scope covers the given entity kind.
// Scope and verbs are read as sets; order and duplication are irrelevant
// here (duplicates are rejected at creation, not deduplicated at read time).
func (g *PermissionGrant) InScope(kind EntityKind) bool {
	for _, s := range g.Scope {
		if s == kind {
			return true
		}
	}
	return false
}

// HasVerb reports whether the grant's verb set contains v
func (g *PermissionGrant) HasVerb(v Verb) bool {
	for _, gv := range g.Verbs {
		if gv == v {
			return true
		}
	}
	return false
}

// Allows reports whether this grant authorizes verb on the given target
func (g *PermissionGrant) Allows(verb Verb, kind EntityKind, key TargetKey) bool {
	return g.InScope(kind) && g.Target == key && g.HasVerb(verb)
}

// grantWire is the serialized shape of a grant minus the kind-specific
// target key field, which MarshalJSON/UnmarshalJSON splice in by name from
// the entity table.
type grantWire struct {
	ID                string       `json:"id"`
	GranteeKind       GranteeKind  `json:"granteeKind"`
	GranteeActorID    string       `json:"granteeActorId,omitempty"`
	GranteeGroupID    string       `json:"granteeGroupId,omitempty"`
	ContextEntityKind EntityKind   `json:"contextEntityKind"`
	Scope             []EntityKind `json:"scope"`
	Verbs             []Verb       `json:"verbs"`
	CreatedBy         string       `json:"createdBy"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// MarshalJSON writes the grant as one JSON object whose target key field
// name and type are selected by contextEntityKind per the entity table.
func (g PermissionGrant) MarshalJSON() ([]byte, error) {
	desc, ok := DescriptorFor(g.ContextEntityKind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind: %s", g.ContextEntityKind)
	}

	base, err := json.Marshal(grantWire{
		ID:                g.ID,
		GranteeKind:       g.GranteeKind,
		GranteeActorID:    g.GranteeActorID,
		GranteeGroupID:    g.GranteeGroupID,
		ContextEntityKind: g.ContextEntityKind,
		Scope:             g.Scope,
		Verbs:             g.Verbs,
		CreatedBy:         g.CreatedBy,
		CreatedAt:         g.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}

	switch desc.KeyType {
	case KeyTypeID:
		fields[desc.KeyField], err = json.Marshal(g.Target.ID)
	case KeyTypeShortCode:
		fields[desc.KeyField], err = json.Marshal(g.Target.ShortCode)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// UnmarshalJSON reads the polymorphic wire shape back into a grant
func (g *PermissionGrant) UnmarshalJSON(data []byte) error {
	var base grantWire
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	desc, ok := DescriptorFor(base.ContextEntityKind)
	if !ok {
		return fmt.Errorf("unknown entity kind: %s", base.ContextEntityKind)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields[desc.KeyField]
	if !ok {
		return fmt.Errorf("missing target key field %s", desc.KeyField)
	}

	var target TargetKey
	switch desc.KeyType {
	case KeyTypeID:
		if err := json.Unmarshal(raw, &target.ID); err != nil {
			return fmt.Errorf("invalid %s: %w", desc.KeyField, err)
		}
	case KeyTypeShortCode:
		if err := json.Unmarshal(raw, &target.ShortCode); err != nil {
			return fmt.Errorf("invalid %s: %w", desc.KeyField, err)
		}
	}

	g.ID = base.ID
	g.GranteeKind = base.GranteeKind
	g.GranteeActorID = base.GranteeActorID
	g.GranteeGroupID = base.GranteeGroupID
	g.ContextEntityKind = base.ContextEntityKind
	g.Target = target
	g.Scope = base.Scope
	g.Verbs = base.Verbs
	g.CreatedBy = base.CreatedBy
	g.CreatedAt = base.CreatedAt
	return nil
}
