package authz

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/grantbase/grantbase/pkg/errs"
)

// CreateGrantRequest is the validated form of a grant creation request,
// produced only by Registry.ValidateGrantRequest.
type CreateGrantRequest struct {
	GranteeKind       GranteeKind
	GranteeActorID    string
	GranteeGroupID    string
	ContextEntityKind EntityKind
	Target            TargetKey
	Scope             []EntityKind
	Verbs             []Verb
}

// variant is one of the 24 (granteeKind × contextEntityKind) structural
// shapes a creation request may take.
type variant struct {
	granteeKind GranteeKind
	desc        EntityDescriptor
	// allowed is the exact field set this variant accepts
	allowed map[string]bool
}

func (v *variant) name() string {
	return string(v.granteeKind) + "/" + string(v.desc.Kind)
}

// granteeField returns the grantee key field this variant requires
func (v *variant) granteeField() string {
	if v.granteeKind == GranteeIndividual {
		return "granteeActorId"
	}
	return "granteeGroupId"
}

// Registry holds one structural validator per variant, compiled once at
// process start from the entity table.
type Registry struct {
	variants []*variant
}

var shortCodePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// NewRegistry compiles the 24 variant validators
func NewRegistry() *Registry {
	r := &Registry{}
	for _, granteeKind := range AllGranteeKinds() {
		for _, kind := range AllEntityKinds() {
			desc, _ := DescriptorFor(kind)
			v := &variant{granteeKind: granteeKind, desc: desc}
			v.allowed = map[string]bool{
				"granteeKind":       true,
				"contextEntityKind": true,
				v.granteeField():    true,
				desc.KeyField:       true,
				"scope":             true,
				"verbs":             true,
			}
			r.variants = append(r.variants, v)
		}
	}
	return r
}

// ValidateGrantRequest checks a raw creation request against all variant
// shapes and returns the validated request when exactly describable by one
// of them. On failure the ValidationError carries every variant's rejection
// so callers can report closest-match diagnostics.
func (r *Registry) ValidateGrantRequest(raw []byte) (*CreateGrantRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errs.NewValidation("request body is not a JSON object", err.Error())
	}

	var details []string
	for _, v := range r.variants {
		req, err := r.validateVariant(v, fields)
		if err == nil {
			return req, nil
		}
		details = append(details, v.name()+": "+err.Error())
	}

	sort.Strings(details)
	return nil, errs.NewValidation("request matched no grant variant", details...)
}

// validateVariant checks the raw fields against one variant's exact shape
func (r *Registry) validateVariant(v *variant, fields map[string]json.RawMessage) (*CreateGrantRequest, error) {
	for name := range fields {
		if !v.allowed[name] {
			return nil, fmt.Errorf("unexpected field %s", name)
		}
	}

	var granteeKind GranteeKind
	if err := requireString(fields, "granteeKind", (*string)(&granteeKind)); err != nil {
		return nil, err
	}
	if granteeKind != v.granteeKind {
		return nil, fmt.Errorf("granteeKind is %s, not %s", granteeKind, v.granteeKind)
	}

	var entityKind EntityKind
	if err := requireString(fields, "contextEntityKind", (*string)(&entityKind)); err != nil {
		return nil, err
	}
	if entityKind != v.desc.Kind {
		return nil, fmt.Errorf("contextEntityKind is %s, not %s", entityKind, v.desc.Kind)
	}

	req := &CreateGrantRequest{
		GranteeKind:       granteeKind,
		ContextEntityKind: entityKind,
	}

	var grantee string
	if err := requireString(fields, v.granteeField(), &grantee); err != nil {
		return nil, err
	}
	if grantee == "" {
		return nil, fmt.Errorf("%s must be non-empty", v.granteeField())
	}
	if v.granteeKind == GranteeIndividual {
		req.GranteeActorID = grantee
	} else {
		req.GranteeGroupID = grantee
	}

	target, err := parseTargetKey(v.desc, fields)
	if err != nil {
		return nil, err
	}
	req.Target = target

	scope, err := parseScope(v.desc, fields)
	if err != nil {
		return nil, err
	}
	req.Scope = scope

	verbs, err := parseVerbs(fields)
	if err != nil {
		return nil, err
	}
	req.Verbs = verbs

	return req, nil
}

func parseTargetKey(desc EntityDescriptor, fields map[string]json.RawMessage) (TargetKey, error) {
	raw, ok := fields[desc.KeyField]
	if !ok {
		return TargetKey{}, fmt.Errorf("missing %s", desc.KeyField)
	}

	switch desc.KeyType {
	case KeyTypeID:
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return TargetKey{}, fmt.Errorf("%s must be an integer", desc.KeyField)
		}
		if id <= 0 {
			return TargetKey{}, fmt.Errorf("%s must be positive", desc.KeyField)
		}
		return IntKey(id), nil
	case KeyTypeShortCode:
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return TargetKey{}, fmt.Errorf("%s must be a string", desc.KeyField)
		}
		if !shortCodePattern.MatchString(code) {
			return TargetKey{}, fmt.Errorf("%s must match %s", desc.KeyField, shortCodePattern)
		}
		return CodeKey(code), nil
	}
	return TargetKey{}, fmt.Errorf("unknown key type for %s", desc.Kind)
}

func parseScope(desc EntityDescriptor, fields map[string]json.RawMessage) ([]EntityKind, error) {
	raw, ok := fields["scope"]
	if !ok {
		return nil, fmt.Errorf("missing scope")
	}

	var scope []EntityKind
	if err := json.Unmarshal(raw, &scope); err != nil {
		return nil, fmt.Errorf("scope must be an array of entity kinds")
	}
	if len(scope) == 0 {
		return nil, fmt.Errorf("scope must be non-empty")
	}

	seen := make(map[EntityKind]bool, len(scope))
	for _, s := range scope {
		if seen[s] {
			return nil, fmt.Errorf("duplicate scope entry %s", s)
		}
		seen[s] = true

		reachable := false
		for _, r := range desc.Reachable {
			if s == r {
				reachable = true
				break
			}
		}
		if !reachable {
			return nil, fmt.Errorf("scope entry %s is not reachable from %s", s, desc.Kind)
		}
	}
	return scope, nil
}

func parseVerbs(fields map[string]json.RawMessage) ([]Verb, error) {
	raw, ok := fields["verbs"]
	if !ok {
		return nil, fmt.Errorf("missing verbs")
	}

	var verbs []Verb
	if err := json.Unmarshal(raw, &verbs); err != nil {
		return nil, fmt.Errorf("verbs must be an array of verbs")
	}
	if len(verbs) == 0 {
		return nil, fmt.Errorf("verbs must be non-empty")
	}

	seen := make(map[Verb]bool, len(verbs))
	for _, v := range verbs {
		if !ValidVerb(v) {
			return nil, fmt.Errorf("unknown verb %s", v)
		}
		if seen[v] {
			return nil, fmt.Errorf("duplicate verb %s", v)
		}
		seen[v] = true
	}
	return verbs, nil
}

func requireString(fields map[string]json.RawMessage, name string, dest *string) error {
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("missing %s", name)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s must be a string", name)
	}
	return nil
}
