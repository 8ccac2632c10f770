package authz

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantbase/grantbase/pkg/errs"
)

// buildRequest assembles a raw creation request for a given variant, with
// optional field overrides (nil value deletes the field)
func buildRequest(t *testing.T, granteeKind GranteeKind, kind EntityKind, overrides map[string]interface{}) []byte {
	t.Helper()

	desc, ok := DescriptorFor(kind)
	require.True(t, ok)

	fields := map[string]interface{}{
		"granteeKind":       granteeKind,
		"contextEntityKind": kind,
		"scope":             []EntityKind{kind},
		"verbs":             []Verb{VerbView},
	}
	if granteeKind == GranteeIndividual {
		fields["granteeActorId"] = "actor-1"
	} else {
		fields["granteeGroupId"] = "group-1"
	}
	if desc.KeyType == KeyTypeID {
		fields[desc.KeyField] = 42
	} else {
		fields[desc.KeyField] = "acme-co"
	}

	for name, value := range overrides {
		if value == nil {
			delete(fields, name)
		} else {
			fields[name] = value
		}
	}

	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return raw
}

func TestValidateGrantRequestAcceptsEveryVariant(t *testing.T) {
	registry := NewRegistry()

	for _, granteeKind := range AllGranteeKinds() {
		for _, kind := range AllEntityKinds() {
			name := fmt.Sprintf("%s/%s", granteeKind, kind)
			t.Run(name, func(t *testing.T) {
				raw := buildRequest(t, granteeKind, kind, nil)

				req, err := registry.ValidateGrantRequest(raw)
				require.NoError(t, err)
				assert.Equal(t, granteeKind, req.GranteeKind)
				assert.Equal(t, kind, req.ContextEntityKind)
				assert.Equal(t, []EntityKind{kind}, req.Scope)
				assert.Equal(t, []Verb{VerbView}, req.Verbs)

				if granteeKind == GranteeIndividual {
					assert.Equal(t, "actor-1", req.GranteeActorID)
					assert.Empty(t, req.GranteeGroupID)
				} else {
					assert.Equal(t, "group-1", req.GranteeGroupID)
					assert.Empty(t, req.GranteeActorID)
				}

				desc, _ := DescriptorFor(kind)
				if desc.KeyType == KeyTypeID {
					assert.Equal(t, IntKey(42), req.Target)
				} else {
					assert.Equal(t, CodeKey("acme-co"), req.Target)
				}
			})
		}
	}
}

func TestValidateGrantRequestRejections(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name string
		raw  []byte
	}{
		{
			name: "both grantee keys present",
			raw: buildRequest(t, GranteeIndividual, EntityChangemaker, map[string]interface{}{
				"granteeGroupId": "group-1",
			}),
		},
		{
			name: "missing grantee key",
			raw: buildRequest(t, GranteeIndividual, EntityChangemaker, map[string]interface{}{
				"granteeActorId": nil,
			}),
		},
		{
			name: "empty grantee key",
			raw: buildRequest(t, GranteeGroup, EntityFunder, map[string]interface{}{
				"granteeGroupId": "",
			}),
		},
		{
			name: "wrong target key field for kind",
			raw: buildRequest(t, GranteeIndividual, EntityChangemaker, map[string]interface{}{
				"changemakerId":   nil,
				"funderShortCode": "acme",
			}),
		},
		{
			name: "unknown extra field",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"color": "red",
			}),
		},
		{
			name: "unknown grantee kind",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"granteeKind": "robot",
			}),
		},
		{
			name: "unknown entity kind",
			raw:  []byte(`{"granteeKind":"individual","granteeActorId":"a","contextEntityKind":"galaxy","galaxyId":1,"scope":["galaxy"],"verbs":["view"]}`),
		},
		{
			name: "zero integer target key",
			raw: buildRequest(t, GranteeIndividual, EntityOpportunity, map[string]interface{}{
				"opportunityId": 0,
			}),
		},
		{
			name: "negative integer target key",
			raw: buildRequest(t, GranteeIndividual, EntityOpportunity, map[string]interface{}{
				"opportunityId": -5,
			}),
		},
		{
			name: "string where integer key expected",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"proposalId": "10",
			}),
		},
		{
			name: "uppercase short code",
			raw: buildRequest(t, GranteeIndividual, EntityFunder, map[string]interface{}{
				"funderShortCode": "Acme",
			}),
		},
		{
			name: "empty short code",
			raw: buildRequest(t, GranteeIndividual, EntityDataProvider, map[string]interface{}{
				"dataProviderShortCode": "",
			}),
		},
		{
			name: "empty scope",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"scope": []EntityKind{},
			}),
		},
		{
			name: "scope entry not reachable from context kind",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"scope": []EntityKind{EntityFunder},
			}),
		},
		{
			name: "duplicate scope entry",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"scope": []EntityKind{EntityProposal, EntityProposal},
			}),
		},
		{
			name: "empty verbs",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"verbs": []Verb{},
			}),
		},
		{
			name: "unknown verb",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"verbs": []string{"teleport"},
			}),
		},
		{
			name: "duplicate verb",
			raw: buildRequest(t, GranteeIndividual, EntityProposal, map[string]interface{}{
				"verbs": []Verb{VerbView, VerbView},
			}),
		},
		{
			name: "not a JSON object",
			raw:  []byte(`[1,2,3]`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := registry.ValidateGrantRequest(tt.raw)
			assert.Nil(t, req)
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestValidateGrantRequestCollectsVariantDetails(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.ValidateGrantRequest(buildRequest(t, GranteeIndividual, EntityChangemaker, map[string]interface{}{
		"granteeGroupId": "group-1",
	}))
	require.Error(t, err)

	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "request matched no grant variant", verr.Message)
	assert.Len(t, verr.Details, 24, "one rejection per variant")
}
