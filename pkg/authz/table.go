package authz

// EntityDescriptor defines, for one protected entity kind, the name and type
// of its target key field and the set of entity kinds reachable from it.
// The table is the single definition consulted by both the schema registry
// and the resolver; adding a protected kind is one new row here plus its
// enum constant.
type EntityDescriptor struct {
	Kind      EntityKind
	KeyField  string
	KeyType   KeyType
	Reachable []EntityKind
}

// entityTable is the closed mapping from entity kind to key shape. Every
// kind's reachable set is currently the singleton of itself; the field
// exists so nested scopes (a funder grant also covering its opportunities)
// can arrive without a record-shape migration.
var entityTable = map[EntityKind]EntityDescriptor{
	EntityChangemaker: {
		Kind: EntityChangemaker, KeyField: "changemakerId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityChangemaker},
	},
	EntityFunder: {
		Kind: EntityFunder, KeyField: "funderShortCode", KeyType: KeyTypeShortCode,
		Reachable: []EntityKind{EntityFunder},
	},
	EntityDataProvider: {
		Kind: EntityDataProvider, KeyField: "dataProviderShortCode", KeyType: KeyTypeShortCode,
		Reachable: []EntityKind{EntityDataProvider},
	},
	EntityOpportunity: {
		Kind: EntityOpportunity, KeyField: "opportunityId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityOpportunity},
	},
	EntityProposal: {
		Kind: EntityProposal, KeyField: "proposalId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityProposal},
	},
	EntityProposalVersion: {
		Kind: EntityProposalVersion, KeyField: "proposalVersionId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityProposalVersion},
	},
	EntityApplicationForm: {
		Kind: EntityApplicationForm, KeyField: "applicationFormId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityApplicationForm},
	},
	EntityApplicationFormField: {
		Kind: EntityApplicationFormField, KeyField: "applicationFormFieldId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityApplicationFormField},
	},
	EntityProposalFieldValue: {
		Kind: EntityProposalFieldValue, KeyField: "proposalFieldValueId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityProposalFieldValue},
	},
	EntitySource: {
		Kind: EntitySource, KeyField: "sourceId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntitySource},
	},
	EntityBulkUpload: {
		Kind: EntityBulkUpload, KeyField: "bulkUploadId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityBulkUpload},
	},
	EntityChangemakerFieldValue: {
		Kind: EntityChangemakerFieldValue, KeyField: "changemakerFieldValueId", KeyType: KeyTypeID,
		Reachable: []EntityKind{EntityChangemakerFieldValue},
	},
}

// DescriptorFor looks up the descriptor for an entity kind
func DescriptorFor(kind EntityKind) (EntityDescriptor, bool) {
	desc, ok := entityTable[kind]
	return desc, ok
}

// AllEntityKinds returns every protected entity kind in stable order
func AllEntityKinds() []EntityKind {
	return []EntityKind{
		EntityChangemaker,
		EntityFunder,
		EntityDataProvider,
		EntityOpportunity,
		EntityProposal,
		EntityProposalVersion,
		EntityApplicationForm,
		EntityApplicationFormField,
		EntityProposalFieldValue,
		EntitySource,
		EntityBulkUpload,
		EntityChangemakerFieldValue,
	}
}

// ValidEntityKind reports whether kind is in the closed mapping
func ValidEntityKind(kind EntityKind) bool {
	_, ok := entityTable[kind]
	return ok
}

// ReachableScope returns the set of entity kinds a grant on the given kind
// may extend over
func ReachableScope(kind EntityKind) []EntityKind {
	desc, ok := entityTable[kind]
	if !ok {
		return nil
	}
	return desc.Reachable
}
