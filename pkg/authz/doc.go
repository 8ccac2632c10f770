// Package authz implements permission grant management and authorization
// resolution.
//
// A PermissionGrant ties a grantee (an individual actor or a group) to a
// context entity (one of twelve kinds, keyed by numeric id or short code)
// with a scope of entity kinds and a set of verbs. Creation requests are
// polymorphic: the target key field name depends on the context entity kind,
// and exactly one grantee key may be present. The Registry validates a raw
// request against every structural variant and rejects anything that matches
// none of them.
//
// The Resolver answers "may actor X apply verb V to entity E?" by walking an
// ordered chain: administrator bypass, direct grants, durable group grants,
// ephemeral group grants, and finally inherited access through fiscal
// sponsorship (changemakers) or funder collaborative membership (funders).
// Traversal is cycle safe and depth capped. Decisions are cached with a
// generation counter that every grant mutation bumps.
package authz
