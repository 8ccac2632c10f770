// Package collaborative implements funder collaboratives: funders that
// other funders join through an invitation workflow.
//
// An invitation is pending until the invited funder accepts or rejects it;
// both outcomes are terminal. Accepting creates the membership edge in the
// same transaction that flips the invitation, so membership and invitation
// state can never disagree. Membership is what the resolver walks when a
// funder inherits permissions from its collaboratives.
package collaborative
