// Package sponsorship maintains the fiscal sponsorship edge set between
// changemakers. An edge (sponsee, sponsor) makes permissions held on the
// sponsor apply to the sponsee during resolution. Edges are bare pairs:
// upsert, remove, list, no state machine.
package sponsorship
