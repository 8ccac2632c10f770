// Package membership implements ephemeral time-bounded group membership.
//
// A membership places an actor in a group until a notAfter instant. Access
// derived from it ends at that instant with no write: the resolver's group
// source filters on not_after at read time. A cron sweeper deletes expired
// rows afterwards as storage hygiene.
package membership
