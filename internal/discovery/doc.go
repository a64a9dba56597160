// Package discovery reconciles network sightings of TVs with stable
// MAC-keyed identities and drives the session manager.
//
// Every cycle the Resolver:
//
//  1. re-probes sessions whose transport has dropped, reconnecting the
//     reachable ones and tearing down the rest
//  2. checks the configured and remembered addresses
//  3. browses mDNS for announcements of the configured service
//
// Each candidate address is resolved to a MAC. Unresolvable candidates are
// skipped, never fatal. A MAC seen at a new address supersedes the old
// session: the old one is torn down before the new one is dialled.
package discovery
