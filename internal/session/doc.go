// Package session owns the lifecycle of control sessions: one open
// transport client per TV, keyed by MAC.
//
// Connect reserves the MAC in the shared identity.KnownSet, looks up the
// pairing key, dials, persists any newly issued key and hands the open
// session to an Attacher that performs the initial state fetch. Any
// failure releases the reservation so the next discovery cycle may retry.
//
// A session whose transport drops moves to Disconnected and keeps its
// reservation; discovery decides whether to reconnect or tear it down.
package session
