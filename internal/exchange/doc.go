// Package exchange drives the send state machine for a single user
// message: optimistic append, backend round-trip, and reconciliation.
package exchange
