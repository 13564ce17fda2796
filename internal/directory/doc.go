// Package directory keeps the in-memory set of conversations for the
// current device identity and mediates all local state changes to it.
package directory
