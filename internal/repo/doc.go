// Package repo is the sole translation point between conversation
// operations and a persistence backend, remote or local.
package repo
