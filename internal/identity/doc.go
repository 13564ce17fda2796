// Package identity provides the anonymous per-device token that the chat
// client asserts on every request in place of real authentication.
package identity
