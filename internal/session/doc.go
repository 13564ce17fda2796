// Package session defines the conversation and message model shared by the
// repository, directory, and exchange layers.
package session
