// Package routes registers the agent's own HTTP surface under /-/: the
// control channel, offline queue, push and sync triggers, and diagnostics.
package routes
