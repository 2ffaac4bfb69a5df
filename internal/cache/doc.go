// Package cache implements the named, versioned cache partitions of the
// offline agent. Partitions live in a single LevelDB database; every entry is
// a full HTTP response (status, headers, body) keyed by method + URL and
// encoded with msgpack. A key is held by at most one partition at a time so
// that a resource moving between tiers never leaves a stale twin behind.
// Strategy handlers and the lifecycle manager depend on this package; the
// freshness rules shared by both live in policy.go.
package cache
