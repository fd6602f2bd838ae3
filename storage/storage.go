// Package storage provides the persistence adapters a session host can
// plug into its configuration: in-memory for tests and ephemeral
// hosts, SQLite for durable local state, S3 for server-side deployments
// and an encrypting wrapper that keeps session keys sealed at rest on
// any of them.
package storage

import "context"

// KV is the capability every adapter implements: point reads and
// writes of opaque byte values. Absent keys are reported through the
// found flag, not an error, so callers never have to compare against
// adapter-specific sentinels.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
