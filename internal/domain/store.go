package domain

import (
	"context"
	"io"
	"time"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only log of runs, submissions and outcomes.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
}

// LockManager hands out exclusive leases on a key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
