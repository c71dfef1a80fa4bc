package types

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLeaseNotFound   = errors.New("lease not found")
	ErrLeaseExists     = errors.New("lease already exists")
	ErrConditionFailed = errors.New("lease was modified since last observed")
)

// LeaseStore persists lease records keyed by (key, subKey). Implementations
// must stamp a strictly newer LastModified on every successful write.
type LeaseStore interface {
	// Get returns ErrLeaseNotFound when no row exists for the pair.
	Get(ctx context.Context, key string, subKey string) (*LeaseRecord, error)
	// Insert creates the row. A concurrent insert by another instance
	// surfaces as ErrLeaseExists.
	Insert(ctx context.Context, record *LeaseRecord, createdAt time.Time, note string) error
	// UpdateIdempotent writes record with the new until only if the stored
	// LastModified still equals expectedLastModified. Otherwise the row is
	// left untouched and ErrConditionFailed is returned.
	UpdateIdempotent(ctx context.Context, record *LeaseRecord, until time.Time, expectedLastModified time.Time) error
	Close() error
}
