package utils

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/khenidak/crossdc/pkg/backend/retryable"
)

// these options are used for retrying any call to
// to external store. For now we are only interested
// in error filtering. we are ok with other defaults
var retryableOptions []*retryable.Option = []*retryable.Option{
	retryable.WithRetryableErrorFilter(IsTransientError),
}

// true for errors the SDK does not retry on its own
func IsTransientError(e error) bool {
	if e == nil {
		return false
	}
	msg := e.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

// executes a table batch with retry
func SafeExecuteBatch(ctx context.Context, b *storage.TableBatch) error {
	return retryable.RetryWithOpts(ctx, b.ExecuteBatch, retryableOptions...)
}

// executes a table query with retry
func SafeExecuteQuery(ctx context.Context,
	t *storage.Table,
	timeout uint,
	ml storage.MetadataLevel,
	options *storage.QueryOptions) (*storage.EntityQueryResult, error) {

	var res *storage.EntityQueryResult

	exec := func() error {
		var e error
		res, e = t.QueryEntities(timeout, ml, options)
		return e
	}

	err := retryable.RetryWithOpts(ctx, exec, retryableOptions...)
	return res, err
}

// executes Entity.Get() with retry
func SafeExecuteEntityGet(ctx context.Context, entity *storage.Entity, timeout uint, ml storage.MetadataLevel, options *storage.GetEntityOptions) error {
	exec := func() error {
		return entity.Get(timeout, ml, options)
	}

	return retryable.RetryWithOpts(ctx, exec, retryableOptions...)
}

// executes Entity.Insert() with retry
func SafeExecuteEntityInsert(ctx context.Context, entity *storage.Entity, options *storage.EntityOptions) error {
	exec := func() error {
		return entity.Insert(storage.EmptyPayload, options)
	}

	return retryable.RetryWithOpts(ctx, exec, retryableOptions...)
}

// executes Entity.Merge() with retry. force=false sends the entity etag as If-Match
func SafeExecuteEntityMerge(ctx context.Context, entity *storage.Entity, force bool, options *storage.EntityOptions) error {
	exec := func() error {
		return entity.Merge(force, options)
	}

	return retryable.RetryWithOpts(ctx, exec, retryableOptions...)
}
