package azuretable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/storage"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/consts"
	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	storageerrors "github.com/khenidak/crossdc/pkg/backend/storageerrors"
	"github.com/khenidak/crossdc/pkg/backend/utils"
	"github.com/khenidak/crossdc/pkg/types"
)

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	conditionFailed := func() error {
		return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)
	}

	e, err := s.getLeaseEntity(ctx, record.Key, record.SubKey)
	if err != nil {
		if errors.Is(err, types.ErrLeaseNotFound) {
			return conditionFailed()
		}
		return err
	}

	current, err := entityToLease(e)
	if err != nil {
		return err
	}

	if !current.LastModified.Equal(expectedLastModified) {
		klogv2.V(4).Infof("azure table: lease %s/%s token mismatch stored:%v expected:%v",
			record.Key, record.SubKey, current.LastModified, expectedLastModified)
		return conditionFailed()
	}

	// merge only touches what we send. created at and note stay as they are
	e.Properties = leaseProperties(record, until, leasedoc.NextLastModified(s.now(), current.LastModified))
	err = utils.SafeExecuteEntityMerge(ctx, e, false, &storage.EntityOptions{Timeout: consts.DefaultTimeout})
	if err != nil {
		if storageerrors.IsPreconditionFailed(err) ||
			storageerrors.IsConflictError(err) ||
			storageerrors.IsNotFoundError(err) {
			return conditionFailed()
		}
		return err
	}

	return nil
}
