package azuretable

import (
	"context"
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

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	e := newLeaseEntity(s.t, record, createdAt, note, leasedoc.NextLastModified(s.now(), time.Time{}))

	err := utils.SafeExecuteEntityInsert(ctx, e, &storage.EntityOptions{Timeout: consts.DefaultTimeout})
	if err != nil {
		if storageerrors.IsEntityAlreadyExists(err) {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
		}
		return err
	}

	klogv2.V(4).Infof("azure table: inserted lease %s/%s", record.Key, record.SubKey)
	return nil
}
