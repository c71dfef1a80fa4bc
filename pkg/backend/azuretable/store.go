package azuretable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/storage"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/consts"
	"github.com/khenidak/crossdc/pkg/backend/utils"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

/*
	a lease is saved as one entity:
	PartitionKey = lease key, RowKey = lease sub key.

	Each lease entity carries
	- value, update ip, update user as strings
	- until and last modified as unix nano (int64)
	- created at and note which are written once on insert and never touched again

	last modified is stamped here (not by the server) and is always strictly newer
	than the one it replaces. conditional updates compare it with the caller's token
	and then merge with the entity etag as If-Match. A concurrent writer that sneaks
	in between the read and the merge changes the etag and the merge fails with 412.
*/

type store struct {
	config *config.Config
	t      *storage.Table

	now func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	if c.Runtime.StorageTable == nil {
		return nil, fmt.Errorf("azure table runtime is not initialized")
	}

	s := &store{
		config: c,
		t:      c.Runtime.StorageTable,
		now:    time.Now,
	}

	if err := s.ensureStore(ctx); err != nil {
		return nil, err
	}

	klogv2.Infof("azure table lease store ready on table:%v", c.AzureTable.TableName)
	return s, nil
}

func (s *store) ensureStore(ctx context.Context) error {
	err := s.t.Create(100, storage.EmptyPayload, &storage.TableOptions{})
	if err != nil {
		var status storage.AzureStorageServiceError
		if !errors.As(err, &status) {
			return err
		}

		if status.StatusCode != http.StatusConflict {
			return fmt.Errorf("got status code %d:  %v", status.StatusCode, err)
		}
	}
	// Test that we have write access
	e := &storage.Entity{
		Table: s.t,
	}
	e.PartitionKey = consts.WriteTesterPartitionKey
	e.RowKey = consts.WriteTestRowKey
	e.Properties = map[string]interface{}{
		"what_is_this": "we use it to test that keys/connection/sas/whatever allow write access",
		"when":         time.Now().UTC().String(),
	}

	b := s.t.NewBatch()
	b.Table = s.t

	b.InsertOrMergeEntity(e, true)
	if err := utils.SafeExecuteBatch(ctx, b); err != nil {
		return err
	}

	// and read access
	check := s.t.GetEntityReference(consts.WriteTesterPartitionKey, consts.WriteTestRowKey)
	return utils.SafeExecuteEntityGet(ctx, check, consts.DefaultTimeout, storage.NoMetadata, &storage.GetEntityOptions{})
}

func (s *store) Close() error {
	return nil
}
