package azuretable

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/khenidak/crossdc/pkg/backend/consts"
	filterutils "github.com/khenidak/crossdc/pkg/backend/filter"
	"github.com/khenidak/crossdc/pkg/backend/utils"
	"github.com/khenidak/crossdc/pkg/types"
)

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	e, err := s.getLeaseEntity(ctx, key, subKey)
	if err != nil {
		return nil, err
	}
	return entityToLease(e)
}

func (s *store) getLeaseEntity(ctx context.Context, key string, subKey string) (*storage.Entity, error) {
	f := filterutils.NewFilter()
	f.And(filterutils.LeaseEntity(key, subKey))
	o := &storage.QueryOptions{
		Filter: f.Generate(),
	}

	res, err := utils.SafeExecuteQuery(ctx, s.t, consts.DefaultTimeout, storage.FullMetadata, o)
	if err != nil {
		return nil, err
	}

	if len(res.Entities) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
	}

	e := res.Entities[0] // must be only one due to pkey/rkey pairing
	e.Table = s.t
	return e, nil
}
