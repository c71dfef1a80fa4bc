package backend

import (
	"context"
	"fmt"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/azuretable"
	"github.com/khenidak/crossdc/pkg/backend/boltstore"
	"github.com/khenidak/crossdc/pkg/backend/etcdstore"
	"github.com/khenidak/crossdc/pkg/backend/kubestore"
	"github.com/khenidak/crossdc/pkg/backend/memstore"
	"github.com/khenidak/crossdc/pkg/backend/natsstore"
	"github.com/khenidak/crossdc/pkg/backend/sqlstore"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

type storeFactory func(ctx context.Context, c *config.Config) (types.LeaseStore, error)

var factories = map[string]storeFactory{
	config.StoreTypeAzureTable: azuretable.NewStore,
	config.StoreTypeEtcd:       etcdstore.NewStore,
	config.StoreTypeKube:       kubestore.NewStore,
	config.StoreTypeNATS:       natsstore.NewStore,
	config.StoreTypeBolt:       boltstore.NewStore,
	config.StoreTypeSQL:        sqlstore.NewStore,
	config.StoreTypeMemory: func(context.Context, *config.Config) (types.LeaseStore, error) {
		klogv2.Warningf("memory lease store selected. leases are not shared outside this process")
		return memstore.New(), nil
	},
}

// NewLeaseStore creates the lease store selected by c.StoreType. c is
// expected to be validated and its runtime initialized.
func NewLeaseStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	factory, ok := factories[c.StoreType]
	if !ok {
		return nil, fmt.Errorf("unknown store type %q", c.StoreType)
	}

	s, err := factory(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s lease store: %w", c.StoreType, err)
	}
	return s, nil
}
