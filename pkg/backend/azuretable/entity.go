package azuretable

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/khenidak/crossdc/pkg/backend/consts"
	"github.com/khenidak/crossdc/pkg/types"
)

func leaseProperties(record *types.LeaseRecord, until time.Time, lastModified time.Time) map[string]interface{} {
	return map[string]interface{}{
		consts.EntityTypeFieldName:      consts.EntityTypeLease,
		consts.LeaseValueFieldName:      record.Value,
		consts.LeaseUpdateIPFieldName:   record.UpdateIP,
		consts.LeaseUpdateUserFieldName: record.UpdateUser,
		consts.LeaseUntilFieldName:      until.UnixNano(),
		consts.LeaseLastModifiedField:   lastModified.UnixNano(),
	}
}

func newLeaseEntity(t *storage.Table, record *types.LeaseRecord, createdAt time.Time, note string, lastModified time.Time) *storage.Entity {
	e := t.GetEntityReference(record.Key, record.SubKey)
	e.Properties = leaseProperties(record, record.Until, lastModified)
	e.Properties[consts.LeaseCreatedAtFieldName] = createdAt.UnixNano()
	e.Properties[consts.LeaseNoteFieldName] = note
	return e
}

func entityToLease(e *storage.Entity) (*types.LeaseRecord, error) {
	until, err := int64Property(e, consts.LeaseUntilFieldName)
	if err != nil {
		return nil, err
	}
	lastModified, err := int64Property(e, consts.LeaseLastModifiedField)
	if err != nil {
		return nil, err
	}

	return &types.LeaseRecord{
		Key:          e.PartitionKey,
		SubKey:       e.RowKey,
		Value:        stringProperty(e, consts.LeaseValueFieldName),
		UpdateIP:     stringProperty(e, consts.LeaseUpdateIPFieldName),
		UpdateUser:   stringProperty(e, consts.LeaseUpdateUserFieldName),
		Until:        time.Unix(0, until).UTC(),
		LastModified: time.Unix(0, lastModified).UTC(),
	}, nil
}

func stringProperty(e *storage.Entity, name string) string {
	s, _ := e.Properties[name].(string)
	return s
}

// Edm.Int64 comes back as int64 with full metadata and as a string or a
// float without it, depending on the service (cosmos vs table)
func int64Property(e *storage.Entity, name string) (int64, error) {
	switch v := e.Properties[name].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("lease entity %s/%s field %s: %w", e.PartitionKey, e.RowKey, name, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("lease entity %s/%s is missing field %s", e.PartitionKey, e.RowKey, name)
	default:
		return 0, fmt.Errorf("lease entity %s/%s field %s has unexpected type %T", e.PartitionKey, e.RowKey, name, v)
	}
}
