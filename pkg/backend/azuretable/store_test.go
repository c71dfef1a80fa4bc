package azuretable

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/khenidak/crossdc/pkg/backend/consts"
	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/backend/storetest"
	"github.com/khenidak/crossdc/pkg/types"
	basictestutils "github.com/khenidak/crossdc/test/utils/basic"
)

func TestEntityRoundTrip(t *testing.T) {
	until := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	lm := time.Date(2024, 5, 1, 9, 50, 0, 456, time.UTC)
	record := &types.LeaseRecord{
		Key:        "LEASE",
		SubKey:     "CROSS_DC_LEADER",
		Value:      "DC-A",
		UpdateIP:   "10.0.0.1",
		UpdateUser: "DC-A-DcLeader",
		Until:      until,
	}

	e := newLeaseEntity(&storage.Table{}, record, lm, "a note", lm)
	if e.PartitionKey != "LEASE" || e.RowKey != "CROSS_DC_LEADER" {
		t.Fatalf("unexpected entity keys %v/%v", e.PartitionKey, e.RowKey)
	}
	if e.Properties[consts.LeaseNoteFieldName] != "a note" {
		t.Fatalf("expected note on inserted entity")
	}

	got, err := entityToLease(e)
	if err != nil {
		t.Fatalf("failed to convert:%v", err)
	}
	if got.Value != "DC-A" || got.UpdateIP != "10.0.0.1" || got.UpdateUser != "DC-A-DcLeader" {
		t.Fatalf("fields did not round trip %v", got)
	}
	if !got.Until.Equal(until) || !got.LastModified.Equal(lm) {
		t.Fatalf("times did not round trip %v", got)
	}
}

func TestInt64Property(t *testing.T) {
	testCases := []struct {
		name    string
		value   interface{}
		want    int64
		wantErr bool
	}{
		{name: "int64", value: int64(42), want: 42},
		{name: "string", value: "42", want: 42},
		{name: "float", value: float64(42), want: 42},
		{name: "bad string", value: "x", wantErr: true},
		{name: "missing", value: nil, wantErr: true},
		{name: "bool", value: true, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := &storage.Entity{Properties: map[string]interface{}{}}
			if tc.value != nil {
				e.Properties["f"] = tc.value
			}
			got, err := int64Property(e, "f")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %d got %d err:%v", tc.want, got, err)
			}
		})
	}
}

func TestLastModifiedAdvancesUnderFrozenClock(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	record := &types.LeaseRecord{Key: "LEASE", SubKey: "CROSS_DC_LEADER", Value: "DC-A"}

	first := leasedoc.NextLastModified(fixed, time.Time{})
	if !first.Equal(fixed) {
		t.Fatalf("expected now got %v", first)
	}

	e := &storage.Entity{PartitionKey: "LEASE", RowKey: "CROSS_DC_LEADER"}
	e.Properties = leaseProperties(record, fixed, first)
	stored, err := entityToLease(e)
	if err != nil {
		t.Fatalf("failed to convert:%v", err)
	}
	if !stored.LastModified.Equal(first) {
		t.Fatalf("expected lm %v to survive the entity got %v", first, stored.LastModified)
	}

	second := leasedoc.NextLastModified(fixed, stored.LastModified)
	if !second.After(stored.LastModified) {
		t.Fatalf("expected strictly newer lm got %v after %v", second, stored.LastModified)
	}
}

// runs against a real account, see CROSSDC_TESTING_VARS
func TestConformance(t *testing.T) {
	c := basictestutils.MakeTestConfig(t, false)
	s, err := NewStore(context.Background(), c)
	if err != nil {
		t.Fatalf("failed to create store:%v", err)
	}
	storetest.Run(t, func(t *testing.T) types.LeaseStore {
		return s
	})
}
