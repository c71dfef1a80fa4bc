// Package leasedoc is the JSON shape lease records take in key value
// backends (etcd, nats kv, bolt) where a row is a single opaque value.
package leasedoc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/khenidak/crossdc/pkg/types"
)

type Doc struct {
	Value        string `json:"value"`
	UpdateIP     string `json:"updateIP"`
	UpdateUser   string `json:"updateUser"`
	Until        int64  `json:"until"`        // unix nano
	LastModified int64  `json:"lastModified"` // unix nano
	CreatedAt    int64  `json:"createdAt"`    // unix nano
	Note         string `json:"note,omitempty"`
}

func New(record *types.LeaseRecord, until time.Time, lastModified time.Time) *Doc {
	return &Doc{
		Value:        record.Value,
		UpdateIP:     record.UpdateIP,
		UpdateUser:   record.UpdateUser,
		Until:        until.UnixNano(),
		LastModified: lastModified.UnixNano(),
	}
}

// Update moves the lease fields of record onto d and keeps created at and note.
func (d *Doc) Update(record *types.LeaseRecord, until time.Time, lastModified time.Time) {
	d.Value = record.Value
	d.UpdateIP = record.UpdateIP
	d.UpdateUser = record.UpdateUser
	d.Until = until.UnixNano()
	d.LastModified = lastModified.UnixNano()
}

func (d *Doc) Record(key string, subKey string) *types.LeaseRecord {
	return &types.LeaseRecord{
		Key:          key,
		SubKey:       subKey,
		Value:        d.Value,
		UpdateIP:     d.UpdateIP,
		UpdateUser:   d.UpdateUser,
		Until:        time.Unix(0, d.Until).UTC(),
		LastModified: time.Unix(0, d.LastModified).UTC(),
	}
}

func (d *Doc) LastModifiedTime() time.Time {
	return time.Unix(0, d.LastModified).UTC()
}

func (d *Doc) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func Unmarshal(data []byte) (*Doc, error) {
	d := &Doc{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to decode lease document: %w", err)
	}
	return d, nil
}

// NextLastModified returns now, or prev plus a microsecond when the clock
// has not moved past prev.
func NextLastModified(now time.Time, prev time.Time) time.Time {
	now = now.UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond).UTC()
	}
	return now
}
