// Package boltstore keeps leases in a local bbolt file. Electors sharing the
// file on one host compete through bolt's single writer transaction, which
// makes read-compare-write atomic.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	leaseBucketName = "leases"
	openTimeout     = 5 * time.Second
)

var ErrLeaseBucketNotFound = errors.New("lease bucket not found")

type store struct {
	db  *bolt.DB
	now func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	return Open(c.Bolt.Path)
}

func Open(path string) (types.LeaseStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}

	if err := initDB(db); err != nil {
		db.Close()
		return nil, err
	}

	klogv2.Infof("bolt lease store ready on path:%v", path)
	return &store{db: db, now: time.Now}, nil
}

func initDB(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(leaseBucketName))
		return err
	})
}

func rowKey(key string, subKey string) []byte {
	return []byte(key + "/" + subKey)
}

func leaseBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(leaseBucketName))
	if b == nil {
		return nil, ErrLeaseBucketNotFound
	}
	return b, nil
}

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *types.LeaseRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := leaseBucket(tx)
		if err != nil {
			return err
		}
		data := b.Get(rowKey(key, subKey))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
		}
		// data is only valid inside the tx, Unmarshal copies out
		doc, err := leasedoc.Unmarshal(data)
		if err != nil {
			return err
		}
		record = doc.Record(key, subKey)
		return nil
	})
	return record, err
}

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := leaseBucket(tx)
		if err != nil {
			return err
		}
		k := rowKey(record.Key, record.SubKey)
		if b.Get(k) != nil {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
		}

		doc := leasedoc.New(record, record.Until, leasedoc.NextLastModified(s.now(), time.Time{}))
		doc.CreatedAt = createdAt.UnixNano()
		doc.Note = note
		data, err := doc.Marshal()
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := leaseBucket(tx)
		if err != nil {
			return err
		}
		k := rowKey(record.Key, record.SubKey)
		data := b.Get(k)
		if data == nil {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)
		}
		doc, err := leasedoc.Unmarshal(data)
		if err != nil {
			return err
		}
		if !doc.LastModifiedTime().Equal(expectedLastModified) {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)
		}

		doc.Update(record, until, leasedoc.NextLastModified(s.now(), doc.LastModifiedTime()))
		updated, err := doc.Marshal()
		if err != nil {
			return err
		}
		return b.Put(k, updated)
	})
}

func (s *store) Close() error {
	return s.db.Close()
}
