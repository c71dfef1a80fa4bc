// Package natsstore keeps the lease in a JetStream key value bucket. The
// entry key is key.subKey and updates are conditioned on the entry revision.
package natsstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

type store struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	owned bool
	now   func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	nc, err := nats.Connect(c.NATS.URL,
		nats.Name("crossdc-"+c.DataCenter),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", c.NATS.URL, err)
	}

	s, err := NewStoreWithConn(ctx, nc, c.NATS.Bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.(*store).owned = true
	klogv2.Infof("nats lease store ready on url:%v bucket:%v", c.NATS.URL, c.NATS.Bucket)
	return s, nil
}

// NewStoreWithConn binds (creating if needed) the bucket on an existing
// connection. Close does not close nc.
func NewStoreWithConn(ctx context.Context, nc *nats.Conn, bucket string) (types.LeaseStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "cross dc leader leases",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv bucket %s: %w", bucket, err)
	}

	return &store{
		nc:  nc,
		kv:  kv,
		now: time.Now,
	}, nil
}

func entryKey(key string, subKey string) string {
	return key + "." + subKey
}

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	doc, _, err := s.get(ctx, key, subKey)
	if err != nil {
		return nil, err
	}
	return doc.Record(key, subKey), nil
}

func (s *store) get(ctx context.Context, key string, subKey string) (*leasedoc.Doc, uint64, error) {
	entry, err := s.kv.Get(ctx, entryKey(key, subKey))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, 0, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
		}
		return nil, 0, err
	}

	doc, err := leasedoc.Unmarshal(entry.Value())
	if err != nil {
		return nil, 0, err
	}
	return doc, entry.Revision(), nil
}

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	doc := leasedoc.New(record, record.Until, leasedoc.NextLastModified(s.now(), time.Time{}))
	doc.CreatedAt = createdAt.UnixNano()
	doc.Note = note
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	if _, err := s.kv.Create(ctx, entryKey(record.Key, record.SubKey), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
		}
		return err
	}
	return nil
}

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	conditionFailed := fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)

	doc, revision, err := s.get(ctx, record.Key, record.SubKey)
	if err != nil {
		if errors.Is(err, types.ErrLeaseNotFound) {
			return conditionFailed
		}
		return err
	}
	if !doc.LastModifiedTime().Equal(expectedLastModified) {
		return conditionFailed
	}

	doc.Update(record, until, leasedoc.NextLastModified(s.now(), doc.LastModifiedTime()))
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	if _, err := s.kv.Update(ctx, entryKey(record.Key, record.SubKey), data, revision); err != nil {
		// wrong last sequence is the same api error ErrKeyExists carries
		if errors.Is(err, jetstream.ErrKeyExists) {
			klogv2.V(4).Infof("nats: lease %s/%s changed between read and write", record.Key, record.SubKey)
			return conditionFailed
		}
		return err
	}
	return nil
}

func (s *store) Close() error {
	if s.owned {
		s.nc.Close()
	}
	return nil
}
