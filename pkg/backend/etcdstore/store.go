// Package etcdstore keeps the lease as a JSON value under prefix/key/subKey
// and guards updates with a transaction on the key's mod revision.
package etcdstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.etcd.io/etcd/clientv3"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/backend/leasedoc"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	DefaultPrefix      = "/crossdc"
	DefaultDialTimeout = 5 * time.Second
)

type store struct {
	client *clientv3.Client
	prefix string
	owned  bool

	now func() time.Time
}

var _ types.LeaseStore = (*store)(nil)

func NewStore(ctx context.Context, c *config.Config) (types.LeaseStore, error) {
	dialTimeout := c.Etcd.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   c.EtcdEndpoints(),
		DialTimeout: dialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	s := NewStoreWithClient(client, c.Etcd.Prefix)
	s.(*store).owned = true
	klogv2.Infof("etcd lease store ready on endpoints:%v prefix:%v", c.EtcdEndpoints(), s.(*store).prefix)
	return s, nil
}

// NewStoreWithClient uses an existing client. Close does not close it.
func NewStoreWithClient(client *clientv3.Client, prefix string) types.LeaseStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &store{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *store) keyFor(key string, subKey string) string {
	return path.Join(s.prefix, key, subKey)
}

func (s *store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	doc, _, err := s.get(ctx, key, subKey)
	if err != nil {
		return nil, err
	}
	return doc.Record(key, subKey), nil
}

func (s *store) get(ctx context.Context, key string, subKey string) (*leasedoc.Doc, int64, error) {
	res, err := s.client.Get(ctx, s.keyFor(key, subKey))
	if err != nil {
		return nil, 0, err
	}
	if len(res.Kvs) == 0 {
		return nil, 0, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
	}

	doc, err := leasedoc.Unmarshal(res.Kvs[0].Value)
	if err != nil {
		return nil, 0, err
	}
	return doc, res.Kvs[0].ModRevision, nil
}

func (s *store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	doc := leasedoc.New(record, record.Until, leasedoc.NextLastModified(s.now(), time.Time{}))
	doc.CreatedAt = createdAt.UnixNano()
	doc.Note = note
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	k := s.keyFor(record.Key, record.SubKey)
	res, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, string(data))).
		Commit()
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
	}
	return nil
}

func (s *store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	conditionFailed := fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)

	doc, modRevision, err := s.get(ctx, record.Key, record.SubKey)
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

	k := s.keyFor(record.Key, record.SubKey)
	res, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(k), "=", modRevision)).
		Then(clientv3.OpPut(k, string(data))).
		Commit()
	if err != nil {
		return err
	}
	if !res.Succeeded {
		klogv2.V(4).Infof("etcd: lease %s changed between read and write", k)
		return conditionFailed
	}
	return nil
}

func (s *store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
