// Package memstore keeps lease records in process memory. It is only useful
// when every competing elector lives in the same process, which is what
// tests and single host setups do.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/khenidak/crossdc/pkg/types"
)

type rowKey struct {
	key    string
	subKey string
}

type row struct {
	record    types.LeaseRecord
	createdAt time.Time
	note      string
}

type Store struct {
	lock   sync.Mutex
	rows   map[rowKey]*row
	lastLM time.Time

	now func() time.Time
}

var _ types.LeaseStore = (*Store)(nil)

func New() *Store {
	return &Store{
		rows: make(map[rowKey]*row),
		now:  time.Now,
	}
}

func (s *Store) Get(ctx context.Context, key string, subKey string) (*types.LeaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.rows[rowKey{key, subKey}]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", key, subKey, types.ErrLeaseNotFound)
	}
	out := r.record
	return &out, nil
}

func (s *Store) Insert(ctx context.Context, record *types.LeaseRecord, createdAt time.Time, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	k := rowKey{record.Key, record.SubKey}
	if _, ok := s.rows[k]; ok {
		return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrLeaseExists)
	}

	r := &row{record: *record, createdAt: createdAt, note: note}
	r.record.LastModified = s.nextLastModified()
	s.rows[k] = r
	return nil
}

func (s *Store) UpdateIdempotent(ctx context.Context, record *types.LeaseRecord, until time.Time, expectedLastModified time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.rows[rowKey{record.Key, record.SubKey}]
	if !ok || !r.record.LastModified.Equal(expectedLastModified) {
		return fmt.Errorf("%s/%s: %w", record.Key, record.SubKey, types.ErrConditionFailed)
	}

	r.record.Value = record.Value
	r.record.UpdateIP = record.UpdateIP
	r.record.UpdateUser = record.UpdateUser
	r.record.Until = until
	r.record.LastModified = s.nextLastModified()
	return nil
}

// Note returns the note a row was created with.
func (s *Store) Note(key string, subKey string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, ok := s.rows[rowKey{key, subKey}]
	if !ok {
		return "", false
	}
	return r.note, true
}

// Put overwrites a row unconditionally. meant for tests setting up state.
func (s *Store) Put(record *types.LeaseRecord) {
	s.lock.Lock()
	defer s.lock.Unlock()
	r := &row{record: *record, createdAt: s.now()}
	r.record.LastModified = s.nextLastModified()
	s.rows[rowKey{record.Key, record.SubKey}] = r
}

func (s *Store) Close() error {
	return nil
}

// caller holds the lock
func (s *Store) nextLastModified() time.Time {
	now := s.now().Round(0)
	if !now.After(s.lastLM) {
		now = s.lastLM.Add(time.Microsecond)
	}
	s.lastLM = now
	return now
}
