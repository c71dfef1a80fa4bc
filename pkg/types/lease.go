package types

import (
	"fmt"
	"time"
)

type LeaseState int

const (
	AbsentLease  LeaseState = 0
	ActiveLease  LeaseState = 1
	ExpiredLease LeaseState = 2
)

func (s LeaseState) String() string {
	switch s {
	case ActiveLease:
		return "active"
	case ExpiredLease:
		return "expired"
	default:
		return "absent"
	}
}

// LeaseRecord is the single shared row competing instances race on.
// LastModified is stamped by the store on every successful write and
// is the token conditional updates are checked against.
type LeaseRecord struct {
	Key          string
	SubKey       string
	Value        string
	UpdateIP     string
	UpdateUser   string
	LastModified time.Time
	Until        time.Time
}

// IsActive is false for a nil lease.
func (l *LeaseRecord) IsActive(now time.Time) bool {
	return l != nil && now.Before(l.Until)
}

// IsExpired is false for a nil lease. absent and expired are distinct states.
func (l *LeaseRecord) IsExpired(now time.Time) bool {
	return l != nil && !now.Before(l.Until)
}

func (l *LeaseRecord) State(now time.Time) LeaseState {
	switch {
	case l.IsActive(now):
		return ActiveLease
	case l.IsExpired(now):
		return ExpiredLease
	default:
		return AbsentLease
	}
}

func (l *LeaseRecord) Copy() *LeaseRecord {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (l *LeaseRecord) String() string {
	if l == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%s value:%s until:%s lastModified:%s updateIP:%s updateUser:%s",
		l.Key, l.SubKey, l.Value,
		l.Until.UTC().Format(time.RFC3339Nano),
		l.LastModified.UTC().Format(time.RFC3339Nano),
		l.UpdateIP, l.UpdateUser)
}
