package utils

import (
	"errors"
	"testing"
)

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		err       error
		transient bool
	}{
		{err: nil, transient: false},
		{err: errors.New("read tcp 10.0.0.1:443: connection reset by peer"), transient: true},
		{err: errors.New("write: broken pipe"), transient: true},
		{err: errors.New("storage: service returned error: StatusCode=412"), transient: false},
	}

	for _, tc := range testCases {
		if got := IsTransientError(tc.err); got != tc.transient {
			t.Fatalf("err:%v expected transient:%v got:%v", tc.err, tc.transient, got)
		}
	}
}
