package metrics

import (
	"time"

	"github.com/khenidak/crossdc/pkg/types"
)

// NopMetrics discards everything.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordCycle(string, bool) {}
func (n *NopMetrics) RecordElectAttempt(string) {}
func (n *NopMetrics) RecordUpdateFailure(string, bool) {}
func (n *NopMetrics) RecordRefreshFailure(string) {}
func (n *NopMetrics) RecordElectExhausted(string) {}
func (n *NopMetrics) RecordElectDelay(string, time.Duration) {}
func (n *NopMetrics) RecordLeaseState(string, types.LeaseState, time.Duration) {}
