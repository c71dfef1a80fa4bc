package types

import "time"

// MetricsCollector records election engine activity.
type MetricsCollector interface {
	RecordCycle(electionName string, elected bool)
	RecordElectAttempt(electionName string)
	RecordUpdateFailure(electionName string, conditionFailed bool)
	RecordRefreshFailure(electionName string)
	RecordElectExhausted(electionName string)
	RecordElectDelay(electionName string, delay time.Duration)
	RecordLeaseState(electionName string, state LeaseState, remaining time.Duration)
}
