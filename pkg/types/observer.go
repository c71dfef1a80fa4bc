package types

// Observer receives the outcome of every election cycle. leader is empty when
// the lease is expired and no current leader is known. Notifications are
// current-truth broadcasts and repeat every cycle, not edge triggered.
type Observer interface {
	Observe(electionName string, leader string)
}

type ObserverFunc func(electionName string, leader string)

func (f ObserverFunc) Observe(electionName string, leader string) {
	f(electionName, leader)
}
