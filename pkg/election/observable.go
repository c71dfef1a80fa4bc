package election

import (
	"strings"
	"sync"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/types"
)

type Observable struct {
	lock      sync.RWMutex
	nextID    int
	observers map[int]types.Observer
	order     []int
}

func NewObservable() *Observable {
	return &Observable{
		observers: make(map[int]types.Observer),
	}
}

// AddObserver registers o and returns a func that removes it again.
func (o *Observable) AddObserver(obs types.Observer) (remove func()) {
	o.lock.Lock()
	defer o.lock.Unlock()

	id := o.nextID
	o.nextID++
	o.observers[id] = obs
	o.order = append(o.order, id)

	return func() {
		o.lock.Lock()
		defer o.lock.Unlock()
		if _, ok := o.observers[id]; !ok {
			return
		}
		delete(o.observers, id)
		for i, v := range o.order {
			if v == id {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
}

func (o *Observable) ObserverCount() int {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return len(o.order)
}

// notifies in registration order. a panicking observer does not stop the others
func (o *Observable) notifyObservers(electionName string, leader string) {
	o.lock.RLock()
	observers := make([]types.Observer, 0, len(o.order))
	for _, id := range o.order {
		observers = append(observers, o.observers[id])
	}
	o.lock.RUnlock()

	for _, obs := range observers {
		notifyOne(obs, electionName, leader)
	}
}

func notifyOne(obs types.Observer, electionName string, leader string) {
	defer func() {
		if r := recover(); r != nil {
			klogv2.Errorf("election:%v observer panicked: %v", electionName, r)
		}
	}()
	obs.Observe(electionName, leader)
}

// LeaderHolder remembers the last leader each election announced.
type LeaderHolder struct {
	lock    sync.RWMutex
	leaders map[string]string
}

var _ types.Observer = (*LeaderHolder)(nil)

func NewLeaderHolder() *LeaderHolder {
	return &LeaderHolder{
		leaders: make(map[string]string),
	}
}

func (h *LeaderHolder) Observe(electionName string, leader string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	prev, known := h.leaders[electionName]
	if !known || prev != leader {
		if leader == "" {
			klogv2.Infof("election:%v has no current leader (previous:%q)", electionName, prev)
		} else {
			klogv2.Infof("election:%v leader is now %v (previous:%q)", electionName, leader, prev)
		}
	}
	h.leaders[electionName] = leader
}

// Leader returns false when no leader is currently known.
func (h *LeaderHolder) Leader(electionName string) (string, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	leader := h.leaders[electionName]
	return leader, leader != ""
}

func (h *LeaderHolder) IsLeader(electionName string, dataCenter string) bool {
	leader, ok := h.Leader(electionName)
	return ok && strings.EqualFold(leader, dataCenter)
}
