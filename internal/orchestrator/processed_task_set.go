package orchestrator

import (
	"container/list"
	"sync"
)

// processedKey identifies one (taskId, targetLanguage) pair, the dedup
// granularity spec §3 and §8 name for ProcessedTaskSet: a fanout
// translation request can complete once per target language, and each
// must be processed exactly once even if the bus redelivers.
type processedKey struct {
	taskID         string
	targetLanguage string
}

// ProcessedTaskSet is a bounded dedup set of (taskId, targetLanguage)
// pairs. Membership check and insertion are one operation (Seen) so a
// caller can never race between checking and marking. Eviction is FIFO
// at capacity, matching spec §3's "eldest entries are dropped first" and
// built the same container/list+map way as cache.TranslationCache.
type ProcessedTaskSet struct {
	mu       sync.Mutex
	capacity int
	members  map[processedKey]*list.Element
	order    *list.List // front = most recently inserted, back = eldest
}

// NewProcessedTaskSet builds a set with the given capacity. A capacity
// of zero or less defaults to 1000, the spec's named bound.
func NewProcessedTaskSet(capacity int) *ProcessedTaskSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ProcessedTaskSet{
		capacity: capacity,
		members:  make(map[processedKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// Seen reports whether (taskID, targetLanguage) was already marked
// processed, and if not, marks it now, evicting the eldest entry first
// if the set is already at capacity. This is the only entry point:
// there is no separate "Add" to avoid a check-then-act race.
func (s *ProcessedTaskSet) Seen(taskID, targetLanguage string) bool {
	key := processedKey{taskID: taskID, targetLanguage: targetLanguage}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[key]; ok {
		return true
	}

	el := s.order.PushFront(key)
	s.members[key] = el

	if s.order.Len() > s.capacity {
		eldest := s.order.Back()
		if eldest != nil {
			s.order.Remove(eldest)
			delete(s.members, eldest.Value.(processedKey))
		}
	}
	return false
}

// Len returns the current number of tracked (taskId, targetLanguage) pairs.
func (s *ProcessedTaskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
