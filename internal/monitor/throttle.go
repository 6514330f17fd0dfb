package monitor

import (
	"hash/fnv"
	"sync"
	"time"
)

const throttleShards = 16

// Throttle rate-limits alerts per subject: an alert passes only when the
// interval since the subject's last alert has elapsed AND the subject is
// under its hourly budget. The check and the counter updates happen under
// one shard lock so two concurrent callers cannot both pass on the same
// remaining budget.
type Throttle struct {
	interval   time.Duration
	maxPerHour int
	shards     [throttleShards]throttleShard
}

type throttleShard struct {
	mu       sync.Mutex
	subjects map[string]*subjectState
}

type subjectState struct {
	lastAlert   time.Time
	windowStart time.Time
	count       int
}

// NewThrottle configures per-subject rate limiting. Non-positive arguments
// fall back to 60s and 10 alerts per hour.
func NewThrottle(interval time.Duration, maxPerHour int) *Throttle {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if maxPerHour <= 0 {
		maxPerHour = 10
	}
	t := &Throttle{interval: interval, maxPerHour: maxPerHour}
	for i := range t.shards {
		t.shards[i].subjects = make(map[string]*subjectState)
	}
	return t
}

func (t *Throttle) shardFor(subject string) *throttleShard {
	h := fnv.New32a()
	h.Write([]byte(subject))
	return &t.shards[h.Sum32()%throttleShards]
}

// Allow reports whether an alert for the subject may be emitted now, and if
// so records the emission.
func (t *Throttle) Allow(subject string, now time.Time) bool {
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subjects[subject]
	if !ok {
		st = &subjectState{windowStart: now}
		s.subjects[subject] = st
	}

	if now.Sub(st.windowStart) >= time.Hour {
		st.windowStart = now
		st.count = 0
	}

	if !st.lastAlert.IsZero() && now.Sub(st.lastAlert) < t.interval {
		return false
	}
	if st.count >= t.maxPerHour {
		return false
	}

	st.lastAlert = now
	st.count++
	return true
}

// Pending returns the subject's remaining hourly budget. Diagnostic only.
func (t *Throttle) Pending(subject string, now time.Time) int {
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subjects[subject]
	if !ok || now.Sub(st.windowStart) >= time.Hour {
		return t.maxPerHour
	}
	return t.maxPerHour - st.count
}
