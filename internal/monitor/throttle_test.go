package monitor

import (
	"testing"
	"time"
)

func TestThrottleMinimumInterval(t *testing.T) {
	th := NewThrottle(60*time.Second, 10)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if !th.Allow("600000", base) {
		t.Fatal("first alert must pass")
	}
	// 30s later: inside the interval.
	if th.Allow("600000", base.Add(30*time.Second)) {
		t.Fatal("second alert 30s after the first must be suppressed")
	}
	// 65s after the first: interval elapsed.
	if !th.Allow("600000", base.Add(65*time.Second)) {
		t.Fatal("third alert 65s after the first must pass")
	}
}

func TestThrottleSubjectsIndependent(t *testing.T) {
	th := NewThrottle(60*time.Second, 10)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if !th.Allow("600000", base) {
		t.Fatal("first subject must pass")
	}
	if !th.Allow("601088", base) {
		t.Fatal("second subject must not share the first subject's state")
	}
}

func TestThrottleHourlyBudget(t *testing.T) {
	th := NewThrottle(time.Second, 10)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	now := base
	for i := 0; i < 10; i++ {
		if !th.Allow("600000", now) {
			t.Fatalf("alert %d within budget must pass", i+1)
		}
		now = now.Add(2 * time.Second)
	}
	if th.Allow("600000", now) {
		t.Fatal("11th alert in the hour must be suppressed")
	}
	if got := th.Pending("600000", now); got != 0 {
		t.Fatalf("want 0 budget left, got %d", got)
	}

	// A new hour resets the budget.
	if !th.Allow("600000", base.Add(61*time.Minute)) {
		t.Fatal("budget must reset after the hour window")
	}
}
