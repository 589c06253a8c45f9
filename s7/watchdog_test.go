package s7

import (
	"context"
	"testing"
	"time"
)

func TestWatchdogDueInitiallyAndAfterInterval(t *testing.T) {
	spec, err := NewWatchdogSpec("DB1.DBW0", 7, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	wd := NewWatchdog(spec)

	now := time.Now()
	if !wd.due(now) {
		t.Fatal("expected a freshly constructed watchdog to be due immediately")
	}

	wd.markAttempt(now)
	if wd.due(now.Add(50 * time.Millisecond)) {
		t.Fatal("expected watchdog to not be due before its interval elapses")
	}
	if !wd.due(now.Add(200 * time.Millisecond)) {
		t.Fatal("expected watchdog to be due once its interval has elapsed")
	}
}

func TestWatchdogWriteItem(t *testing.T) {
	spec, err := NewWatchdogSpec("DB1.DBW0", 42, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	wd := NewWatchdog(spec)

	item := wd.writeItem()
	if item.Name != watchdogTagName {
		t.Fatalf("expected watchdog write item name %q, got %q", watchdogTagName, item.Name)
	}
	v, err := item.Value.Uint()
	if err != nil || v != 42 {
		t.Fatalf("expected watchdog write value 42, got %v (err %v)", v, err)
	}
}

// TestSchedulerIssuesWatchdogWriteFromTick pins the fix for a concurrency
// bug where the watchdog wrote over the shared net.Conn from its own
// goroutine, racing Scheduler's tick loop. The watchdog write must now be
// observable purely as a side effect of Scheduler.tick, with no goroutine
// of the watchdog's own.
func TestSchedulerIssuesWatchdogWriteFromTick(t *testing.T) {
	sched, _, _, _, closeFn := newTestSchedulerRig(t)
	defer closeFn()

	spec, err := NewWatchdogSpec("DB1.DBW0", 99, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	wd := NewWatchdog(spec)
	sched.SetWatchdog(wd)

	sched.tick(context.Background())

	if wd.due(time.Now()) {
		t.Fatal("expected the scheduler's tick to have marked the watchdog write attempt")
	}
}
