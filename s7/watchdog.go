// Watchdog: tracks when a configured u16 liveness value is due to be
// written to a DB word address, per spec.md §4.8. New code -- the teacher
// has no watchdog concept -- grounded in the surrounding Connection/Metrics
// wiring and in plcman/manager.go's watchdogLoop naming convention, but
// reworked into a pure due-tracker with no I/O of its own: spec.md §4.8
// says "the scheduler writes the configured u16 value", so the write
// itself is funneled through Scheduler.runWrites rather than a second
// goroutine racing Connection's socket.
package s7

import "time"

// watchdogTagName is the pseudo tag name the watchdog's write is reported
// under on the event surface; it is never added to the registry.
const watchdogTagName = "__watchdog__"

// WatchdogSpec is the validated, ready-to-write form of a configured
// watchdog: an address already confirmed to be a word-aligned DB address.
type WatchdogSpec struct {
	Location Location
	Value    uint16
	Interval time.Duration
}

// NewWatchdogSpec validates addr via ValidateWatchdogAddress and returns a
// ready-to-run WatchdogSpec.
func NewWatchdogSpec(addr string, value uint16, interval time.Duration) (WatchdogSpec, error) {
	loc, err := ValidateWatchdogAddress(addr)
	if err != nil {
		return WatchdogSpec{}, err
	}
	return WatchdogSpec{Location: loc, Value: value, Interval: interval}, nil
}

// Watchdog tracks when its configured value is next due to be written. It
// performs no I/O itself -- Scheduler.runWrites asks it whether a write is
// due on every tick and, if so, folds writeItem() into that tick's
// write batch, so the watchdog write is never issued from a goroutine
// other than the scheduler's own serialized tick loop.
type Watchdog struct {
	spec      WatchdogSpec
	lastWrite time.Time
}

// NewWatchdog constructs a Watchdog from a validated spec.
func NewWatchdog(spec WatchdogSpec) *Watchdog {
	return &Watchdog{spec: spec}
}

// due reports whether the watchdog interval has elapsed since the last
// attempted write (successful or not).
func (w *Watchdog) due(now time.Time) bool {
	return w.lastWrite.IsZero() || now.Sub(w.lastWrite) >= w.spec.Interval
}

// markAttempt records now as the time of the most recent write attempt,
// regardless of whether it succeeded.
func (w *Watchdog) markAttempt(now time.Time) {
	w.lastWrite = now
}

// writeItem builds the WriteItem for this watchdog's configured value.
func (w *Watchdog) writeItem() WriteItem {
	return WriteItem{
		Name:     watchdogTagName,
		Location: w.spec.Location,
		Value:    NewWord(w.spec.Value),
	}
}
