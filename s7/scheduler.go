// Poll scheduler: the tick loop described in spec.md §4.7. Grounded on
// plcman/manager.go's PLCWorker.pollLoop/poll (ticker-driven goroutine,
// snapshot-then-release-lock, per-worker stats), restructured around this
// package's Registry/planner/events instead of the teacher's
// driver.Driver interface and ValueChange struct.
package s7

import (
	"context"
	"time"
)

// SchedulerConfig parameterizes one Scheduler.
type SchedulerConfig struct {
	TickInterval  time.Duration
	DeadlineScale int // per-batch deadline = TickInterval * DeadlineScale; default 2
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.DeadlineScale <= 0 {
		c.DeadlineScale = 2
	}
	return c
}

// Scheduler drives periodic batched reads and writes against a Registry
// over a Connection, emitting change events through an EventBus.
type Scheduler struct {
	cfg  SchedulerConfig
	conn *Connection
	reg  *Registry
	bus  *EventBus
	met  *Metrics
	wd   *Watchdog
}

// NewScheduler constructs a Scheduler. bus and met may be nil.
func NewScheduler(cfg SchedulerConfig, conn *Connection, reg *Registry, bus *EventBus, met *Metrics) *Scheduler {
	if bus == nil {
		bus = NewEventBus()
	}
	if met == nil {
		met = NewMetrics(nil)
	}
	return &Scheduler{cfg: cfg.withDefaults(), conn: conn, reg: reg, bus: bus, met: met}
}

// SetWatchdog installs the watchdog whose due writes this scheduler's
// runWrites should fold into its own write batches. Per spec.md §4.8 the
// scheduler itself performs the watchdog write; there is no separate
// watchdog goroutine.
func (s *Scheduler) SetWatchdog(wd *Watchdog) {
	s.wd = wd
}

// Run drives the tick loop until ctx is cancelled. Per tick: drain pending
// writes (writes precede the read tick), snapshot poll-enabled tags, plan
// and execute read batches, decode and apply results, and emit events --
// at most once per tag per tick, even if a tag appears in more than one
// split sub-batch.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		s.met.pollDuration.Observe(time.Since(start).Seconds())
	}()

	if s.conn.State() != StateConnected {
		return
	}

	s.runWrites(ctx)

	tags := s.reg.PollEnabledTags()
	if len(tags) == 0 {
		return
	}

	pduSize := s.conn.PDUSize()
	if pduSize == 0 {
		return
	}
	batches := PlanReadBatches(tags, pduSize)

	deadline := s.cfg.TickInterval * time.Duration(s.cfg.DeadlineScale)
	changed := make(map[string]Value, len(tags))

	// Items belonging to one oversized, split tag can land in different
	// batches; gather every batch's items and results before applying any
	// of them, so a split tag is only ever decoded once it is complete.
	var allItems []ReadItem
	var allResults []ItemResult
	for _, batch := range batches {
		batchCtx, cancel := context.WithTimeout(ctx, deadline)
		results, err := s.conn.ReadBatch(batchCtx, batch)
		cancel()
		s.met.batchSize.Observe(float64(len(batch)))
		if err != nil || len(results) != len(batch) {
			continue
		}
		allItems = append(allItems, batch...)
		allResults = append(allResults, results...)
	}
	s.applyReadBatch(allItems, allResults, changed)
	s.bus.emitAggregate(changed)
}

// applyReadBatch decodes each item result against its item's type and
// records it under the tag whose Location the item belongs to. Multiple
// sub-items sharing one tag (from an oversized-tag split) are stitched
// back into the tag's original byte range before decoding.
func (s *Scheduler) applyReadBatch(batch []ReadItem, results []ItemResult, changed map[string]Value) {
	if len(results) != len(batch) {
		return
	}

	snapshot := s.reg.Snapshot()
	for _, tag := range snapshot {
		idxs := s.matchingItemIndexes(tag, batch)
		if len(idxs) == 0 {
			continue
		}
		s.applyTagResult(tag, results, idxs, changed)
	}
}

// matchingItemIndexes finds the batch indexes whose item range falls
// inside tag's declared range, covering both the unsplit case (one exact
// match) and the oversized-tag split case (several contiguous sub-ranges).
func (s *Scheduler) matchingItemIndexes(tag Tag, batch []ReadItem) []int {
	for i, it := range batch {
		if it.Location == tag.Location && it.Type.Kind == tag.Type.Kind && it.Type.Len == tag.Type.Len {
			return []int{i}
		}
	}
	var idxs []int
	for i, it := range batch {
		if it.Type.Kind != KindBytes || it.Location.Area != tag.Location.Area || it.Location.DBNumber != tag.Location.DBNumber {
			continue
		}
		tagEnd := tag.Location.StartByte + tag.Type.ByteWidth()
		if it.Location.StartByte >= tag.Location.StartByte && it.Location.StartByte < tagEnd {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (s *Scheduler) applyTagResult(tag Tag, results []ItemResult, idxs []int, changed map[string]Value) {
	for _, i := range idxs {
		if !results[i].OK() {
			err := ItemError(results[i].ReturnCode)
			s.reg.applyReadResult(tag.Name, nil, Value{}, err)
			s.bus.emitTagError(tag.Name, err)
			return
		}
	}

	var raw []byte
	if len(idxs) == 1 {
		raw = results[idxs[0]].Payload
	} else {
		for _, i := range idxs {
			raw = append(raw, results[i].Payload...)
		}
	}

	v, err := Decode(raw, tag.Type, tag.Location.BitOffset)
	if err != nil {
		s.reg.applyReadResult(tag.Name, nil, Value{}, err)
		s.bus.emitTagError(tag.Name, err)
		return
	}

	didChange := s.reg.applyReadResult(tag.Name, raw, v, nil)
	if didChange {
		// changed is keyed per tick, so a tag matched by multiple sub-batches
		// (oversized-tag split) still appears at most once here.
		changed[tag.Name] = v
		s.bus.emitChange(tag.Name, v)
	}
}

// runWrites drains and executes the pending-write queue, folding in the
// watchdog's write if one is installed and due -- per spec.md §4.8 the
// watchdog write is issued by the scheduler itself, on this same
// serialized path, never from an independent goroutine. Transient failure
// classes (timeout, transport closed) are retried once per spec.md §7; all
// other failures surface immediately as a tag error.
func (s *Scheduler) runWrites(ctx context.Context) {
	pending := s.reg.DrainPendingWrites()

	now := time.Now()
	if s.wd != nil && s.wd.due(now) {
		pending = append(pending, s.wd.writeItem())
		s.wd.markAttempt(now)
	}

	if len(pending) == 0 {
		return
	}
	pduSize := s.conn.PDUSize()
	if pduSize == 0 {
		return
	}
	batches := PlanWriteBatches(pending, pduSize)

	deadline := s.cfg.TickInterval * time.Duration(s.cfg.DeadlineScale)
	for _, batch := range batches {
		batchCtx, cancel := context.WithTimeout(ctx, deadline)
		results, err := s.conn.WriteBatch(batchCtx, batch)
		if err != nil && isTransientKind(err) {
			results, err = s.conn.WriteBatch(batchCtx, batch)
		}
		cancel()
		s.met.batchSize.Observe(float64(len(batch)))
		if err != nil {
			for _, it := range batch {
				s.failWrite(it, err)
			}
			continue
		}
		for i, it := range batch {
			if i < len(results) && !results[i].OK() {
				s.failWrite(it, ItemError(results[i].ReturnCode))
			}
		}
	}
}

// failWrite records a failed write against its tag and emits a tag-error
// event. The watchdog's pseudo tag isn't in the registry, so its failures
// are counted and surfaced through the watchdog-specific metric/event
// instead of a registry lookup that would never find it.
func (s *Scheduler) failWrite(it WriteItem, err error) {
	if it.Name == watchdogTagName {
		s.met.watchdogFails.Inc()
		werr := wrapErr(ErrWatchdogFailed, err, "watchdog write to %s failed", it.Location)
		s.bus.emitTagError(watchdogTagName, werr)
		return
	}
	s.reg.applyWriteResult(it.Name, err)
	s.bus.emitTagError(it.Name, err)
}

func isTransientKind(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind() == ErrTimedOut || e.Kind() == ErrTransportClosed
}
