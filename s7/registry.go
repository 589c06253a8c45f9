// Tag registry: the set of named addresses the scheduler polls and the
// client reads/writes ad hoc. Grounded on plcman/manager.go's ManagedPLC
// (map of tags guarded by a mutex, copy-then-release-lock before I/O) and
// on plcman/tagvalue.go's TagValue/StableValue change-detection fields,
// restructured around this package's own Location/DataType/Value types
// instead of the teacher's driver.TagInfo/interface{} pair.
package s7

import (
	"sync"
	"time"
)

// Tag is one registered address: its location/type, poll state, and the
// last observed raw bytes, decoded value, and error.
type Tag struct {
	Name         string
	Location     Location
	Type         DataType
	PollEnabled  bool
	LastRaw      []byte
	LastValue    Value
	LastReadAt   time.Time
	LastError    error
	PendingWrite *Value
}

func (t Tag) hasLastValue() bool { return t.LastRaw != nil }

// Registry is the concurrency-safe store of Tags a Client polls and
// serves reads/writes against. Per spec.md §4.5: many concurrent readers,
// a single scheduler writer, and add/remove is atomic with respect to the
// scheduler's batch-build snapshot (Snapshot takes the same lock as
// AddOrUpdate/Remove).
type Registry struct {
	mu   sync.RWMutex
	tags map[string]*Tag
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tags: make(map[string]*Tag)}
}

// AddOrUpdate inserts a new tag or updates an existing one's location/type
// binding, leaving its last-observed state alone if name and location/type
// are unchanged. A location/type change resets the tag's observed state.
func (r *Registry) AddOrUpdate(name string, loc Location, typ DataType, pollEnabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tags[name]
	if ok && existing.Location == loc && existing.Type.Kind == typ.Kind && existing.Type.Len == typ.Len {
		existing.PollEnabled = pollEnabled
		return
	}
	r.tags[name] = &Tag{
		Name:        name,
		Location:    loc,
		Type:        typ,
		PollEnabled: pollEnabled,
	}
}

// Remove deletes a tag by name. Removing an unknown name is a no-op, but
// an empty name is rejected as BadName per spec.md §4.5.
func (r *Registry) Remove(name string) error {
	if name == "" {
		return newErr(ErrBadName, "tag name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, name)
	return nil
}

// Get returns a copy of the named tag's current state.
func (r *Registry) Get(name string) (Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tags[name]
	if !ok {
		return Tag{}, false
	}
	return *t, true
}

// SetPoll enables or disables polling for a tag without disturbing its
// last observed state.
func (r *Registry) SetPoll(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[name]
	if !ok {
		return newErr(ErrUnknownTag, "unknown tag %q", name)
	}
	t.PollEnabled = enabled
	return nil
}

// EnqueueWrite stages a value to be written on the tag's next scheduler
// tick, per spec.md §4.7's "writes precede the read tick" ordering.
func (r *Registry) EnqueueWrite(name string, v Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[name]
	if !ok {
		return newErr(ErrUnknownTag, "unknown tag %q", name)
	}
	if !sameKind(t.Type, v.Type) {
		return newErr(ErrTypeMismatch, "tag %q is %s, value is %s", name, t.Type, v.Type)
	}
	t.PendingWrite = &v
	return nil
}

// Snapshot returns a stable copy of every registered tag, taken under a
// single lock acquisition so the scheduler's batch planner sees a
// consistent view even if AddOrUpdate/Remove run concurrently.
func (r *Registry) Snapshot() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, *t)
	}
	return out
}

// PollEnabledTags returns a snapshot of only the tags currently marked
// for polling.
func (r *Registry) PollEnabledTags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tag, 0, len(r.tags))
	for _, t := range r.tags {
		if t.PollEnabled {
			out = append(out, *t)
		}
	}
	return out
}

// DrainPendingWrites returns and clears every tag's staged write, in no
// particular order; the scheduler issues these before the next read tick.
func (r *Registry) DrainPendingWrites() []WriteItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []WriteItem
	for _, t := range r.tags {
		if t.PendingWrite != nil {
			out = append(out, WriteItem{Name: t.Name, Location: t.Location, Value: *t.PendingWrite})
			t.PendingWrite = nil
		}
	}
	return out
}

// applyReadResult records a decoded value against a tag by name, updating
// LastValue only when the return code was OK -- a failed item records
// LastError without disturbing the last good value, per spec.md §4.7.
func (r *Registry) applyReadResult(name string, raw []byte, v Value, readErr error) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[name]
	if !ok {
		return false
	}
	t.LastReadAt = time.Now()
	if readErr != nil {
		t.LastError = readErr
		return false
	}
	t.LastError = nil
	changed = !t.hasLastValue() || !t.LastValue.Equal(v)
	t.LastRaw = raw
	t.LastValue = v
	return changed
}

func (r *Registry) applyWriteResult(name string, writeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tags[name]; ok {
		t.LastError = writeErr
	}
}
