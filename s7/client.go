// Client: the top-level façade wiring Connection + Registry + Scheduler +
// Watchdog + EventBus together, the public entry point per spec.md §6.
// Grounded on the teacher's s7/client.go functional-options Connect(address,
// opts...) pattern, adapted to own the raw connection/registry/scheduler
// stack this repo implements from scratch rather than wrapping
// github.com/robinson/gos7.
package s7

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"s7comm/internal/logging"
)

// Option configures a Client at construction time.
type Option func(*clientOptions)

type clientOptions struct {
	rack              int
	slot              int
	connectTimeout    time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	pollInterval      time.Duration
	proposedPDULength uint16
	watchdog          *WatchdogSpec
	log               *logging.Logger
	metrics           *Metrics
}

// WithRackSlot sets the CPU rack/slot used in the COTP connection request.
// Defaults to rack 0, slot 2 (S7-300/400 convention); S7-1200/1500 users
// typically want slot 1.
func WithRackSlot(rack, slot int) Option {
	return func(o *clientOptions) { o.rack, o.slot = rack, slot }
}

// WithTimeouts sets the connect/read/write timeouts.
func WithTimeouts(connect, read, write time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout, o.readTimeout, o.writeTimeout = connect, read, write
	}
}

// WithPollInterval sets the scheduler tick interval. Default 1s.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) { o.pollInterval = d }
}

// WithProposedPDULength overrides the proposed PDU length sent in Setup
// Communication. Default 960.
func WithProposedPDULength(n uint16) Option {
	return func(o *clientOptions) { o.proposedPDULength = n }
}

// WithWatchdog configures a periodic liveness write. addr must be a
// word-aligned DB address.
func WithWatchdog(addr string, value uint16, interval time.Duration) Option {
	return func(o *clientOptions) {
		spec, err := NewWatchdogSpec(addr, value, interval)
		if err == nil {
			o.watchdog = &spec
		}
	}
}

// WithLogger installs a custom logger. Defaults to a disabled logging.Logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

// WithMetricsRegisterer registers this client's Prometheus collectors
// against reg. If omitted, collectors are created but never registered.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) { o.metrics = NewMetrics(reg) }
}

// Client is the public entry point: one S7 connection plus its tag
// registry, poll scheduler, optional watchdog, and event surface.
type Client struct {
	conn  *Connection
	reg   *Registry
	sched *Scheduler
	bus   *EventBus
	met   *Metrics
	log   *logging.Logger

	cancel context.CancelFunc
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{
		rack:              0,
		slot:              2,
		connectTimeout:    5 * time.Second,
		readTimeout:       3 * time.Second,
		writeTimeout:      3 * time.Second,
		pollInterval:      time.Second,
		proposedPDULength: DefaultProposedPDULength,
	}
}

// NewClient constructs a Client for endpoint without connecting. Call Run
// to start the connection and scheduler goroutines (a configured watchdog
// rides the scheduler's own goroutine, see Run).
func NewClient(endpoint string, opts ...Option) *Client {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.New()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}

	bus := NewEventBus()
	conn := NewConnection(ConnConfig{
		Endpoint:          endpoint,
		Rack:              o.rack,
		Slot:              o.slot,
		ConnectTimeout:    o.connectTimeout,
		ReadTimeout:       o.readTimeout,
		WriteTimeout:      o.writeTimeout,
		ProposedPDULength: o.proposedPDULength,
	}, o.log, o.metrics)
	conn.OnStatusChange(bus.emitStatus)

	reg := NewRegistry()
	sched := NewScheduler(SchedulerConfig{TickInterval: o.pollInterval}, conn, reg, bus, o.metrics)
	if o.watchdog != nil {
		sched.SetWatchdog(NewWatchdog(*o.watchdog))
	}

	return &Client{conn: conn, reg: reg, sched: sched, bus: bus, met: o.metrics, log: o.log}
}

// Run starts the connection's reconnect loop and the poll scheduler,
// blocking until ctx is cancelled. A configured watchdog has no goroutine
// of its own -- its due writes are issued from inside the scheduler's own
// tick, per spec.md §4.8. It is meant to be run in its own goroutine by
// the caller.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	go c.conn.Run(ctx)
	go c.sched.Run(ctx)
	<-ctx.Done()
}

// Close stops all background work started by Run.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.conn.Disconnect()
}

// AddTag registers a tag by address string and type for reading/polling.
func (c *Client) AddTag(name, address string, typ DataType, pollEnabled bool) error {
	loc, err := ParseAddress(address)
	if err != nil {
		return err
	}
	c.reg.AddOrUpdate(name, loc, typ, pollEnabled)
	return nil
}

// RemoveTag unregisters a tag.
func (c *Client) RemoveTag(name string) error { return c.reg.Remove(name) }

// SetPoll enables or disables polling for a registered tag.
func (c *Client) SetPoll(name string, enabled bool) error { return c.reg.SetPoll(name, enabled) }

// Write stages a value to be written on the tag's next scheduler tick.
func (c *Client) Write(name string, v Value) error { return c.reg.EnqueueWrite(name, v) }

// ReadNow forces a single-tag read outside the scheduler's tick, using the
// same batching machinery with a one-item batch.
func (c *Client) ReadNow(ctx context.Context, name string) (Value, error) {
	tag, ok := c.reg.Get(name)
	if !ok {
		return Value{}, newErr(ErrUnknownTag, "unknown tag %q", name)
	}
	results, err := c.conn.ReadBatch(ctx, []ReadItem{{Location: tag.Location, Type: tag.Type}})
	if err != nil {
		return Value{}, err
	}
	if len(results) == 0 {
		return Value{}, newErr(ErrPduTooShort, "read response for tag %q was too short", name)
	}
	if !results[0].OK() {
		return Value{}, ItemError(results[0].ReturnCode)
	}
	return Decode(results[0].Payload, tag.Type, tag.Location.BitOffset)
}

// Tag returns the current observed state of a registered tag.
func (c *Client) Tag(name string) (Tag, bool) { return c.reg.Get(name) }

// Events returns the client's event bus for subscribing to changes,
// errors, and connection-status transitions.
func (c *Client) Events() *EventBus { return c.bus }

// State returns the connection's current state.
func (c *Client) State() State { return c.conn.State() }
