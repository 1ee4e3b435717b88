// Package controller runs a capture session: it pulls frames from every
// source, pairs them into sets, throttles them to the capture interval
// and hands them to the persistence stage.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
	"github.com/user/depthcap/pkg/synchronizer"
)

// State is the lifecycle state of a Controller.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config contains the controller settings.
type Config struct {
	// Streams describes every source, in the order sets list them.
	// Sources without an entry get the synchronizer defaults.
	Streams []pipeline.StreamConfig

	// Interval forwards at most one set per interval. Zero forwards every set.
	Interval time.Duration

	// PopTimeout bounds every hand-off wait.
	PopTimeout time.Duration

	// MaxConsecutiveFailures persist failures in a row stop the session.
	MaxConsecutiveFailures int

	// QueueCapacity is the size of both hand-off queues.
	QueueCapacity int

	// FlushTimeout bounds the drain of queued sets on stop.
	FlushTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Interval:               time.Second,
		PopTimeout:             100 * time.Millisecond,
		MaxConsecutiveFailures: 5,
		QueueCapacity:          2,
		FlushTimeout:           5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = def.PopTimeout
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = def.FlushTimeout
	}
	return c
}

type streamCounters struct {
	frames   atomic.Uint64
	timeouts atomic.Uint64
	errors   atomic.Uint64
}

// Controller coordinates sources, synchronizer and persistence.
type Controller struct {
	cfg     Config
	sources []ports.FrameSource
	sink    pipeline.Persister
	logger  ports.Logger

	syncer   *synchronizer.Synchronizer
	syncOut  *pipeline.Handoff[*pipeline.FrameSet]
	persistQ *pipeline.Handoff[*pipeline.FrameSet]
	counters map[pipeline.StreamID]*streamCounters

	state    atomic.Int32
	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	fatal     error
	sinkFatal bool
	lastErr   error
	startedAt time.Time
	stoppedAt time.Time

	cadenceSkipped atomic.Uint64
	flushDropped   atomic.Uint64
	persisted      atomic.Uint64
	failed         atomic.Uint64
	files          atomic.Uint64
	consecutive    atomic.Int64
	lastIndex      atomic.Int64

	// detached is set when an aborted sink call outlives the abort grace.
	// Its result is then ignored.
	recordMu sync.Mutex
	detached bool
}

// abortGrace bounds the wait for a sink call cancelled by the flush timeout.
var abortGrace = time.Second

// New creates a controller over the given sources and persistence stage.
func New(cfg Config, sources []ports.FrameSource, sink pipeline.Persister, logger ports.Logger) *Controller {
	cfg = cfg.withDefaults()

	byID := make(map[pipeline.StreamID]pipeline.StreamConfig, len(cfg.Streams))
	for _, s := range cfg.Streams {
		byID[s.ID] = s
	}
	streams := make([]pipeline.StreamConfig, 0, len(sources))
	counters := make(map[pipeline.StreamID]*streamCounters, len(sources))
	for _, src := range sources {
		sc, ok := byID[src.ID()]
		if !ok {
			sc = pipeline.StreamConfig{ID: src.ID()}
		}
		streams = append(streams, sc)
		counters[src.ID()] = &streamCounters{}
	}

	c := &Controller{
		cfg:      cfg,
		sources:  sources,
		sink:     sink,
		logger:   logger.WithComponent("controller"),
		syncOut:  pipeline.NewHandoff[*pipeline.FrameSet](cfg.QueueCapacity),
		persistQ: pipeline.NewHandoff[*pipeline.FrameSet](cfg.QueueCapacity),
		counters: counters,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.syncer = synchronizer.New(streams, logger, synchronizer.WithOutput(c.syncOut))
	c.lastIndex.Store(-1)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start moves the controller from Idle to Running and spawns the workers.
// Cancelling ctx stops the session the same way Stop does.
func (c *Controller) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return pipeline.ErrAlreadyStarted
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.logger.Info("Capture started: %d streams, interval %v", len(c.sources), c.cfg.Interval)

	srcCtx, cancelSources := context.WithCancel(ctx)
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	persistCtx, cancelPersist := context.WithCancel(context.WithoutCancel(ctx))

	var sourcesWG sync.WaitGroup
	for _, src := range c.sources {
		sourcesWG.Add(1)
		go func(src ports.FrameSource) {
			defer sourcesWG.Done()
			c.runSource(srcCtx, src)
		}(src)
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		c.runDispatch(dispatchCtx)
	}()

	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		c.runPersist(persistCtx)
	}()

	go func() {
		select {
		case <-c.stopping:
		case <-ctx.Done():
			c.logger.Info("Interrupted, shutting down...")
			c.requestStop()
		}

		c.state.Store(int32(StateDraining))
		c.logger.Info("Draining")

		cancelSources()
		sourcesWG.Wait()
		cancelDispatch()
		<-dispatchDone

		c.mu.Lock()
		sinkFatal := c.sinkFatal
		c.mu.Unlock()
		if sinkFatal {
			if n := len(c.persistQ.Drain()); n > 0 {
				c.flushDropped.Add(uint64(n))
				c.logger.Warn("Discarded %d queued sets after persistence failure", n)
			}
		}
		c.persistQ.Close()

		timer := time.NewTimer(c.cfg.FlushTimeout)
		select {
		case <-persistDone:
			timer.Stop()
		case <-timer.C:
			c.logger.Warn("Flush timed out after %v", c.cfg.FlushTimeout)
			cancelPersist()
			grace := time.NewTimer(abortGrace)
			select {
			case <-persistDone:
				grace.Stop()
			case <-grace.C:
				c.recordMu.Lock()
				c.detached = true
				c.recordMu.Unlock()
				c.logger.Warn("Persistence did not stop within %v, ignoring its result", abortGrace)
			}
		}
		cancelPersist()

		c.mu.Lock()
		c.stoppedAt = time.Now()
		c.mu.Unlock()
		c.state.Store(int32(StateStopped))
		c.logger.Info("Capture stopped: %d sets persisted, %d failed", c.persisted.Load(), c.failed.Load())
		close(c.done)
	}()

	return nil
}

// Stop requests a graceful stop. It does not wait; use Wait for that.
// Stopping an idle controller moves it straight to Stopped.
func (c *Controller) Stop() {
	if c.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		c.stopOnce.Do(func() { close(c.stopping) })
		close(c.done)
		return
	}
	c.requestStop()
}

func (c *Controller) requestStop() {
	c.stopOnce.Do(func() { close(c.stopping) })
}

// Done is closed once the controller reaches Stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the controller is Stopped and returns the fatal
// error that stopped it, or nil after a clean stop.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the controller and blocks until it stops.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-c.done
	return c.Err()
}

// Err returns the fatal error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// fail records a fatal error and starts draining.
func (c *Controller) fail(err error, fromSink bool) {
	c.mu.Lock()
	first := c.fatal == nil
	if first {
		c.fatal = err
	}
	if fromSink {
		c.sinkFatal = true
	}
	c.mu.Unlock()

	if first {
		c.logger.Error("Capture failed: %v", err)
	}
	c.requestStop()
}

func (c *Controller) runSource(ctx context.Context, src ports.FrameSource) {
	id := src.ID()
	counters := c.counters[id]

	for ctx.Err() == nil {
		frame, err := src.Next(ctx)
		switch {
		case err == nil:
			counters.frames.Add(1)
			c.syncer.Add(frame)

		case errors.Is(err, pipeline.ErrTimeout):
			counters.timeouts.Add(1)
			c.syncer.Expire()

		case errors.Is(err, pipeline.ErrDisconnected):
			c.fail(err, false)
			return

		case ctx.Err() != nil:
			return

		default:
			counters.errors.Add(1)
			c.logger.Warn("Stream %s: %v", id, err)
			c.syncer.Expire()
			if !sleepCtx(ctx, c.cfg.PopTimeout) {
				return
			}
		}
	}
}

// runDispatch moves sets from the synchronizer to the persistence queue,
// at most one per Interval. When sets arrive faster, only the most recent
// one is kept.
func (c *Controller) runDispatch(ctx context.Context) {
	var held *pipeline.FrameSet
	var lastForward time.Time

	due := func() bool {
		return c.cfg.Interval <= 0 || lastForward.IsZero() || time.Since(lastForward) >= c.cfg.Interval
	}
	hold := func(set *pipeline.FrameSet) {
		if held != nil {
			c.cadenceSkipped.Add(1)
			c.logger.Debug("Cadence skipped set %d", held.Index)
		}
		held = set
	}

	for {
		wait := c.cfg.PopTimeout
		if held != nil {
			if remaining := c.cfg.Interval - time.Since(lastForward); remaining < wait {
				wait = remaining
			}
		}

		set, err := c.syncOut.Pop(ctx, wait)
		if err != nil && !errors.Is(err, pipeline.ErrTimeout) {
			break
		}
		if set != nil {
			hold(set)
		}
		if held != nil && due() {
			c.forward(held)
			held = nil
			lastForward = time.Now()
		}
	}

	// Sources have stopped; forward what is left under the same rule.
	for _, set := range c.syncOut.Drain() {
		if c.cfg.Interval <= 0 {
			c.forward(set)
			continue
		}
		hold(set)
	}
	if held != nil {
		c.forward(held)
	}
}

func (c *Controller) forward(set *pipeline.FrameSet) {
	if evicted, dropped := c.persistQ.Push(set); dropped {
		c.logger.Warn("Persist queue full, dropped set %d", evicted.Index)
	}
}

func (c *Controller) runPersist(ctx context.Context) {
	for {
		set, err := c.persistQ.Pop(ctx, c.cfg.PopTimeout)
		if errors.Is(err, pipeline.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}

		result, err := c.sink.Execute(ctx, set)
		if !c.record(ctx, set, result, err) {
			return
		}
	}
}

// record books the outcome of one sink call and reports whether the
// persistence worker should keep going.
func (c *Controller) record(ctx context.Context, set *pipeline.FrameSet, result pipeline.PersistResult, err error) bool {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if c.detached {
		return false
	}

	if err != nil {
		c.failed.Add(1)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("Failed to persist set %d: %v", set.Index, err)

		// Aborted by the flush timeout, not a sink failure.
		if ctx.Err() != nil {
			return false
		}
		n := c.consecutive.Add(1)
		if n >= int64(c.cfg.MaxConsecutiveFailures) {
			c.fail(fmt.Errorf("%w: %d in a row, last: %v", pipeline.ErrTooManyFailures, n, err), true)
			return false
		}
		return true
	}

	c.consecutive.Store(0)
	c.persisted.Add(1)
	c.files.Add(uint64(len(result.Paths)))
	c.lastIndex.Store(int64(set.Index))
	if set.Partial() {
		c.logger.Info("Saved set %d (%d files, missing %v)", set.Index, len(result.Paths), set.Absent())
	} else {
		c.logger.Info("Saved set %d (%d files)", set.Index, len(result.Paths))
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns a snapshot of the session counters.
func (c *Controller) Stats() Stats {
	ss := c.syncer.Stats()

	streams := make(map[pipeline.StreamID]StreamStats, len(c.sources))
	for _, src := range c.sources {
		id := src.ID()
		cnt := c.counters[id]
		st := ss.Streams[id]
		streams[id] = StreamStats{
			Frames:   cnt.frames.Load(),
			Timeouts: cnt.timeouts.Load(),
			Errors:   cnt.errors.Load(),
			Dropped:  st.Dropped,
			Absent:   st.Absent,
		}
	}

	c.mu.Lock()
	lastErr := ""
	if c.lastErr != nil {
		lastErr = c.lastErr.Error()
	}
	fatal := ""
	if c.fatal != nil {
		fatal = c.fatal.Error()
	}
	startedAt, stoppedAt := c.startedAt, c.stoppedAt
	c.mu.Unlock()

	return Stats{
		State:               c.State(),
		StartedAt:           startedAt,
		StoppedAt:           stoppedAt,
		Streams:             streams,
		SetsEmitted:         ss.Emitted,
		SetsPartial:         ss.Partial,
		SyncOverflow:        ss.Overflow,
		CadenceSkipped:      c.cadenceSkipped.Load(),
		PersistOverflow:     c.persistQ.Dropped() + c.flushDropped.Load(),
		Persisted:           c.persisted.Load(),
		Failed:              c.failed.Load(),
		Files:               c.files.Load(),
		LastIndex:           c.lastIndex.Load(),
		ConsecutiveFailures: int(c.consecutive.Load()),
		LastError:           lastErr,
		FatalError:          fatal,
	}
}

// Stats is a snapshot of a capture session.
type Stats struct {
	State     State
	StartedAt time.Time
	StoppedAt time.Time

	Streams map[pipeline.StreamID]StreamStats

	SetsEmitted     uint64 // Sets produced by the synchronizer
	SetsPartial     uint64
	SyncOverflow    uint64 // Sets evicted from the synchronizer hand-off
	CadenceSkipped  uint64 // Sets replaced by a newer one within an interval
	PersistOverflow uint64 // Sets evicted from or discarded by the persist queue

	Persisted           uint64
	Failed              uint64
	Files               uint64
	LastIndex           int64 // -1 until a set is persisted
	ConsecutiveFailures int
	LastError           string
	FatalError          string
}

// Duration returns how long the session ran, up to now if still running.
func (s Stats) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.StoppedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.StoppedAt.Sub(s.StartedAt)
}

// StreamStats summarises one stream.
type StreamStats struct {
	Frames   uint64 // Frames received from the source
	Timeouts uint64
	Errors   uint64
	Dropped  uint64 // Superseded or out-of-order frames
	Absent   uint64 // Partial sets missing this stream
}
