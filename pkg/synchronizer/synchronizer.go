// Package synchronizer groups frames from independent streams into
// FrameSets that share one capture instant.
package synchronizer

import (
	"sync"
	"time"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// DefaultCadence is used for streams configured without a cadence.
const DefaultCadence = 33 * time.Millisecond

// stallFactor is how many cadences a pending set waits for a missing stream.
const stallFactor = 2

type streamState struct {
	cfg pipeline.StreamConfig

	frame    *pipeline.Frame // pending slot, nil when empty
	filledAt time.Time

	// lastHeard is when the stream last delivered a frame in sequence.
	// Refilling a slot moves it forward; nothing else does.
	lastHeard time.Time

	lastSeq uint64
	seen    bool

	received uint64
	dropped  uint64
	absent   uint64
}

// Synchronizer holds one pending slot per stream under a single mutex.
//
// Add stores a frame and emits a FrameSet once every slot holds a frame
// within skew of the earliest one. Expire emits a partial set once every
// stream missing from the pending group is overdue: silent for more than
// twice its cadence, or kept waiting for that long.
type Synchronizer struct {
	mu      sync.Mutex
	order   []pipeline.StreamID
	streams map[pipeline.StreamID]*streamState
	out     *pipeline.Handoff[*pipeline.FrameSet]
	now     func() time.Time
	logger  ports.Logger

	started   time.Time // first Add, the silence clock of streams never heard from
	nextIndex uint64
	emitted   uint64
	partial   uint64
	unknown   uint64
	overflow  uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithOutput makes every emitted set go onto out, in index order.
func WithOutput(out *pipeline.Handoff[*pipeline.FrameSet]) Option {
	return func(s *Synchronizer) {
		s.out = out
	}
}

// New creates a synchronizer for the given streams, in order.
func New(streams []pipeline.StreamConfig, logger ports.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		order:   make([]pipeline.StreamID, 0, len(streams)),
		streams: make(map[pipeline.StreamID]*streamState, len(streams)),
		now:     time.Now,
		logger:  logger.WithComponent("sync"),
	}
	for _, cfg := range streams {
		if cfg.Cadence <= 0 {
			cfg.Cadence = DefaultCadence
		}
		s.order = append(s.order, cfg.ID)
		s.streams[cfg.ID] = &streamState{cfg: cfg}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Streams returns the configured stream order.
func (s *Synchronizer) Streams() []pipeline.StreamID {
	return s.order
}

// Add offers a frame and returns the set it completed, if any.
func (s *Synchronizer) Add(frame *pipeline.Frame) *pipeline.FrameSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, ok := s.streams[frame.StreamID]
	if !ok {
		s.unknown++
		s.logger.Debug("Ignoring frame from unknown stream %s", frame.StreamID)
		return nil
	}
	st.received++
	if s.started.IsZero() {
		s.started = now
	}

	if st.seen && frame.Sequence < st.lastSeq {
		st.dropped++
		s.logger.Debug("Dropped frame %s #%d: out of order (last #%d)", frame.StreamID, frame.Sequence, st.lastSeq)
		return s.expireLocked(now)
	}
	st.seen = true
	st.lastSeq = frame.Sequence
	st.lastHeard = now

	if cur := st.frame; cur != nil {
		st.dropped++
		if cur.Timestamp > frame.Timestamp {
			s.logger.Debug("Dropped frame %s #%d: older than pending #%d", frame.StreamID, frame.Sequence, cur.Sequence)
			return s.expireLocked(now)
		}
		s.logger.Debug("Dropped frame %s #%d: superseded by #%d", cur.StreamID, cur.Sequence, frame.Sequence)
	}
	st.frame = frame
	st.filledAt = now

	if set := s.completeLocked(); set != nil {
		return set
	}
	return s.expireLocked(now)
}

// Expire emits a partial set if a missing stream is overdue.
func (s *Synchronizer) Expire() *pipeline.FrameSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(s.now())
}

// anchorLocked returns the earliest pending timestamp.
func (s *Synchronizer) anchorLocked() (time.Duration, bool) {
	var anchor time.Duration
	found := false
	for _, id := range s.order {
		f := s.streams[id].frame
		if f == nil {
			continue
		}
		if !found || f.Timestamp < anchor {
			anchor = f.Timestamp
			found = true
		}
	}
	return anchor, found
}

// inSkew reports whether the pending frame of st pairs with anchor.
// The boundary is inclusive.
func inSkew(st *streamState, anchor time.Duration) bool {
	return st.frame != nil && st.frame.Timestamp-anchor <= st.cfg.MaxSkew
}

func (s *Synchronizer) completeLocked() *pipeline.FrameSet {
	anchor, ok := s.anchorLocked()
	if !ok {
		return nil
	}
	for _, id := range s.order {
		if !inSkew(s.streams[id], anchor) {
			return nil
		}
	}
	return s.emitLocked(s.order)
}

func (s *Synchronizer) expireLocked(now time.Time) *pipeline.FrameSet {
	anchor, ok := s.anchorLocked()
	if !ok {
		return nil
	}

	var group []pipeline.StreamID
	var since time.Time
	for _, id := range s.order {
		st := s.streams[id]
		if !inSkew(st, anchor) {
			continue
		}
		group = append(group, id)
		if since.IsZero() || st.filledAt.Before(since) {
			since = st.filledAt
		}
	}

	waited := now.Sub(since)
	for _, id := range s.order {
		st := s.streams[id]
		if inSkew(st, anchor) {
			continue
		}
		limit := stallFactor * st.cfg.Cadence
		if waited <= limit && now.Sub(s.lastHeardLocked(st)) <= limit {
			return nil
		}
	}
	return s.emitLocked(group)
}

func (s *Synchronizer) lastHeardLocked(st *streamState) time.Time {
	if st.lastHeard.IsZero() {
		return s.started
	}
	return st.lastHeard
}

// emitLocked builds a set from the pending frames of members and clears their slots.
func (s *Synchronizer) emitLocked(members []pipeline.StreamID) *pipeline.FrameSet {
	set := pipeline.NewFrameSet(s.nextIndex, s.order)
	s.nextIndex++

	for _, id := range members {
		st := s.streams[id]
		set.Frames[id] = st.frame
		st.frame = nil
	}
	s.emitted++

	if absent := set.Absent(); len(absent) > 0 {
		s.partial++
		for _, id := range absent {
			s.streams[id].absent++
		}
		s.logger.Warn("Partial set %d: missing %v", set.Index, absent)
	} else {
		s.logger.Debug("Set %d complete, span %v", set.Index, set.Span())
	}

	if s.out != nil {
		if evicted, dropped := s.out.Push(set); dropped {
			s.overflow++
			s.logger.Warn("Hand-off queue full, dropped set %d", evicted.Index)
		}
	}
	return set
}

// Stats returns a snapshot of the synchronizer counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	streams := make(map[pipeline.StreamID]StreamStats, len(s.order))
	pending := 0
	for _, id := range s.order {
		st := s.streams[id]
		if st.frame != nil {
			pending++
		}
		streams[id] = StreamStats{
			Received: st.received,
			Dropped:  st.dropped,
			Absent:   st.absent,
		}
	}
	return Stats{
		Emitted:  s.emitted,
		Partial:  s.partial,
		Unknown:  s.unknown,
		Overflow: s.overflow,
		Pending:  pending,
		Streams:  streams,
	}
}

// Stats summarises synchronizer activity.
type Stats struct {
	Emitted  uint64 // Sets emitted, complete or partial
	Partial  uint64
	Unknown  uint64 // Frames from streams that are not configured
	Overflow uint64 // Sets evicted from a full output queue
	Pending  int    // Slots currently filled
	Streams  map[pipeline.StreamID]StreamStats
}

// StreamStats summarises one stream.
type StreamStats struct {
	Received uint64
	Dropped  uint64 // Superseded or out-of-order frames
	Absent   uint64 // Partial sets this stream was missing from
}
