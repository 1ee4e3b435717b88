package synchronizer

import (
	"sync"
	"testing"
	"time"

	"github.com/user/depthcap/pkg/adapters/logger"
	"github.com/user/depthcap/pkg/pipeline"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var threeStreams = []pipeline.StreamID{pipeline.StreamRectLeft, pipeline.StreamRectRight, pipeline.StreamColor}

func streamConfigs(ids []pipeline.StreamID, cadence, skew time.Duration) []pipeline.StreamConfig {
	cfgs := make([]pipeline.StreamConfig, len(ids))
	for i, id := range ids {
		cfgs[i] = pipeline.StreamConfig{ID: id, Cadence: cadence, MaxSkew: skew}
	}
	return cfgs
}

func mkFrame(id pipeline.StreamID, seq uint64, ts time.Duration) *pipeline.Frame {
	return &pipeline.Frame{StreamID: id, Sequence: seq, Timestamp: ts}
}

func newTestSync(clock *fakeClock, cadence, skew time.Duration, opts ...Option) *Synchronizer {
	opts = append(opts, WithClock(clock.Now))
	return New(streamConfigs(threeStreams, cadence, skew), logger.NewNoop(), opts...)
}

func TestSynchronizer_OneSetPerTickWithoutSkew(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, time.Second, 50*time.Millisecond)

	for tick := 0; tick < 5; tick++ {
		ts := time.Duration(tick) * time.Second
		var set *pipeline.FrameSet
		for i, id := range threeStreams {
			got := s.Add(mkFrame(id, uint64(tick), ts))
			if i < len(threeStreams)-1 && got != nil {
				t.Fatalf("tick %d: set emitted before all streams arrived", tick)
			}
			set = got
		}
		if set == nil {
			t.Fatalf("tick %d: expected a set", tick)
		}
		if set.Index != uint64(tick) {
			t.Errorf("expected index %d, got %d", tick, set.Index)
		}
		if set.Partial() {
			t.Errorf("tick %d: expected complete set, absent %v", tick, set.Absent())
		}
		for _, id := range threeStreams {
			if set.Frames[id].Timestamp != ts {
				t.Errorf("tick %d: stream %s paired with timestamp %v", tick, id, set.Frames[id].Timestamp)
			}
		}
		clock.Advance(time.Second)
	}

	stats := s.Stats()
	if stats.Emitted != 5 || stats.Partial != 0 || stats.Pending != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSynchronizer_SkewBoundaryInclusive(t *testing.T) {
	skew := 50 * time.Millisecond

	clock := newFakeClock()
	s := newTestSync(clock, time.Second, skew)
	s.Add(mkFrame(pipeline.StreamRectLeft, 0, 0))
	s.Add(mkFrame(pipeline.StreamRectRight, 0, skew))
	if set := s.Add(mkFrame(pipeline.StreamColor, 0, skew)); set == nil {
		t.Error("expected frames exactly at the tolerance to pair")
	}

	s = newTestSync(clock, time.Second, skew)
	s.Add(mkFrame(pipeline.StreamRectLeft, 0, 0))
	s.Add(mkFrame(pipeline.StreamRectRight, 0, skew+time.Nanosecond))
	if set := s.Add(mkFrame(pipeline.StreamColor, 0, 0)); set != nil {
		t.Error("expected frames beyond the tolerance not to pair")
	}
	if s.Stats().Pending != 3 {
		t.Errorf("expected all three frames to stay pending, got %d", s.Stats().Pending)
	}
}

func TestSynchronizer_RefillDiscardsStaleFrame(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, 33*time.Millisecond, 5*time.Millisecond)

	s.Add(mkFrame(pipeline.StreamRectLeft, 1, 0))
	s.Add(mkFrame(pipeline.StreamRectLeft, 2, 33*time.Millisecond))
	s.Add(mkFrame(pipeline.StreamRectRight, 2, 33*time.Millisecond))
	set := s.Add(mkFrame(pipeline.StreamColor, 2, 34*time.Millisecond))

	if set == nil {
		t.Fatal("expected a complete set")
	}
	if got := set.Frames[pipeline.StreamRectLeft].Sequence; got != 2 {
		t.Errorf("expected refilled frame #2 for recLeft, got #%d", got)
	}
	if dropped := s.Stats().Streams[pipeline.StreamRectLeft].Dropped; dropped != 1 {
		t.Errorf("expected 1 dropped recLeft frame, got %d", dropped)
	}
}

func TestSynchronizer_LaterTimestampWins(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, 33*time.Millisecond, 20*time.Millisecond)

	s.Add(mkFrame(pipeline.StreamRectLeft, 4, 15*time.Millisecond))
	s.Add(mkFrame(pipeline.StreamRectLeft, 5, 10*time.Millisecond))
	s.Add(mkFrame(pipeline.StreamRectRight, 5, 12*time.Millisecond))
	set := s.Add(mkFrame(pipeline.StreamColor, 5, 12*time.Millisecond))

	if set == nil {
		t.Fatal("expected a complete set")
	}
	if got := set.Frames[pipeline.StreamRectLeft].Timestamp; got != 15*time.Millisecond {
		t.Errorf("expected the most recent recLeft frame, got timestamp %v", got)
	}
}

func TestSynchronizer_OutOfOrderSequenceDropped(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, time.Second, time.Millisecond)

	s.Add(mkFrame(pipeline.StreamColor, 7, time.Second))
	s.Add(mkFrame(pipeline.StreamColor, 6, 2*time.Second))

	stats := s.Stats()
	if stats.Streams[pipeline.StreamColor].Dropped != 1 {
		t.Errorf("expected out-of-order frame to be dropped, stats %+v", stats.Streams[pipeline.StreamColor])
	}

	s.Add(mkFrame(pipeline.StreamRectLeft, 7, time.Second))
	set := s.Add(mkFrame(pipeline.StreamRectRight, 7, time.Second))
	if set == nil || set.Frames[pipeline.StreamColor].Sequence != 7 {
		t.Errorf("expected set with color #7, got %+v", set)
	}
}

func TestSynchronizer_PartialSetWhenStreamStalls(t *testing.T) {
	clock := newFakeClock()
	cadence := 100 * time.Millisecond
	s := newTestSync(clock, cadence, 10*time.Millisecond)

	s.Add(mkFrame(pipeline.StreamRectLeft, 0, 0))
	s.Add(mkFrame(pipeline.StreamRectRight, 0, time.Millisecond))

	clock.Advance(2 * cadence)
	if set := s.Expire(); set != nil {
		t.Fatal("expected no partial set at exactly twice the cadence")
	}

	clock.Advance(time.Millisecond)
	set := s.Expire()
	if set == nil {
		t.Fatal("expected a partial set after the stall deadline")
	}
	absent := set.Absent()
	if len(absent) != 1 || absent[0] != pipeline.StreamColor {
		t.Errorf("expected color absent, got %v", absent)
	}
	if _, ok := set.Frames[pipeline.StreamColor]; !ok {
		t.Error("expected absent stream to be an explicit key")
	}

	stats := s.Stats()
	if stats.Partial != 1 || stats.Streams[pipeline.StreamColor].Absent != 1 || stats.Pending != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// The pipeline keeps going with the next complete set.
	s.Add(mkFrame(pipeline.StreamRectLeft, 1, 100*time.Millisecond))
	s.Add(mkFrame(pipeline.StreamRectRight, 1, 100*time.Millisecond))
	next := s.Add(mkFrame(pipeline.StreamColor, 1, 100*time.Millisecond))
	if next == nil || next.Index != 1 || next.Partial() {
		t.Errorf("expected complete set 1, got %+v", next)
	}
}

func TestSynchronizer_PartialSetsWhileOtherStreamsKeepDelivering(t *testing.T) {
	clock := newFakeClock()
	cadence := 100 * time.Millisecond
	s := newTestSync(clock, cadence, 10*time.Millisecond)

	var sets []*pipeline.FrameSet
	var firstAt time.Duration
	collect := func(set *pipeline.FrameSet, at time.Duration) {
		if set == nil {
			return
		}
		if len(sets) == 0 {
			firstAt = at
		}
		sets = append(sets, set)
	}

	// Color never delivers; its source times out between ticks.
	for tick := 0; tick < 10; tick++ {
		at := time.Duration(tick) * cadence
		collect(s.Add(mkFrame(pipeline.StreamRectLeft, uint64(tick), at)), at)
		collect(s.Add(mkFrame(pipeline.StreamRectRight, uint64(tick), at)), at)
		clock.Advance(cadence / 2)
		collect(s.Expire(), at+cadence/2)
		clock.Advance(cadence / 2)
	}

	if len(sets) == 0 {
		t.Fatal("expected partial sets while color is silent")
	}
	if firstAt > 2*cadence+cadence {
		t.Errorf("expected the first partial set within 2 cadences plus a tick, got %v", firstAt)
	}
	if len(sets) != 8 {
		t.Errorf("expected one partial set per tick after the deadline, got %d", len(sets))
	}
	for i, set := range sets {
		absent := set.Absent()
		if len(absent) != 1 || absent[0] != pipeline.StreamColor {
			t.Errorf("set %d: expected only color absent, got %v", set.Index, absent)
		}
		if got := set.Frames[pipeline.StreamRectLeft].Sequence; got != uint64(i+2) {
			t.Errorf("set %d: expected the most recent recLeft frame #%d, got #%d", set.Index, i+2, got)
		}
	}
	if dropped := s.Stats().Streams[pipeline.StreamRectLeft].Dropped; dropped != 2 {
		t.Errorf("expected only the frames before the deadline to be superseded, got %d", dropped)
	}
}

func TestSynchronizer_LateStreamStillPairs(t *testing.T) {
	clock := newFakeClock()
	cadence := 100 * time.Millisecond
	s := newTestSync(clock, cadence, 10*time.Millisecond)

	// A stream that is merely behind the others within a tick is waited for.
	for tick := 0; tick < 5; tick++ {
		at := time.Duration(tick) * cadence
		s.Add(mkFrame(pipeline.StreamRectLeft, uint64(tick), at))
		s.Add(mkFrame(pipeline.StreamRectRight, uint64(tick), at))
		clock.Advance(cadence / 2)
		if set := s.Expire(); set != nil {
			t.Fatalf("tick %d: unexpected partial set, absent %v", tick, set.Absent())
		}
		set := s.Add(mkFrame(pipeline.StreamColor, uint64(tick), at+time.Millisecond))
		if set == nil || set.Partial() {
			t.Fatalf("tick %d: expected a complete set, got %+v", tick, set)
		}
		clock.Advance(cadence / 2)
	}
}

func TestSynchronizer_PartialKeepsFramesOutsideSkew(t *testing.T) {
	clock := newFakeClock()
	cadence := 100 * time.Millisecond
	s := newTestSync(clock, cadence, 10*time.Millisecond)

	s.Add(mkFrame(pipeline.StreamRectLeft, 0, 0))
	s.Add(mkFrame(pipeline.StreamColor, 0, 80*time.Millisecond))

	clock.Advance(250 * time.Millisecond)
	set := s.Expire()
	if set == nil {
		t.Fatal("expected partial set")
	}
	if set.Frames[pipeline.StreamRectLeft] == nil || set.Frames[pipeline.StreamColor] != nil {
		t.Errorf("expected only recLeft in the partial set, got absent %v", set.Absent())
	}
	if pending := s.Stats().Pending; pending != 1 {
		t.Errorf("expected the color frame to remain pending, got %d", pending)
	}
}

func TestSynchronizer_ExpireWithNothingPending(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, time.Millisecond, time.Millisecond)

	clock.Advance(time.Hour)
	if set := s.Expire(); set != nil {
		t.Errorf("expected nothing to expire, got %+v", set)
	}
}

func TestSynchronizer_UnknownStreamIgnored(t *testing.T) {
	clock := newFakeClock()
	s := newTestSync(clock, time.Second, time.Millisecond)

	if set := s.Add(mkFrame(pipeline.StreamDisparity, 0, 0)); set != nil {
		t.Error("expected no set from unknown stream")
	}
	if s.Stats().Unknown != 1 {
		t.Errorf("expected 1 unknown frame, got %d", s.Stats().Unknown)
	}
}

func TestSynchronizer_OutputOverflowDropsOldest(t *testing.T) {
	clock := newFakeClock()
	out := pipeline.NewHandoff[*pipeline.FrameSet](1)
	s := newTestSync(clock, time.Second, time.Millisecond, WithOutput(out))

	for tick := 0; tick < 3; tick++ {
		ts := time.Duration(tick) * time.Second
		for _, id := range threeStreams {
			s.Add(mkFrame(id, uint64(tick), ts))
		}
	}

	if s.Stats().Overflow != 2 {
		t.Errorf("expected 2 overflowed sets, got %d", s.Stats().Overflow)
	}
	set, ok := out.TryPop()
	if !ok || set.Index != 2 {
		t.Errorf("expected the newest set 2 in the queue, got %+v", set)
	}
}

func TestSynchronizer_ConcurrentProducersKeepIndexOrder(t *testing.T) {
	out := pipeline.NewHandoff[*pipeline.FrameSet](1000)
	s := New(streamConfigs(threeStreams, time.Millisecond, time.Millisecond), logger.NewNoop(), WithOutput(out))

	var wg sync.WaitGroup
	for _, id := range threeStreams {
		wg.Add(1)
		go func(id pipeline.StreamID) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Add(mkFrame(id, uint64(i), time.Duration(i)*time.Second))
			}
		}(id)
	}
	wg.Wait()

	sets := out.Drain()
	if len(sets) == 0 {
		t.Fatal("expected at least one set")
	}
	for i, set := range sets {
		if i > 0 && set.Index <= sets[i-1].Index {
			t.Fatalf("set indices not strictly increasing: %d after %d", set.Index, sets[i-1].Index)
		}
		for id, f := range set.Frames {
			if f != nil && f.StreamID != id {
				t.Errorf("set %d: frame of %s stored under %s", set.Index, f.StreamID, id)
			}
		}
	}
}
