// Package simdevice provides a simulated stereo depth device.
//
// Every stream runs on its own goroutine at its configured cadence and
// publishes synthetic frames into a latest-only source. Timestamps come
// from one shared device clock, so streams ticking together pair up.
package simdevice

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
	"github.com/user/depthcap/pkg/source"
)

// ErrLinkLost is the cause reported when an injected disconnect fires.
var ErrLinkLost = errors.New("simulated link lost")

// Options configures the simulated device.
type Options struct {
	Streams []pipeline.StreamConfig

	// Timeout is the Next deadline of every source.
	Timeout time.Duration

	// Jitter is the maximum timestamp offset added to each frame.
	Jitter time.Duration

	// Seed makes jitter reproducible. Zero uses the current time.
	Seed int64

	// Stalled lists streams that start without producing frames.
	Stalled []pipeline.StreamID

	// DisconnectAfter drops the link once any stream has produced this
	// many frames. Zero disables it.
	DisconnectAfter uint64
}

type stream struct {
	cfg   pipeline.StreamConfig
	src   *source.Latest
	mu    sync.Mutex
	stall bool
	seq   uint64
	rng   *rand.Rand
}

// Device implements ports.Device with synthetic frames.
type Device struct {
	opts    Options
	streams []*stream
	byID    map[pipeline.StreamID]*stream
	logger  ports.Logger

	mu      sync.Mutex
	epoch   time.Time
	cancel  context.CancelFunc
	started bool
	closed  bool
	wg      sync.WaitGroup

	linkOnce sync.Once
}

// New creates a device with one source per configured stream.
func New(opts Options, logger ports.Logger) *Device {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	stalled := make(map[pipeline.StreamID]bool, len(opts.Stalled))
	for _, id := range opts.Stalled {
		stalled[id] = true
	}

	d := &Device{
		opts:   opts,
		byID:   make(map[pipeline.StreamID]*stream, len(opts.Streams)),
		logger: logger.WithComponent("device"),
	}
	for i, cfg := range opts.Streams {
		st := &stream{
			cfg:   cfg,
			src:   source.NewLatest(cfg.ID, opts.Timeout),
			stall: stalled[cfg.ID],
			rng:   rand.New(rand.NewSource(seed + int64(i))),
		}
		d.streams = append(d.streams, st)
		d.byID[cfg.ID] = st
	}
	return d
}

// Start begins producing frames on every stream.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("device already started")
	}
	if d.closed {
		return errors.New("device closed")
	}
	d.started = true
	d.epoch = time.Now()

	ctx, d.cancel = context.WithCancel(ctx)
	for _, st := range d.streams {
		d.wg.Add(1)
		go d.run(ctx, st)
	}
	d.logger.Info("Simulated device started with %d streams", len(d.streams))
	return nil
}

// Sources returns the sources in configured stream order.
func (d *Device) Sources() []ports.FrameSource {
	out := make([]ports.FrameSource, len(d.streams))
	for i, st := range d.streams {
		out[i] = st.src
	}
	return out
}

// Source returns the latest-only source of one stream.
func (d *Device) Source(id pipeline.StreamID) (*source.Latest, bool) {
	st, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return st.src, true
}

// Stall stops a stream from producing frames until Resume.
func (d *Device) Stall(id pipeline.StreamID) {
	d.setStall(id, true)
}

// Resume restarts a stalled stream.
func (d *Device) Resume(id pipeline.StreamID) {
	d.setStall(id, false)
}

func (d *Device) setStall(id pipeline.StreamID, stall bool) {
	st, ok := d.byID[id]
	if !ok {
		return
	}
	st.mu.Lock()
	st.stall = stall
	st.mu.Unlock()
	if stall {
		d.logger.Warn("Stream %s stalled", id)
	} else {
		d.logger.Info("Stream %s resumed", id)
	}
}

// Disconnect drops the link to every stream with the given cause.
func (d *Device) Disconnect(cause error) {
	d.logger.Error("Device link lost: %v", cause)
	for _, st := range d.streams {
		st.src.Disconnect(cause)
	}
}

// Close stops production and disconnects every source.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	for _, st := range d.streams {
		st.src.Disconnect(errors.New("device closed"))
	}
	return nil
}

// now returns the device monotonic clock.
func (d *Device) now() time.Duration {
	return time.Since(d.epoch)
}

func (d *Device) run(ctx context.Context, st *stream) {
	defer d.wg.Done()

	cadence := st.cfg.Cadence
	if cadence <= 0 {
		cadence = 33 * time.Millisecond
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, ok := d.produce(st)
		if !ok {
			continue
		}
		st.src.Publish(frame)

		if d.opts.DisconnectAfter > 0 && frame.Sequence+1 >= d.opts.DisconnectAfter {
			d.linkOnce.Do(func() {
				d.Disconnect(fmt.Errorf("%w after %d frames on %s", ErrLinkLost, frame.Sequence+1, st.cfg.ID))
			})
			return
		}
	}
}

func (d *Device) produce(st *stream) (*pipeline.Frame, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stall {
		return nil, false
	}

	ts := d.now()
	if j := d.opts.Jitter; j > 0 {
		ts += time.Duration(st.rng.Int63n(int64(2*j)+1)) - j
		if ts < 0 {
			ts = 0
		}
	}

	frame := &pipeline.Frame{
		StreamID:  st.cfg.ID,
		Sequence:  st.seq,
		Timestamp: ts,
		Width:     st.cfg.Width,
		Height:    st.cfg.Height,
		Format:    st.cfg.Format,
		Payload:   Pattern(st.cfg.Width, st.cfg.Height, st.cfg.Format, st.seq),
	}
	st.seq++
	return frame, true
}

// Pattern returns a diagonal gradient payload that shifts with seq.
func Pattern(width, height int, format pipeline.PixelFormat, seq uint64) []byte {
	bpp := format.BytesPerPixel()
	buf := make([]byte, width*height*bpp)
	shift := int(seq)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := x + y + shift
			switch format {
			case pipeline.FormatGray8:
				buf[i] = byte(v)
			case pipeline.FormatGray16:
				w := uint16(v * 64)
				buf[i] = byte(w >> 8)
				buf[i+1] = byte(w)
			case pipeline.FormatRGB24:
				buf[i] = byte(v)
				buf[i+1] = byte(x)
				buf[i+2] = byte(y)
			case pipeline.FormatBGR24:
				buf[i] = byte(y)
				buf[i+1] = byte(x)
				buf[i+2] = byte(v)
			}
			i += bpp
		}
	}
	return buf
}

// Ensure Device implements ports.Device
var _ ports.Device = (*Device)(nil)
