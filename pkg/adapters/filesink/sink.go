// Package filesink persists FrameSets to a directory, one file per stream.
package filesink

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/user/depthcap/pkg/adapters/imageencoder"
	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// DefaultPadWidth is the minimum number of digits in a set index.
const DefaultPadWidth = 3

const tmpSuffix = ".tmp"

// Pseudo stream IDs used in PersistError for the per-set extras.
const (
	metadataEntry pipeline.StreamID = "meta"
	montageEntry  pipeline.StreamID = "montage"
)

// Options configures a Sink.
type Options struct {
	Dir       string
	PadWidth  int  // Minimum index digits; wider indices are never truncated
	Metadata  bool // Write {index}_meta.json per set
	SessionID string

	// Montage renders an {index}_montage.png contact sheet when set.
	Montage ports.MontageRenderer
}

// Sink writes every present frame of a set with write-temp, fsync, rename.
// Each file is atomic on its own; a set is not.
type Sink struct {
	opts    Options
	fs      ports.FileSystem
	encoder ports.FrameEncoder
	logger  ports.Logger
}

// New creates a new Sink.
func New(fs ports.FileSystem, encoder ports.FrameEncoder, logger ports.Logger, opts Options) *Sink {
	if opts.PadWidth <= 0 {
		opts.PadWidth = DefaultPadWidth
	}
	return &Sink{
		opts:    opts,
		fs:      fs,
		encoder: encoder,
		logger:  logger.WithComponent("persist"),
	}
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.opts.Dir
}

// FramePath returns the final path of one stream of one set.
func (s *Sink) FramePath(index uint64, id pipeline.StreamID) string {
	return s.path(index, string(id), s.encoder.Extension())
}

func (s *Sink) path(index uint64, name, ext string) string {
	return filepath.Join(s.opts.Dir, fmt.Sprintf("%0*d_%s.%s", s.opts.PadWidth, index, name, ext))
}

// Execute persists the set. On failure it returns a *pipeline.PersistError
// naming the first stream that could not be written; files committed
// before it are left in place.
func (s *Sink) Execute(ctx context.Context, set *pipeline.FrameSet) (pipeline.PersistResult, error) {
	start := time.Now()
	result := pipeline.PersistResult{SetIndex: set.Index}

	if err := s.fs.MkdirAll(s.opts.Dir); err != nil {
		return result, &pipeline.PersistError{SetIndex: set.Index, Path: s.opts.Dir, Err: err}
	}

	for _, id := range set.Order {
		frame := set.Frames[id]
		if frame == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, &pipeline.PersistError{SetIndex: set.Index, StreamID: id, Err: err}
		}

		path := s.FramePath(set.Index, id)
		data, err := s.encoder.Encode(frame)
		if err != nil {
			return result, &pipeline.PersistError{SetIndex: set.Index, StreamID: id, Path: path, Err: fmt.Errorf("encode: %w", err)}
		}
		if err := s.commit(path, data); err != nil {
			return result, &pipeline.PersistError{SetIndex: set.Index, StreamID: id, Path: path, Err: err}
		}
		result.Paths = append(result.Paths, path)
	}

	if s.opts.Metadata {
		path := s.path(set.Index, "meta", "json")
		data, err := s.metadata(set)
		if err == nil {
			err = s.commit(path, data)
		}
		if err != nil {
			return result, &pipeline.PersistError{SetIndex: set.Index, StreamID: metadataEntry, Path: path, Err: err}
		}
		result.Paths = append(result.Paths, path)
	}

	if s.opts.Montage != nil {
		path := s.path(set.Index, "montage", "png")
		if err := s.montage(set, path); err != nil {
			return result, &pipeline.PersistError{SetIndex: set.Index, StreamID: montageEntry, Path: path, Err: err}
		}
		result.Paths = append(result.Paths, path)
	}

	s.logger.Debug("Persisted set %d: %d files in %v", set.Index, len(result.Paths), time.Since(start).Round(time.Microsecond))
	return result, nil
}

// commit writes data next to path and renames it into place.
// The temp file is removed on a best-effort basis when anything fails.
func (s *Sink) commit(path string, data []byte) error {
	tmp := path + tmpSuffix
	if err := s.fs.WriteFile(tmp, data); err != nil {
		s.discard(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.discard(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *Sink) discard(tmp string) {
	if err := s.fs.Remove(tmp); err != nil {
		s.logger.Debug("Could not remove temp file %s: %v", tmp, err)
	}
}

func (s *Sink) montage(set *pipeline.FrameSet, path string) error {
	img, err := s.opts.Montage.Render(set)
	if err != nil {
		return fmt.Errorf("render montage: %w", err)
	}
	data, err := imageencoder.EncodeImage(img, ports.FormatPNG)
	if err != nil {
		return err
	}
	return s.commit(path, data)
}

// SetMetadata is the JSON document written next to each set.
type SetMetadata struct {
	Session string              `json:"session,omitempty"`
	Index   uint64              `json:"index"`
	Partial bool                `json:"partial"`
	SpanNs  int64               `json:"spanNs"`
	Streams []StreamMetadata    `json:"streams"`
	Absent  []pipeline.StreamID `json:"absent,omitempty"`
}

// StreamMetadata describes one persisted frame.
type StreamMetadata struct {
	Stream      pipeline.StreamID `json:"stream"`
	Sequence    uint64            `json:"sequence"`
	TimestampNs int64             `json:"timestampNs"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Format      string            `json:"format"`
	File        string            `json:"file"`
}

func (s *Sink) metadata(set *pipeline.FrameSet) ([]byte, error) {
	meta := SetMetadata{
		Session: s.opts.SessionID,
		Index:   set.Index,
		Partial: set.Partial(),
		SpanNs:  int64(set.Span()),
		Streams: make([]StreamMetadata, 0, len(set.Order)),
		Absent:  set.Absent(),
	}
	for _, f := range set.Present() {
		meta.Streams = append(meta.Streams, StreamMetadata{
			Stream:      f.StreamID,
			Sequence:    f.Sequence,
			TimestampNs: int64(f.Timestamp),
			Width:       f.Width,
			Height:      f.Height,
			Format:      f.Format.String(),
			File:        filepath.Base(s.FramePath(set.Index, f.StreamID)),
		})
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// Ensure Sink implements pipeline.Persister
var _ pipeline.Persister = (*Sink)(nil)
