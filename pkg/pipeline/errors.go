package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a bounded wait elapses without data.
	ErrTimeout = errors.New("pipeline: timed out waiting for data")

	// ErrDisconnected is returned when a frame source loses its device link.
	ErrDisconnected = errors.New("pipeline: device disconnected")

	// ErrClosed is returned by a hand-off queue that is closed and drained.
	ErrClosed = errors.New("pipeline: queue closed")

	// ErrTooManyFailures is returned when persistence fails too many times in a row.
	ErrTooManyFailures = errors.New("pipeline: too many consecutive persist failures")

	// ErrAlreadyStarted is returned when a controller is started twice.
	ErrAlreadyStarted = errors.New("pipeline: controller already started")
)

// PersistError reports the frame whose write failed while persisting a set.
// Files committed earlier for the same set are left in place.
// StreamID is empty when the whole set failed, such as when the output
// directory cannot be created.
type PersistError struct {
	SetIndex uint64
	StreamID StreamID
	Path     string
	Err      error
}

func (e *PersistError) Error() string {
	if e.StreamID == "" {
		if e.Path != "" {
			return fmt.Sprintf("persist set %d (%s): %v", e.SetIndex, e.Path, e.Err)
		}
		return fmt.Sprintf("persist set %d: %v", e.SetIndex, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("persist set %d stream %s (%s): %v", e.SetIndex, e.StreamID, e.Path, e.Err)
	}
	return fmt.Sprintf("persist set %d stream %s: %v", e.SetIndex, e.StreamID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
