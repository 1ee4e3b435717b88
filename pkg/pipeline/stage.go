// Package pipeline provides the shared types and plumbing for depthcap.
package pipeline

import (
	"context"
)

// Stage represents a processing step that consumes one input and produces one output.
// The persistence sink is a Stage[*FrameSet, PersistResult].
type Stage[In, Out any] interface {
	// Execute runs the stage with the given input and returns the output.
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc is a function adapter for Stage interface.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute implements Stage interface.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// PersistResult lists the final paths committed for one FrameSet.
type PersistResult struct {
	SetIndex uint64
	Paths    []string
}

// Persister is the stage the capture controller hands FrameSets to.
type Persister = Stage[*FrameSet, PersistResult]
