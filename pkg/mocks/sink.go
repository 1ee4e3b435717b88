package mocks

import (
	"context"
	"sync"

	"github.com/user/depthcap/pkg/pipeline"
)

// Persister is a mock implementation of pipeline.Persister.
// It records every set it is handed.
type Persister struct {
	mu sync.Mutex

	ExecuteFunc func(ctx context.Context, set *pipeline.FrameSet) (pipeline.PersistResult, error)

	Sets []*pipeline.FrameSet
}

func (m *Persister) Execute(ctx context.Context, set *pipeline.FrameSet) (pipeline.PersistResult, error) {
	m.mu.Lock()
	m.Sets = append(m.Sets, set)
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, set)
	}
	return pipeline.PersistResult{SetIndex: set.Index}, nil
}

// Indices returns the indices of the recorded sets, in call order.
func (m *Persister) Indices() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.Sets))
	for i, s := range m.Sets {
		out[i] = s.Index
	}
	return out
}

// Count returns the number of recorded sets.
func (m *Persister) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sets)
}

var _ pipeline.Persister = (*Persister)(nil)
