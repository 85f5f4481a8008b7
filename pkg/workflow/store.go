package workflow

import (
	"sync"

	"ctoengine/pkg/tasks"
)

// ResultStore is the in-memory registry of task results. The store only ever
// holds deep copies: the engine publishes a fresh snapshot after each
// mutation of its working record, so readers never share memory with the
// executing goroutine.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]*tasks.CodingResult
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]*tasks.CodingResult)}
}

// Put publishes a snapshot of the result, replacing any earlier one.
func (s *ResultStore) Put(result *tasks.CodingResult) {
	snapshot := result.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.TaskID] = snapshot
}

// Get returns a copy of a task's result.
func (s *ResultStore) Get(taskID string) (*tasks.CodingResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[taskID]
	if !ok {
		return nil, false
	}
	return result.Clone(), true
}

// List returns copies of all tracked results.
func (s *ResultStore) List() []*tasks.CodingResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tasks.CodingResult, 0, len(s.results))
	for _, result := range s.results {
		out = append(out, result.Clone())
	}
	return out
}
