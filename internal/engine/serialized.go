package engine

import "sync"

// Serialized gives goroutines exclusive, ordered access to an engine.
type Serialized struct {
	mu sync.Mutex
	e  *Engine
}

// NewSerialized wraps e. Callers must not use e directly afterwards.
func NewSerialized(e *Engine) *Serialized {
	return &Serialized{e: e}
}

// Do runs fn with exclusive access to the engine.
func (s *Serialized) Do(fn func(e *Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.e)
}
