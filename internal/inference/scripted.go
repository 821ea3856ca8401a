package inference

import (
	"context"
	"sync"
)

// Step is one scripted outcome. When Block is set the call waits for the
// context to end and returns its error.
type Step struct {
	Generation Generation
	Err        error
	Block      bool
}

// Scripted replays a fixed sequence of outcomes, one per call, and records the
// requests it received. The last step repeats once the script is exhausted.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScripted returns a client replaying steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Name() string {
	return "scripted"
}

func (s *Scripted) Generate(ctx context.Context, req Request) (Generation, error) {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	var step Step
	if len(s.steps) > 0 {
		if idx >= len(s.steps) {
			idx = len(s.steps) - 1
		}
		step = s.steps[idx]
	}
	s.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return Generation{}, ctx.Err()
	}
	return step.Generation, step.Err
}

// Requests returns a copy of the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
