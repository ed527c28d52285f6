package gesture

import (
	"context"
	"sync"
	"time"
)

// Source produces gesture events, e.g. a global hotkey or a hardware key.
// Run blocks until ctx is cancelled or the source fails.
type Source interface {
	Name() string
	Run(ctx context.Context, pub Publisher) error
}

// Press follows one physical press of a trigger so that the abort or
// deactivate ending it carries the ID assigned to its receive
type Press struct {
	pub        Publisher
	identifier string
	source     string

	mu      sync.Mutex
	current *Event
}

func NewPress(pub Publisher, identifier, source string) *Press {
	return &Press{pub: pub, identifier: identifier, source: source}
}

// Begin publishes a receive. A press still open is abandoned; the
// receive supersedes it on the listener side.
func (p *Press) Begin(ctx context.Context, id string) (*Event, error) {
	ev := &Event{
		ID:         id,
		Identifier: p.identifier,
		Phase:      PhaseReceive,
		Source:     p.source,
		Time:       time.Now(),
	}

	p.mu.Lock()
	p.current = ev
	p.mu.Unlock()

	// Publish may fill in the ID
	if err := p.pub.Publish(ctx, ev); err != nil {
		p.mu.Lock()
		if p.current == ev {
			p.current = nil
		}
		p.mu.Unlock()
		return nil, err
	}
	return ev, nil
}

// End publishes the deactivate of the open press, if any
func (p *Press) End(ctx context.Context) error {
	return p.finish(ctx, PhaseDeactivate)
}

// Abort publishes an abort for the open press, if any
func (p *Press) Abort(ctx context.Context) error {
	return p.finish(ctx, PhaseAbort)
}

// Active reports whether a press is open
func (p *Press) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Press) finish(ctx context.Context, phase Phase) error {
	p.mu.Lock()
	ev := p.current
	p.current = nil
	p.mu.Unlock()

	if ev == nil {
		return nil
	}
	return p.pub.Publish(ctx, ev.WithPhase(phase))
}
