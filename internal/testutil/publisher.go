package testutil

import (
	"context"
	"sync"

	"github.com/edgeflare/pgrepo/pkg/events"
)

// Publisher records published events. Err, when set, fails every publish.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
	Closed bool
}

func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *Publisher) Close() error {
	p.Closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}
