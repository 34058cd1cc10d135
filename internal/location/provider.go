package location

import (
	"context"
	"sync/atomic"
)

// PushProvider is a Provider for hosts that push coordinates in from outside,
// such as the HTTP API. Starting and stopping only toggles a flag.
type PushProvider struct {
	running atomic.Bool
}

// StartUpdates implements Provider.
func (p *PushProvider) StartUpdates(ctx context.Context) error {
	p.running.Store(true)
	return nil
}

// StopUpdates implements Provider.
func (p *PushProvider) StopUpdates() {
	p.running.Store(false)
}

// Running reports whether updates are currently wanted.
func (p *PushProvider) Running() bool {
	return p.running.Load()
}

var _ Provider = (*PushProvider)(nil)
