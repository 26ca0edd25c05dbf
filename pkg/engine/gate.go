package engine

import "context"

// Gate is a one-slot mutual-exclusion gate, initial state open. When a
// scenario has spawned asynchronous child executions, every further step of
// that scenario and of its async children serializes through the gate so
// that only one step at a time mutates the shared variable map.
type Gate struct {
	slot chan struct{}
}

// NewGate creates an open gate.
func NewGate() *Gate {
	g := &Gate{slot: make(chan struct{}, 1)}
	g.slot <- struct{}{}
	return g
}

// Acquire takes the gate's slot, blocking until it is free. Returns the
// context error if the context is cancelled while waiting; the caller is
// expected to log a warning and proceed unlocked rather than deadlock.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case <-g.slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the slot. A release without a matching acquire is a
// no-op, so the degraded proceed-without-lock path cannot over-open the
// gate.
func (g *Gate) Release() {
	select {
	case g.slot <- struct{}{}:
	default:
	}
}
