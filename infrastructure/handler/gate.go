package handler

import (
	"context"
	"sync"
)

// gate is a manual-reset gate (spec.md §4.2/§9): Pause closes it, Resume
// opens it, Wait blocks until it is open or ctx is done. It is the
// "interruptable and quiescable" primitive the teacher's codebase has no
// direct analogue for; the shape (a replaced channel under a mutex) is the
// standard Go idiom for a re-openable broadcast gate.
type gate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newOpenGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{ch: ch}
}

// Pause closes the gate if it is open; a no-op if already paused.
func (g *gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
		// already paused
	}
}

// Resume opens the gate if it is closed; a no-op if already open.
func (g *gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		// already open
	default:
		close(g.ch)
	}
}

// Wait blocks until the gate is open or ctx is done.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsOpen reports whether the gate is currently open, without blocking.
func (g *gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}
