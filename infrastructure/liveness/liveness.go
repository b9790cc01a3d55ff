// Package liveness implements the TcpMs Liveness Monitor (spec.md §4.4):
// a server-side ping timer per client plus the client-side pong responder.
// Grounded on the teacher's rekey state machine
// (infrastructure/tunnel/handshake/rekey or similar mutex-guarded
// timer/state idiom): a small struct guarding its state with a mutex,
// driven by a single goroutine loop, generalized here from a rekey
// deadline to a ping/pong liveness deadline.
package liveness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tcpms/domain/protocol"
	"tcpms/domain/protoerr"
	"tcpms/infrastructure/handler"
)

// Monitor runs the server-side ping timer described in spec.md §4.4. It is
// only meaningful once a Handler's loops are running.
type Monitor struct {
	h            *handler.Handler
	pingInterval time.Duration
	pingTimeout  time.Duration
	onError      func(protoerr.Kind, error)

	dataSeen   atomic.Bool
	pongStatus atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewMonitor constructs a Monitor. It does not check the spec.md §4.4
// invariant pingTimeout < pingInterval; settings.ServerSettings.Validate
// does, and LoadServerSettings runs it.
func NewMonitor(h *handler.Handler, pingInterval, pingTimeout time.Duration, onError func(protoerr.Kind, error)) *Monitor {
	return &Monitor{
		h:            h,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		onError:      onError,
	}
}

// NoteDataReceived records that a data package arrived, letting the
// current cycle treat it as implicit liveness (spec.md §4.4 step 2) and
// also satisfying a pending ping (spec.md §4.4: "receipt of any data
// package also sets pong_status = true").
func (m *Monitor) NoteDataReceived() {
	m.dataSeen.Store(true)
	m.pongStatus.Store(true)
}

// NotePong records a Pong package (spec.md §4.4: "receipt of Pong on the
// server sets pong_status = true").
func (m *Monitor) NotePong() {
	m.pongStatus.Store(true)
}

// Start runs the ping loop in a background goroutine until ctx is done or
// Stop is called. A no-op if pingInterval <= 0 (spec.md §4.4: "activates
// only when ping_interval_ms > 0").
func (m *Monitor) Start(ctx context.Context) {
	if m.pingInterval <= 0 {
		return
	}
	m.mu.Lock()
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	go m.run(loopCtx)
}

// Stop halts the ping loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopped := m.stopped
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.stopped)

	sleepGap := m.pingInterval - m.pingTimeout
	for {
		if !sleepOrDone(ctx, sleepGap) {
			return
		}

		if m.dataSeen.Swap(false) {
			continue // spec.md §4.4 step 2: skip this cycle, implicit liveness
		}

		m.pongStatus.Store(false)
		if err := m.h.Send(protocol.NewControlPackage(protocol.Ping, nil)); err != nil {
			return // handler already stopped/closed
		}

		if !sleepOrDone(ctx, m.pingTimeout) {
			return
		}

		if !m.pongStatus.Load() {
			m.onError(protoerr.KindPingTimeout, errPingTimeout)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
