// Package handler implements the Package Handler concurrency core
// (spec.md §4.2): an obtain loop and a dispatch loop cooperating over a
// single duplex socket, with pause/resume, graceful stop, and typed read
// helpers. Grounded on the teacher's dataplane worker's
// ctx.Done()-select read-loop shape
// (infrastructure/tunnel/dataplane/server/tcp_chacha20/dataplane_worker.go),
// generalized from one TUN-forwarding loop to the paired obtain/dispatch
// loops this spec requires, with the 1-permit pause mutex implemented via
// golang.org/x/sync/semaphore as SPEC_FULL.md §4.2 specifies.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"tcpms/domain/protocol"
	"tcpms/domain/protoerr"
	"tcpms/infrastructure/codec"
)

// Conn is what the handler needs from the underlying connection: byte
// transport plus per-operation read/write deadlines.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// OnData is invoked for each Data package the obtain loop reads, without
// the loop awaiting it (spec.md §4.2).
type OnData func(protocol.Package)

// OnInternal is invoked for each non-Data package; the obtain loop awaits
// its return before continuing (spec.md §4.2, §5).
type OnInternal func(protocol.Package)

// OnError is invoked once per framing/IO failure the loops observe. It
// must be safe for concurrent invocation (spec.md §4.2).
type OnError func(kind protoerr.Kind, cause error)

const defaultQueueSize = 256

// Handler drives the obtain/dispatch loops for one connection.
type Handler struct {
	conn        Conn
	readTimeout time.Duration
	onData      OnData
	onInternal  OnInternal
	onError     OnError

	outQueue chan protocol.Package

	obtainGate   *gate
	dispatchGate *gate
	obtainSem    *semaphore.Weighted
	dispatchSem  *semaphore.Weighted

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// New constructs a Handler. Loops are not started; callers run the
// Handshake with direct Dispatch/Obtain/ObtainExpected first, then call
// StartAll once Joined (spec.md §4.3).
func New(conn Conn, readTimeout time.Duration, onData OnData, onInternal OnInternal, onError OnError) *Handler {
	return &Handler{
		conn:         conn,
		readTimeout:  readTimeout,
		onData:       onData,
		onInternal:   onInternal,
		onError:      onError,
		outQueue:     make(chan protocol.Package, defaultQueueSize),
		obtainGate:   newOpenGate(),
		dispatchGate: newOpenGate(),
		obtainSem:    semaphore.NewWeighted(1),
		dispatchSem:  semaphore.NewWeighted(1),
	}
}

// Send enqueues pkg for the dispatch loop and returns immediately
// (spec.md §4.2). Blocks only if the outgoing queue is at capacity
// (per-queue-buffering backpressure, spec.md §1 non-goals).
func (h *Handler) Send(pkg protocol.Package) error {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return protoerr.ErrStopped
	}
	h.outQueue <- pkg
	return nil
}

// SendAwait enqueues pkg and blocks until the dispatch loop has written it,
// or ctx is done first (spec.md §4.2).
func (h *Handler) SendAwait(ctx context.Context, pkg protocol.Package) error {
	completion := make(chan error, 1)
	pkg = pkg.WithCompletion(completion)
	if err := h.Send(pkg); err != nil {
		return err
	}
	select {
	case err := <-completion:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch writes pkg directly to the socket, bypassing the queue. Used
// only while loops are paused or stopped (the handshake path, spec.md §4.3).
func (h *Handler) Dispatch(pkg protocol.Package) error {
	return h.dispatchOnce(context.Background(), pkg)
}

// Obtain reads one Package directly from the socket, honoring cancel on
// the first byte only (spec.md §4.1, §4.2).
func (h *Handler) Obtain(ctx context.Context) (protocol.Package, error) {
	return h.obtainOnce(ctx)
}

// ObtainExpected reads one Package and requires its type be one of
// expected; an empty expected set accepts any type (spec.md §4.1:
// "None is treated as any type accepted"). An Error package always fails
// regardless of expectations.
func (h *Handler) ObtainExpected(ctx context.Context, expected ...protocol.PackageType) (protocol.Package, error) {
	pkg, err := h.Obtain(ctx)
	if err != nil {
		return protocol.Package{}, err
	}
	if pkg.Type == protocol.Error {
		return protocol.Package{}, protoerr.New(protoerr.KindErrorPackage, nil)
	}
	if len(expected) == 0 {
		return pkg, nil
	}
	for _, t := range expected {
		if pkg.Type == t {
			return pkg, nil
		}
	}
	return protocol.Package{}, protoerr.New(protoerr.KindUnexpectedPackage,
		fmt.Errorf("got %s, expected one of %v", pkg.Type, expected))
}

// errPaused is returned by dispatchLoopOnce/obtainLoopOnce when the gate
// closed between the loop deciding to act and actually acquiring the
// semaphore; the loop treats it as "go back and wait", not a real error.
var errPaused = errors.New("handler: gate paused")

// dispatchOnce writes pkg directly, without consulting the dispatch gate.
// Used by Dispatch, which runs deliberately while the loops are paused
// (the handshake path, spec.md §4.3).
func (h *Handler) dispatchOnce(ctx context.Context, pkg protocol.Package) error {
	if err := h.dispatchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.dispatchSem.Release(1)
	return h.writeNow(pkg)
}

// dispatchLoopOnce is the dispatch loop's own counterpart to dispatchOnce:
// it acquires the semaphore and rechecks the gate together, so a Pause
// that lands between the outQueue receive and this call can never let a
// write start after PauseAll/PauseDispatch has already returned.
func (h *Handler) dispatchLoopOnce(ctx context.Context, pkg protocol.Package) error {
	if err := h.dispatchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.dispatchSem.Release(1)
	if !h.dispatchGate.IsOpen() {
		return errPaused
	}
	return h.writeNow(pkg)
}

func (h *Handler) writeNow(pkg protocol.Package) error {
	if err := h.conn.SetWriteDeadline(time.Time{}); err != nil {
		return fmt.Errorf("handler: set write deadline: %w", err)
	}
	return codec.Write(writerFunc(h.conn.Write), pkg)
}

// obtainOnce reads one Package directly, without consulting the obtain
// gate. Used by Obtain/ObtainExpected, which run deliberately while the
// loops are paused (the handshake path, spec.md §4.3).
func (h *Handler) obtainOnce(ctx context.Context) (protocol.Package, error) {
	if err := h.obtainSem.Acquire(ctx, 1); err != nil {
		return protocol.Package{}, err
	}
	defer h.obtainSem.Release(1)

	return codec.Decode(ctx, h.conn, h.readTimeout)
}

// obtainLoopOnce is the obtain loop's own counterpart to obtainOnce: see
// dispatchLoopOnce for why the gate must be rechecked after acquiring the
// semaphore rather than before.
func (h *Handler) obtainLoopOnce(ctx context.Context) (protocol.Package, error) {
	if err := h.obtainSem.Acquire(ctx, 1); err != nil {
		return protocol.Package{}, err
	}
	defer h.obtainSem.Release(1)
	if !h.obtainGate.IsOpen() {
		return protocol.Package{}, errPaused
	}
	return codec.Decode(ctx, h.conn, h.readTimeout)
}

// writerFunc adapts a Write method value to io.Writer.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

// StartAll starts the obtain and dispatch loops (spec.md §4.2).
func (h *Handler) StartAll(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.stopped = false
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	group, gctx := errgroup.WithContext(loopCtx)
	h.group = group
	group.Go(func() error { h.runObtainLoop(gctx); return nil })
	group.Go(func() error { h.runDispatchLoop(gctx); return nil })
}

func (h *Handler) runObtainLoop(ctx context.Context) {
	for {
		if err := h.obtainGate.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkg, err := h.obtainLoopOnce(ctx)
		if err != nil {
			if errors.Is(err, errPaused) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			h.onError(classifyObtainErr(err), err)
			continue
		}

		if pkg.Type.IsInternal() {
			h.onInternal(pkg)
		} else {
			go h.onData(pkg)
		}
	}
}

// runDispatchLoop drains outQueue and writes each package to the socket.
// pending holds a package that was dequeued but could not be written
// because the gate closed underneath it (see dispatchLoopOnce); it is
// retried first on the next iteration instead of being dropped, so Pause
// never loses a package mid-flight.
func (h *Handler) runDispatchLoop(ctx context.Context) {
	var pending *protocol.Package
	for {
		if err := h.dispatchGate.Wait(ctx); err != nil {
			return
		}

		var pkg protocol.Package
		if pending != nil {
			pkg, pending = *pending, nil
		} else {
			select {
			case <-ctx.Done():
				return
			case pkg = <-h.outQueue:
			}
		}

		if err := h.dispatchLoopOnce(ctx, pkg); err != nil {
			if errors.Is(err, errPaused) {
				pending = &pkg
				continue
			}
			if ctx.Err() != nil {
				return
			}
			h.onError(protoerr.KindCannotWrite, err)
			continue
		}
		pkg.Signal(nil)
	}
}

// PauseDispatch closes the dispatch gate and waits for any in-flight write
// to finish, guaranteeing that once it returns the dispatch loop will not
// touch the socket until ResumeDispatch/StopAll. Used by the liveness
// responder, which must pause only dispatch while replying to a Ping
// (spec.md §4.4) — the obtain loop stays live since it is the caller.
func (h *Handler) PauseDispatch(ctx context.Context) error {
	h.dispatchGate.Pause()
	if err := h.dispatchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	h.dispatchSem.Release(1)
	return nil
}

// ResumeDispatch re-opens the dispatch gate.
func (h *Handler) ResumeDispatch() {
	h.dispatchGate.Resume()
}

// PauseAll closes both gates and waits for any in-flight read/write to
// finish, guaranteeing that once it returns, neither loop will touch the
// socket until ResumeAll/StopAll (spec.md §4.2).
func (h *Handler) PauseAll(ctx context.Context) error {
	h.obtainGate.Pause()
	h.dispatchGate.Pause()

	if err := h.obtainSem.Acquire(ctx, 1); err != nil {
		return err
	}
	h.obtainSem.Release(1)

	if err := h.dispatchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	h.dispatchSem.Release(1)
	return nil
}

// ResumeAll re-opens both gates.
func (h *Handler) ResumeAll() {
	h.obtainGate.Resume()
	h.dispatchGate.Resume()
}

// StopAll cancels both loops and waits for them to return (spec.md §4.2).
func (h *Handler) StopAll() {
	h.mu.Lock()
	cancel := h.cancel
	group := h.group
	h.stopped = true
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.obtainGate.Resume() // unblock a paused gate.Wait so the loop can observe ctx.Done
	h.dispatchGate.Resume()
	if group != nil {
		_ = group.Wait()
	}
}

// StopAndDispatchRest stops the loops, then drains the outgoing queue
// single-threaded, aborting at the first write failure. Each drained
// package that is written has its completion notifier signaled; the
// package whose write fails, and any left in the queue after it, are not
// signaled (spec.md §4.2, §9).
func (h *Handler) StopAndDispatchRest() error {
	h.StopAll()
	for {
		select {
		case pkg := <-h.outQueue:
			if err := h.dispatchOnce(context.Background(), pkg); err != nil {
				return err
			}
			pkg.Signal(nil)
		default:
			return nil
		}
	}
}

// Close cancels everything and releases the socket.
func (h *Handler) Close() error {
	h.StopAll()
	return h.conn.Close()
}

func classifyObtainErr(err error) protoerr.Kind {
	var perr *protoerr.Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if isTimeout(err) {
		return protoerr.KindReadTimeout
	}
	if isEOF(err) {
		return protoerr.KindDisconnected
	}
	return protoerr.KindCannotRead
}
