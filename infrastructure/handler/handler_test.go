package handler

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"tcpms/domain/protocol"
	"tcpms/domain/protoerr"
)

// newPipePair returns the two ends of an in-memory net.Pipe; net.Conn
// already satisfies the handler.Conn interface, deadlines included.
func newPipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}

func newTestHandler(conn net.Conn, onData OnData, onInternal OnInternal, onError OnError) *Handler {
	if onData == nil {
		onData = func(protocol.Package) {}
	}
	if onInternal == nil {
		onInternal = func(protocol.Package) {}
	}
	if onError == nil {
		onError = func(protoerr.Kind, error) {}
	}
	return New(conn, time.Second, onData, onInternal, onError)
}

func TestSendAwaitDeliversAcrossLoops(t *testing.T) {
	serverConn, clientConn := newPipePair()
	defer serverConn.Close()
	defer clientConn.Close()

	received := make(chan protocol.Package, 1)
	clientH := newTestHandler(clientConn, func(p protocol.Package) { received <- p }, nil, nil)
	serverH := newTestHandler(serverConn, nil, nil, nil)

	ctx := context.Background()
	clientH.StartAll(ctx)
	serverH.StartAll(ctx)
	defer clientH.Close()
	defer serverH.Close()

	pkg := protocol.NewDataPackage(protocol.Blob, []byte("hello"))
	awaitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := serverH.SendAwait(awaitCtx, pkg); err != nil {
		t.Fatalf("SendAwait: %v", err)
	}

	select {
	case got := <-received:
		if string(got.Payload) != "hello" {
			t.Fatalf("expected hello, got %q", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data package")
	}
}

func TestDirectDispatchAndObtain(t *testing.T) {
	serverConn, clientConn := newPipePair()
	defer serverConn.Close()
	defer clientConn.Close()

	serverH := newTestHandler(serverConn, nil, nil, nil)
	clientH := newTestHandler(clientConn, nil, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var got protocol.Package
	var gotErr error
	go func() {
		defer wg.Done()
		got, gotErr = clientH.ObtainExpected(context.Background(), protocol.AuthInfo)
	}()

	if err := serverH.Dispatch(protocol.NewControlPackage(protocol.AuthInfo, []byte{0xFF})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	wg.Wait()
	if gotErr != nil {
		t.Fatalf("ObtainExpected: %v", gotErr)
	}
	if got.Type != protocol.AuthInfo || got.Payload[0] != 0xFF {
		t.Fatalf("unexpected package: %+v", got)
	}
}

func TestObtainExpectedRejectsMismatch(t *testing.T) {
	serverConn, clientConn := newPipePair()
	defer serverConn.Close()
	defer clientConn.Close()

	serverH := newTestHandler(serverConn, nil, nil, nil)
	clientH := newTestHandler(clientConn, nil, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := clientH.ObtainExpected(context.Background(), protocol.AuthSuccess)
		errCh <- err
	}()
	if err := serverH.Dispatch(protocol.NewControlPackage(protocol.AuthFailure, nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	err := <-errCh
	var perr *protoerr.Error
	if err == nil {
		t.Fatal("expected unexpected_package error")
	}
	if !isProtoKind(err, protoerr.KindUnexpectedPackage) {
		t.Fatalf("expected KindUnexpectedPackage, got %v (%T) %v", err, err, perr)
	}
}

func isProtoKind(err error, kind protoerr.Kind) bool {
	target := protoerr.New(kind, nil)
	for e := err; e != nil; {
		if pe, ok := e.(*protoerr.Error); ok {
			return pe.Kind == kind
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	_ = target
	return false
}

func TestPauseBlocksLoopThenResumeDelivers(t *testing.T) {
	serverConn, clientConn := newPipePair()
	defer serverConn.Close()
	defer clientConn.Close()

	received := make(chan protocol.Package, 1)
	clientH := newTestHandler(clientConn, func(p protocol.Package) { received <- p }, nil, nil)
	serverH := newTestHandler(serverConn, nil, nil, nil)

	ctx := context.Background()
	clientH.StartAll(ctx)
	serverH.StartAll(ctx)
	defer clientH.Close()
	defer serverH.Close()

	if err := clientH.PauseAll(context.Background()); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- serverH.SendAwait(context.Background(), protocol.NewDataPackage(protocol.Byte, []byte{9}))
	}()

	select {
	case got := <-received:
		t.Fatalf("package delivered while paused: %+v", got)
	case <-time.After(200 * time.Millisecond):
		// expected: nothing delivered yet
	}

	clientH.ResumeAll()

	select {
	case got := <-received:
		if got.Payload[0] != 9 {
			t.Fatalf("unexpected payload: %v", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery after resume")
	}
	<-sendDone
}

func TestStopAndDispatchRestDrainsQueue(t *testing.T) {
	serverConn, clientConn := newPipePair()
	defer clientConn.Close()

	received := make(chan protocol.Package, 4)
	clientH := newTestHandler(clientConn, func(p protocol.Package) { received <- p }, nil, nil)
	serverH := newTestHandler(serverConn, nil, nil, nil)

	clientH.StartAll(context.Background())
	defer clientH.Close()

	// The server's loops are never started, so sent packages stay in the
	// queue; then ask it to stop-and-drain the rest synchronously.
	if err := serverH.PauseAll(context.Background()); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	if err := serverH.Send(protocol.NewDataPackage(protocol.Byte, []byte{1})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := serverH.Send(protocol.NewDataPackage(protocol.Byte, []byte{2})); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := serverH.StopAndDispatchRest(); err != nil {
		t.Fatalf("StopAndDispatchRest: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for drained package %d", i)
		}
	}
}
