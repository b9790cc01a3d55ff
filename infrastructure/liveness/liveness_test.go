package liveness

import (
	"context"
	"net"
	"testing"
	"time"

	"tcpms/domain/protocol"
	"tcpms/domain/protoerr"
	"tcpms/infrastructure/handler"
)

func noopOnData(protocol.Package)      {}
func noopOnError(protoerr.Kind, error) {}

func TestMonitorDetectsPingTimeout(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	serverH := handler.New(serverConn, 200*time.Millisecond, noopOnData, func(protocol.Package) {}, noopOnError)
	serverH.StartAll(context.Background())
	defer serverH.Close()

	// Drain pings sent by the monitor so dispatch never blocks, but never
	// reply with Pong, simulating an unresponsive peer.
	go func() {
		for {
			buf := make([]byte, 64)
			if _, err := clientConn.Read(buf); err != nil {
				return
			}
		}
	}()

	errs := make(chan protoerr.Kind, 4)
	mon := NewMonitor(serverH, 120*time.Millisecond, 60*time.Millisecond, func(k protoerr.Kind, _ error) {
		errs <- k
	})
	mon.Start(context.Background())
	defer mon.Stop()

	select {
	case k := <-errs:
		if k != protoerr.KindPingTimeout {
			t.Fatalf("expected ping_timeout, got %v", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ping_timeout to be raised")
	}
}

func TestMonitorSkipsCycleOnDataReceived(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	errs := make(chan protoerr.Kind, 4)
	serverH := handler.New(serverConn, 200*time.Millisecond, noopOnData, func(protocol.Package) {}, noopOnError)
	mon := NewMonitor(serverH, 200*time.Millisecond, 100*time.Millisecond, func(k protoerr.Kind, _ error) {
		errs <- k
	})

	mon.NoteDataReceived()
	mon.Start(context.Background())
	defer mon.Stop()

	select {
	case k := <-errs:
		t.Fatalf("unexpected error raised after data was seen: %v", k)
	case <-time.After(150 * time.Millisecond):
		// expected: the first cycle was skipped, no ping/timeout yet
	}
}

func TestRespondToPingPausesThenDispatchesPong(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	clientH := handler.New(clientConn, time.Second, noopOnData, func(protocol.Package) {}, noopOnError)

	done := make(chan error, 1)
	go func() {
		done <- RespondToPing(context.Background(), clientH)
	}()

	buf := make([]byte, 64)
	if err := serverConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	n, err := serverConn.Read(buf)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if protocol.PackageType(buf[0]) != protocol.Pong {
		t.Fatalf("expected Pong package type, got %d (n=%d)", buf[0], n)
	}

	if err := <-done; err != nil {
		t.Fatalf("RespondToPing: %v", err)
	}
}
