package server

import (
	"context"
	"net"
	"testing"
	"time"

	"tcpms/domain/protoerr"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/handler"
	"tcpms/infrastructure/handshake"
	"tcpms/infrastructure/logging"
	"tcpms/infrastructure/settings"
	"tcpms/infrastructure/strenc"
)

type recordingHooks struct {
	connected    chan string
	disconnected chan string
	blobs        chan []byte
	strings      chan string
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
		blobs:        make(chan []byte, 8),
		strings:      make(chan string, 8),
	}
}

func (h *recordingHooks) OnClientConnected(id string)          { h.connected <- id }
func (h *recordingHooks) OnClientDisconnected(id string)       { h.disconnected <- id }
func (h *recordingHooks) OnClientPanic(string)                 {}
func (h *recordingHooks) OnBlobReceived(_ string, blob []byte) { h.blobs <- blob }
func (h *recordingHooks) OnStringReceived(_ string, s string)  { h.strings <- s }

func noopHandlerError(protoerr.Kind, error) {}

func TestServerNoEncryptionLoopback(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.(*tcpListener).ln.Addr().String()

	cfg := settings.NewServerSettings(
		settings.WithEncryptionEnabled(false),
		settings.WithConnectionTestTries(1),
		settings.WithMaxClients(4),
	)
	hooks := newRecordingHooks()
	srv := New(ln, cfg, hooks, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	clientReceived := make(chan protocol.Package, 8)
	clientH := handler.New(conn, cfg.ReceiveTimeout, func(p protocol.Package) { clientReceived <- p }, func(protocol.Package) {}, noopHandlerError)

	cs := settings.DefaultClientSettings(addr, "")
	clientRes, err := handshake.RunClient(ctx, clientH, &cs)
	if err != nil {
		t.Fatalf("client join failed: %v", err)
	}
	if clientRes.DataCrypto != nil {
		t.Fatal("expected no data crypto")
	}
	clientH.StartAll(ctx)
	defer clientH.Close()

	select {
	case id := <-hooks.connected:
		if id == "" {
			t.Fatal("expected non-empty client id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client_connected")
	}

	if got := srv.ConnectedCount(); got != 1 {
		t.Fatalf("expected 1 connected client, got %d", got)
	}

	srv.BroadcastBlob([]byte("hello client"))
	select {
	case p := <-clientReceived:
		if string(p.Payload) != "hello client" {
			t.Fatalf("unexpected payload: %q", p.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast blob")
	}

	if err := clientH.SendAwait(ctx, protocol.NewDataPackage(protocol.Blob, []byte("hello server"))); err != nil {
		t.Fatalf("client send: %v", err)
	}
	select {
	case b := <-hooks.blobs:
		if string(b) != "hello server" {
			t.Fatalf("unexpected blob: %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive blob")
	}
}

func TestServerEncryptionWrongPasswordRefused(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.(*tcpListener).ln.Addr().String()

	cfg := settings.NewServerSettings(
		settings.WithEncryptionEnabled(true),
		settings.WithPassword("password"),
		settings.WithConnectionTestTries(1),
		settings.WithMaxClients(4),
	)
	hooks := newRecordingHooks()
	srv := New(ln, cfg, hooks, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	clientH := handler.New(conn, cfg.ReceiveTimeout, func(protocol.Package) {}, func(protocol.Package) {}, noopHandlerError)
	cs := settings.DefaultClientSettings(addr, "Password")
	if _, err := handshake.RunClient(ctx, clientH, &cs); err == nil {
		t.Fatal("expected client join to fail on wrong password")
	}

	select {
	case id := <-hooks.connected:
		t.Fatalf("expected no client_connected, got %s", id)
	case <-time.After(300 * time.Millisecond):
	}

	if got := srv.ConnectedCount(); got != 0 {
		t.Fatalf("expected 0 connected clients after failed join, got %d", got)
	}
}

func TestServerBroadcastString(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.(*tcpListener).ln.Addr().String()

	cfg := settings.NewServerSettings(
		settings.WithEncryptionEnabled(true),
		settings.WithPassword("password"),
		settings.WithConnectionTestTries(1),
	)
	hooks := newRecordingHooks()
	srv := New(ln, cfg, hooks, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	clientReceived := make(chan protocol.Package, 8)
	clientH := handler.New(conn, cfg.ReceiveTimeout, func(p protocol.Package) { clientReceived <- p }, func(protocol.Package) {}, noopHandlerError)
	cs := settings.DefaultClientSettings(addr, "password")
	clientRes, err := handshake.RunClient(ctx, clientH, &cs)
	if err != nil {
		t.Fatalf("client join failed: %v", err)
	}
	clientH.StartAll(ctx)
	defer clientH.Close()

	<-hooks.connected

	srv.BroadcastString("hello world")
	select {
	case p := <-clientReceived:
		plain, err := clientRes.DataCrypto.Decrypt(p.Payload)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		got := strenc.DecodeUTF16LE(plain)
		if got != "hello world" {
			t.Fatalf("expected decrypted+decoded %q, got %q", "hello world", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast string")
	}
}
