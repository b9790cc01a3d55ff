package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"tcpms/domain/protocol"
)

// ioReaderWithDeadline adapts a bytes.Reader plus a no-op deadline into the
// Conn interface, for tests that don't need real timeouts.
type ioReaderWithDeadline struct {
	*bytes.Reader
}

func (ioReaderWithDeadline) SetReadDeadline(time.Time) error { return nil }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []protocol.Package{
		protocol.NewDataPackage(protocol.Blob, []byte("hello world")),
		protocol.NewDataPackage(protocol.Empty, nil),
		protocol.NewControlPackage(protocol.Ping, nil),
		protocol.NewControlPackage(protocol.AuthChallenge, bytes.Repeat([]byte{0xAB}, 32)),
	}
	for _, p := range cases {
		buf, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(context.Background(), ioReaderWithDeadline{bytes.NewReader(buf)}, time.Second)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Type != p.Type || got.DataType != p.DataType || !bytes.Equal(got.Payload, p.Payload) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
		}
	}
}

func TestDecodeRejectsNegativeLength(t *testing.T) {
	header := []byte{byte(protocol.Data), byte(protocol.Blob), 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := Decode(context.Background(), ioReaderWithDeadline{bytes.NewReader(header)}, time.Second)
	if !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	header := make([]byte, 6)
	header[0] = byte(protocol.Data)
	header[1] = byte(protocol.Blob)
	binary.BigEndian.PutUint32(header[2:], uint32(protocol.MaxPayloadLength)+1)
	_, err := Decode(context.Background(), ioReaderWithDeadline{bytes.NewReader(header)}, time.Second)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeHonoursContextCancellationOnFirstByte(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Decode(ctx, server, time.Second)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Decode did not observe cancellation")
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	p := protocol.NewDataPackage(protocol.Blob, make([]byte, protocol.MaxPayloadLength+1))
	if _, err := Encode(p); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
