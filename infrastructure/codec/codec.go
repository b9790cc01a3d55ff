// Package codec implements the TcpMs wire frame: a six-byte header
// (package_type, data_type, big-endian i32 payload length) followed by an
// optional payload (spec.md §4.1).
package codec

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"tcpms/domain/protocol"
)

const headerLength = 1 + 1 + 4

// ErrFrameTooLarge is returned when a decoded length exceeds MaxPayloadLength.
var ErrFrameTooLarge = errors.New("codec: frame exceeds maximum payload length")

// ErrNegativeLength is returned when a decoded length is negative.
var ErrNegativeLength = errors.New("codec: negative payload length")

// Conn is the minimal surface Decode needs from the connection: a reader
// plus the ability to set a read deadline per spec.md §5's per-byte-class
// timeout rule. *net.TCPConn and *net.TCPConn-wrapping test doubles both
// satisfy this.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

var _ Conn = (*net.TCPConn)(nil)

// Encode serializes a Package into its wire representation.
func Encode(p protocol.Package) ([]byte, error) {
	if len(p.Payload) > protocol.MaxPayloadLength {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, headerLength+len(p.Payload))
	buf[0] = byte(p.Type)
	buf[1] = byte(p.DataType)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(p.Payload)))
	copy(buf[6:], p.Payload)
	return buf, nil
}

// Write encodes and writes a Package to w in one call.
func Write(w io.Writer, p protocol.Package) error {
	buf, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads one Package from conn.
//
// The package_type byte honors ctx cancellation (spec.md §4.1); every byte
// read after it — data_type, length, payload — uses readTimeout as a fresh
// per-read deadline, independent of ctx.
func Decode(ctx context.Context, conn Conn, readTimeout time.Duration) (protocol.Package, error) {
	typeByte, err := readFirstByteCancellable(ctx, conn)
	if err != nil {
		return protocol.Package{}, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return protocol.Package{}, fmt.Errorf("codec: set read deadline: %w", err)
	}
	rest := make([]byte, headerLength-1)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return protocol.Package{}, err
	}

	dataType := protocol.DataType(rest[0])
	length := int32(binary.BigEndian.Uint32(rest[1:5]))
	if length < 0 {
		return protocol.Package{}, ErrNegativeLength
	}
	if int(length) > protocol.MaxPayloadLength {
		return protocol.Package{}, ErrFrameTooLarge
	}

	pkg := protocol.Package{Type: protocol.PackageType(typeByte), DataType: dataType}
	if length == 0 {
		return pkg, nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return protocol.Package{}, fmt.Errorf("codec: set read deadline: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return protocol.Package{}, err
	}
	pkg.Payload = payload
	return pkg, nil
}

// readFirstByteCancellable reads a single byte, returning early with
// ctx.Err() if ctx is cancelled first. The underlying Read is left running
// in its goroutine until it returns (either a byte arrives or the socket is
// closed by the caller's own shutdown path) — codec has no authority to
// close conn itself.
func readFirstByteCancellable(ctx context.Context, conn Conn) (byte, error) {
	// Clear any stale deadline; this read is governed by ctx, not a timeout.
	_ = conn.SetReadDeadline(time.Time{})

	type result struct {
		b   byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var b [1]byte
		_, err := io.ReadFull(conn, b[:])
		ch <- result{b: b[0], err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		return r.b, r.err
	}
}
