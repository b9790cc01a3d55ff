// Package client implements the TcpMs Client Endpoint (spec.md §4.6):
// dial, run the joining side of the Handshake, then drive data sends and
// a graceful disconnect. Grounded on the general client/server symmetry of
// the teacher's ClientHandshake/ServerHandshake split, generalized to this
// protocol's single Client type (the teacher splits connection setup
// across several collaborating types; this protocol's surface is small
// enough for one).
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"tcpms/application"
	"tcpms/domain/protoerr"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/crypto"
	"tcpms/infrastructure/handler"
	"tcpms/infrastructure/handshake"
	"tcpms/infrastructure/liveness"
	"tcpms/infrastructure/settings"
	"tcpms/infrastructure/strenc"
)

const panicQuiescenceDelay = 100 * time.Millisecond

// Client is one connection to a TcpMs server.
type Client struct {
	cfg    settings.ClientSettings
	hooks  application.ClientHooks
	logger application.Logger

	mu         sync.RWMutex
	conn       application.Transport
	h          *handler.Handler
	dataCrypto application.Crypto

	rejoinMu sync.Mutex
}

// asCrypto widens a possibly-nil *crypto.AesContext to application.Crypto
// without the classic Go trap of wrapping a nil pointer in a non-nil
// interface value.
func asCrypto(c *crypto.AesContext) application.Crypto {
	if c == nil {
		return nil
	}
	return c
}

// New constructs a Client. Connect must be called before any data send.
func New(cfg settings.ClientSettings, hooks application.ClientHooks, logger application.Logger) *Client {
	return &Client{cfg: cfg, hooks: hooks, logger: logger}
}

// Connect dials the server and runs the joining side of the Handshake
// (spec.md §4.6: "connect(password?, cancel) → bool"). On success it
// starts both loops and returns true.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		return false, fmt.Errorf("client: dial: %w", err)
	}
	tconn, ok := conn.(application.Transport)
	if !ok {
		_ = conn.Close()
		return false, fmt.Errorf("client: connection does not support deadlines")
	}

	h := handler.New(tconn, c.cfg.ReceiveTimeout, c.onData, c.onInternal, c.onError)

	res, err := handshake.RunClient(ctx, h, &c.cfg)
	if err != nil {
		_ = tconn.Close()
		return false, err
	}

	c.mu.Lock()
	c.conn = tconn
	c.h = h
	c.dataCrypto = asCrypto(res.DataCrypto)
	c.mu.Unlock()

	h.StartAll(ctx)
	c.hooks.OnConnected()
	return true, nil
}

// Disconnect stops both loops, directly dispatches DisconnectRequest, then
// closes (spec.md §4.6).
func (c *Client) Disconnect() error {
	c.mu.RLock()
	h := c.h
	c.mu.RUnlock()
	if h == nil {
		return nil
	}
	h.StopAll()
	_ = h.Dispatch(protocol.NewControlPackage(protocol.DisconnectRequest, nil))
	return h.Close()
}

// SendBlob sends a Blob Data package, encrypting it if the session is
// encrypted.
func (c *Client) SendBlob(data []byte) error {
	return c.sendData(protocol.Blob, data)
}

// SendByte sends a Byte Data package (spec.md §6).
func (c *Client) SendByte(b byte) error {
	return c.sendData(protocol.Byte, []byte{b})
}

// SendString sends a String Data package, UTF-16LE encoded (spec.md §6).
func (c *Client) SendString(s string) error {
	return c.sendData(protocol.String, strenc.EncodeUTF16LE(s))
}

func (c *Client) sendData(dt protocol.DataType, plain []byte) error {
	c.mu.RLock()
	h := c.h
	dc := c.dataCrypto
	c.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("client: not connected")
	}
	wire := plain
	if dc != nil {
		encrypted, err := dc.Encrypt(plain)
		if err != nil {
			return err
		}
		wire = encrypted
	}
	return h.Send(protocol.NewDataPackage(dt, wire))
}

func (c *Client) onData(pkg protocol.Package) {
	c.mu.RLock()
	dc := c.dataCrypto
	c.mu.RUnlock()

	plain := pkg.Payload
	if dc != nil && len(pkg.Payload) > 0 {
		decrypted, err := dc.Decrypt(pkg.Payload)
		if err != nil {
			c.logger.Printf("client: decrypt data package: %v", err)
			return
		}
		plain = decrypted
	}
	if pkg.DataType == protocol.String {
		c.hooks.OnStringReceived(strenc.DecodeUTF16LE(plain))
		return
	}
	c.hooks.OnBlobReceived(plain)
}

func (c *Client) onInternal(pkg protocol.Package) {
	c.mu.RLock()
	h := c.h
	c.mu.RUnlock()
	switch pkg.Type {
	case protocol.Ping:
		if err := liveness.RespondToPing(context.Background(), h); err != nil {
			c.logger.Printf("client: respond to ping: %v", err)
		}
	case protocol.Panic:
		c.rejoinAfterPanic(h, false)
	case protocol.Disconnect:
		c.teardown()
	default:
		c.logger.Printf("client: unhandled internal package %s", pkg.Type)
	}
}

func (c *Client) teardown() {
	c.mu.RLock()
	h := c.h
	c.mu.RUnlock()
	if h != nil {
		_ = h.Close()
	}
	c.hooks.OnDisconnected()
}

// onError implements spec.md §7's policy: terminal kinds end the
// connection; everything else means the client detected the fault
// itself (rather than having already received the server's Panic
// package), so it still has to wait for that signal before rejoining.
func (c *Client) onError(kind protoerr.Kind, cause error) {
	c.mu.RLock()
	h := c.h
	c.mu.RUnlock()
	if h == nil {
		return
	}
	if kind.Terminal() {
		c.logger.Printf("client: terminal error: %v", cause)
		c.teardown()
		return
	}
	c.logger.Printf("client: recoverable error (%s): %v", kind, cause)
	c.rejoinAfterPanic(h, true)
}

// rejoinAfterPanic implements the symmetric client-side half of spec.md
// §4.3.6. The server always initiates recovery by pausing and
// dispatching a Panic package, then re-runs the join as prober; the
// client mirrors it by pausing and re-running the join as responder.
// waitForPanic is true when the client detected the fault locally
// (onError) and so must still observe the server's Panic package before
// rejoining; it is false when onInternal already consumed that package.
// rejoinMu serializes concurrent triggers from the obtain and dispatch
// loops so only one rejoin attempt runs at a time.
func (c *Client) rejoinAfterPanic(h *handler.Handler, waitForPanic bool) {
	c.rejoinMu.Lock()
	defer c.rejoinMu.Unlock()

	ctx := context.Background()
	if err := h.PauseAll(ctx); err != nil {
		c.teardown()
		return
	}

	if waitForPanic {
		if _, err := h.ObtainExpected(ctx, protocol.Panic); err != nil {
			c.logger.Printf("client: panic rejoin: did not observe Panic: %v", err)
			c.teardown()
			return
		}
	}
	time.Sleep(panicQuiescenceDelay)

	res, err := handshake.RunClient(ctx, h, &c.cfg)
	if err != nil {
		c.logger.Printf("client: panic rejoin failed: %v", err)
		c.teardown()
		return
	}

	c.mu.Lock()
	c.dataCrypto = asCrypto(res.DataCrypto)
	c.mu.Unlock()

	h.ResumeAll()
	c.hooks.OnPanic()
}
