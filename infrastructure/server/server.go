package server

import (
	"context"
	"fmt"
	"time"

	"tcpms/application"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/handshake"
	"tcpms/infrastructure/settings"
	"tcpms/infrastructure/strenc"
)

// acceptPollInterval is how often the accept loop rechecks capacity while
// at max_clients (spec.md §4.5: "accept loop runs while connected_count <
// max_clients").
const acceptPollInterval = 50 * time.Millisecond

// Server runs the accept loop and owns the session Registry (spec.md §4.5).
type Server struct {
	listener application.TcpListener
	cfg      settings.ServerSettings
	hooks    application.ServerHooks
	logger   application.Logger
	registry *Registry
}

// New constructs a Server bound to listener. hooks and logger are used as
// given; New does not substitute defaults for nil values.
func New(listener application.TcpListener, cfg settings.ServerSettings, hooks application.ServerHooks, logger application.Logger) *Server {
	return &Server{
		listener: listener,
		cfg:      cfg,
		hooks:    hooks,
		logger:   logger,
		registry: newRegistry(),
	}
}

// Serve runs the accept loop until ctx is done or the listener fails
// permanently (spec.md §4.5).
func (srv *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = srv.listener.Close()
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if srv.registry.Count() >= srv.cfg.MaxClients {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(acceptPollInterval):
				continue
			}
		}

		conn, err := srv.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			srv.logger.Printf("server: accept: %v", err)
			continue
		}
		go srv.handleConn(ctx, conn)
	}
}

func (srv *Server) handleConn(ctx context.Context, conn application.Transport) {
	key, err := srv.allocateKey()
	if err != nil {
		srv.logger.Printf("server: allocate session key: %v", err)
		_ = conn.Close()
		return
	}

	session := newSession(key, conn, srv.cfg, srv.hooks, srv.logger, srv.removeSession)

	res, err := handshake.RunServer(ctx, session.handler, srv.cfg)
	if err != nil {
		srv.logger.Printf("server: session %s: join failed: %v", session.IDString(), err)
		_ = conn.Close()
		return
	}

	srv.registry.add(session)
	session.start(ctx, res)
	srv.hooks.OnClientConnected(session.IDString())
}

// allocateKey generates a fresh ClientSessionKey, rejecting collisions
// against the live registry (spec.md §4.5).
func (srv *Server) allocateKey() (ClientSessionKey, error) {
	for i := 0; i < 8; i++ {
		key, err := newSessionKey()
		if err != nil {
			return ClientSessionKey{}, fmt.Errorf("server: generate session key: %w", err)
		}
		if !srv.registry.contains(key) {
			return key, nil
		}
	}
	return ClientSessionKey{}, fmt.Errorf("server: could not allocate a unique session key")
}

// removeSession is the single mutation path for disconnects (spec.md
// §4.5): it removes the session from the registry and fires
// on_client_disconnected exactly once.
func (srv *Server) removeSession(s *Session) {
	if _, ok := srv.registry.remove(s.Key); ok {
		srv.hooks.OnClientDisconnected(s.IDString())
	}
}

// Disconnect forcibly terminates one session by key, if present.
func (srv *Server) Disconnect(key ClientSessionKey) {
	if s, ok := srv.registry.Get(key); ok {
		s.terminate()
	}
}

// ConnectedCount reports how many sessions are currently live.
func (srv *Server) ConnectedCount() int {
	return srv.registry.Count()
}

// Stats reports one session's traffic counters for diagnostics (SPEC_FULL.md
// §3's SessionStats), false if key is not a live session.
func (srv *Server) Stats(key ClientSessionKey) (StatsSnapshot, bool) {
	s, ok := srv.registry.Get(key)
	if !ok {
		return StatsSnapshot{}, false
	}
	return s.Stats(), true
}

// SendBlob sends a Blob Data package to one client, identified by key.
func (srv *Server) SendBlob(key ClientSessionKey, data []byte) error {
	s, ok := srv.registry.Get(key)
	if !ok {
		return fmt.Errorf("server: unknown session %s", base64Key(key))
	}
	return s.sendData(protocol.Blob, data)
}

// BroadcastBlob fans a Blob Data package out to every live session,
// tolerating per-client failures independently (spec.md §4.5: "Broadcast
// is fan-out over the current registry snapshot, tolerating per-client
// send failures").
func (srv *Server) BroadcastBlob(data []byte) {
	for _, s := range srv.registry.Snapshot() {
		if err := s.sendData(protocol.Blob, data); err != nil {
			srv.logger.Printf("server: broadcast to %s: %v", s.IDString(), err)
		}
	}
}

// BroadcastString fans a String Data package (UTF-16LE encoded, spec.md
// §6) out to every live session.
func (srv *Server) BroadcastString(text string) {
	payload := strenc.EncodeUTF16LE(text)
	for _, s := range srv.registry.Snapshot() {
		if err := s.sendData(protocol.String, payload); err != nil {
			srv.logger.Printf("server: broadcast to %s: %v", s.IDString(), err)
		}
	}
}

func base64Key(key ClientSessionKey) string {
	return idString(key)
}
