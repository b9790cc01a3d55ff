package server

import (
	"context"
	"encoding/base64"
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

// Session is one joined client connection: its Package Handler, current
// data-channel crypto, liveness monitor, and Panic/rejoin bookkeeping
// (spec.md §4.3.6). The identifier is its ClientSessionKey (spec.md §6:
// "base64 text form for diagnostics").
type Session struct {
	Key     ClientSessionKey
	conn    application.Transport
	handler *handler.Handler
	hooks   application.ServerHooks
	logger  application.Logger
	cfg     settings.ServerSettings

	cryptoMu   sync.RWMutex
	dataCrypto application.Crypto

	monitor *liveness.Monitor
	stats   SessionStats

	rejoinMu sync.Mutex

	terminateOnce sync.Once
	onTerminated  func(*Session)
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

// idString renders a ClientSessionKey as its base64 diagnostic form
// (spec.md §6: "exposed... as a binary handle and as a base64 text form
// for diagnostics").
func idString(key ClientSessionKey) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

// IDString is the session's base64 diagnostic form.
func (s *Session) IDString() string {
	return idString(s.Key)
}

// Stats returns a read-only snapshot of this session's traffic counters.
func (s *Session) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// sendData encrypts (if enabled) and enqueues a Data package of the given
// type for asynchronous dispatch.
func (s *Session) sendData(dt protocol.DataType, plain []byte) error {
	wire := plain
	if dc := s.currentDataCrypto(); dc != nil {
		encrypted, err := dc.Encrypt(plain)
		if err != nil {
			return err
		}
		wire = encrypted
	}
	if err := s.handler.Send(protocol.NewDataPackage(dt, wire)); err != nil {
		return err
	}
	s.stats.noteSent(len(wire))
	return nil
}

func newSession(key ClientSessionKey, conn application.Transport, cfg settings.ServerSettings,
	hooks application.ServerHooks, logger application.Logger, onTerminated func(*Session)) *Session {
	s := &Session{
		Key:          key,
		conn:         conn,
		hooks:        hooks,
		logger:       logger,
		cfg:          cfg,
		onTerminated: onTerminated,
	}
	s.handler = handler.New(conn, cfg.ReceiveTimeout, s.onData, s.onInternal, s.onError)
	return s
}

// setDataCrypto installs the active data-channel crypto context,
// replacing whatever was there before (used on initial join and on every
// successful Panic rejoin).
func (s *Session) setDataCrypto(c *crypto.AesContext) {
	s.cryptoMu.Lock()
	s.dataCrypto = asCrypto(c)
	s.cryptoMu.Unlock()
}

func (s *Session) currentDataCrypto() application.Crypto {
	s.cryptoMu.RLock()
	defer s.cryptoMu.RUnlock()
	return s.dataCrypto
}

// start installs the handshake result, starts the loops, and starts the
// liveness monitor if configured.
func (s *Session) start(ctx context.Context, res *handshake.Result) {
	s.setDataCrypto(res.DataCrypto)
	s.handler.StartAll(ctx)
	if s.cfg.PingEnabled() {
		s.monitor = liveness.NewMonitor(s.handler, s.cfg.PingInterval, s.cfg.PingTimeout, s.onError)
		s.monitor.Start(ctx)
	}
}

func (s *Session) onData(pkg protocol.Package) {
	if s.monitor != nil {
		s.monitor.NoteDataReceived()
	}
	s.stats.noteReceived(len(pkg.Payload))
	plain := pkg.Payload
	if dc := s.currentDataCrypto(); dc != nil && len(pkg.Payload) > 0 {
		decrypted, err := dc.Decrypt(pkg.Payload)
		if err != nil {
			s.onError(protoerr.KindIncorrectPackage, err)
			return
		}
		plain = decrypted
	}
	switch pkg.DataType {
	case protocol.String:
		s.hooks.OnStringReceived(s.IDString(), strenc.DecodeUTF16LE(plain))
	default:
		s.hooks.OnBlobReceived(s.IDString(), plain)
	}
}

func (s *Session) onInternal(pkg protocol.Package) {
	switch pkg.Type {
	case protocol.Pong:
		s.stats.notePong(time.Now().UnixNano())
		if s.monitor != nil {
			s.monitor.NotePong()
		}
	case protocol.Ping:
		if err := liveness.RespondToPing(context.Background(), s.handler); err != nil {
			s.logger.Printf("server: session %s: respond to ping: %v", s.IDString(), err)
		}
	case protocol.DisconnectRequest:
		s.terminate()
	default:
		s.logger.Printf("server: session %s: unhandled internal package %s", s.IDString(), pkg.Type)
	}
}

// onError implements spec.md §7's policy: terminal kinds end the session;
// everything else triggers a Panic rejoin attempt (spec.md §4.3.6).
func (s *Session) onError(kind protoerr.Kind, cause error) {
	if kind.Terminal() {
		s.logger.Printf("server: session %s: terminal error: %v", s.IDString(), cause)
		s.terminate()
		return
	}
	s.logger.Printf("server: session %s: recoverable error (%s): %v", s.IDString(), kind, cause)
	s.runPanicRejoin()
}

// runPanicRejoin serializes on rejoinMu: the obtain loop, the onData
// goroutine (decrypt failures), and the liveness monitor can each reach
// onError independently, and two overlapping handshake.RunServer calls on
// the same handler would interleave their Dispatch/ObtainExpected
// sequences and corrupt the rejoin.
func (s *Session) runPanicRejoin() {
	s.rejoinMu.Lock()
	defer s.rejoinMu.Unlock()

	ctx := context.Background()
	if err := s.handler.PauseAll(ctx); err != nil {
		s.terminate()
		return
	}

	newCount := s.stats.notePanic()
	if newCount > int64(s.cfg.MaxPanicsPerClient) {
		_ = s.handler.Dispatch(protocol.NewControlPackage(protocol.Disconnect, nil))
		s.terminate()
		return
	}

	if err := s.handler.Dispatch(protocol.NewControlPackage(protocol.Panic, nil)); err != nil {
		s.terminate()
		return
	}
	time.Sleep(panicQuiescenceDelay)

	res, err := handshake.RunServer(ctx, s.handler, s.cfg)
	if err != nil {
		s.logger.Printf("server: session %s: panic rejoin failed: %v", s.IDString(), err)
		s.terminate()
		return
	}

	s.setDataCrypto(res.DataCrypto)
	s.handler.ResumeAll()
	s.hooks.OnClientPanic(s.IDString())
}

// terminate closes the session exactly once, invoking onTerminated so the
// owning Server can run remove-client (spec.md §4.5: "emits
// on_client_disconnected(id) exactly once").
func (s *Session) terminate() {
	s.terminateOnce.Do(func() {
		if s.monitor != nil {
			s.monitor.Stop()
		}
		_ = s.handler.Close()
		if s.onTerminated != nil {
			s.onTerminated(s)
		}
	})
}
