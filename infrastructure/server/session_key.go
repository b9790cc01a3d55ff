// Package server implements the TcpMs Server Registry & Listener (spec.md
// §4.5): accept loop, per-client Session driving Handshake/Handler/
// Liveness, and a concurrent registry keyed by ClientSessionKey. Grounded
// on the teacher's infrastructure/tunnel/session.{Peer,Repository,
// ConcurrentRepository} (kept and adapted: ClientSessionKey-keyed instead
// of IP-keyed) and the accept-loop shape of
// infrastructure/tunnel/dataplane/server/tcp_chacha20/transport_handler.go.
package server

import "github.com/google/uuid"

// ClientSessionKey identifies one connected session (spec.md §6: "16
// random bytes"). Implemented as a uuid.UUID — a value type, comparable
// with == and usable as a map key — which structurally rules out the
// historical reference-comparison bug spec.md §9 flags (SPEC_FULL.md §6
// REDESIGN).
type ClientSessionKey = uuid.UUID

// newSessionKey generates a fresh random session key.
func newSessionKey() (ClientSessionKey, error) {
	return uuid.NewRandom()
}
