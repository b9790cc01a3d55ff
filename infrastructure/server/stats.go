package server

import "sync/atomic"

// SessionStats are per-connection atomic counters exposed through the
// registry for diagnostics only; they never gate protocol behavior
// (SPEC_FULL.md §3, in the spirit of the teacher's trafficstats recorder,
// generalized from IP packet RX/TX to package counts since this transport
// has no IP layer).
type SessionStats struct {
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	packagesSent     atomic.Int64
	packagesReceived atomic.Int64
	panics           atomic.Int64
	lastPongUnixNano atomic.Int64
}

// StatsSnapshot is a read-only copy of a SessionStats at one instant.
type StatsSnapshot struct {
	BytesSent        int64
	BytesReceived    int64
	PackagesSent     int64
	PackagesReceived int64
	Panics           int64
	LastPongUnixNano int64
}

func (s *SessionStats) noteSent(n int) {
	s.bytesSent.Add(int64(n))
	s.packagesSent.Add(1)
}

func (s *SessionStats) noteReceived(n int) {
	s.bytesReceived.Add(int64(n))
	s.packagesReceived.Add(1)
}

func (s *SessionStats) notePong(unixNano int64) {
	s.lastPongUnixNano.Store(unixNano)
}

// notePanic records one more panic/rejoin attempt and returns the running
// total, so callers can compare it against MaxPanicsPerClient without a
// second counter.
func (s *SessionStats) notePanic() int64 {
	return s.panics.Add(1)
}

// Snapshot copies out the current counters.
func (s *SessionStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		PackagesSent:     s.packagesSent.Load(),
		PackagesReceived: s.packagesReceived.Load(),
		Panics:           s.panics.Load(),
		LastPongUnixNano: s.lastPongUnixNano.Load(),
	}
}
