package protocol

import "fmt"

// MaxPayloadLength is the implementation cap on a single Package's payload,
// enforced by the codec to bound attacker-controlled allocation (spec.md §4.1).
const MaxPayloadLength = 16 * 1024 * 1024 // 16 MiB

// Package is a single framed message exchanged over a TcpMs connection.
//
// Invariants (spec.md §3):
//   - Payload is nil iff len(Payload) == 0.
//   - DataType == Empty iff the package carries no application data.
//   - Type.IsInternal() == (Type != Data).
type Package struct {
	Type     PackageType
	DataType DataType
	Payload  []byte

	// Completion, if non-nil, is signaled exactly once by the dispatch loop
	// after the package's bytes have been written to the socket. Senders
	// awaiting dispatch read from this channel; it is never closed, only
	// written to (or left untouched, if the dispatch queue is torn down
	// before reaching this package — see stop_and_dispatch_rest, spec.md §9).
	Completion chan error
}

// NewDataPackage builds a Data package carrying an application payload.
func NewDataPackage(dt DataType, payload []byte) Package {
	p := Package{Type: Data, DataType: dt}
	if len(payload) > 0 {
		p.Payload = payload
	}
	return p
}

// NewControlPackage builds a non-Data (internal) package, optionally
// carrying a raw byte payload (e.g. Auth_Salt, Auth_Challenge).
func NewControlPackage(t PackageType, payload []byte) Package {
	p := Package{Type: t, DataType: Empty}
	if len(payload) > 0 {
		p.DataType = Blob
		p.Payload = payload
	}
	return p
}

// WithCompletion attaches a completion notifier to an otherwise-built package.
func (p Package) WithCompletion(c chan error) Package {
	p.Completion = c
	return p
}

// Signal notifies the completion channel, if any, without blocking.
func (p Package) Signal(err error) {
	if p.Completion == nil {
		return
	}
	select {
	case p.Completion <- err:
	default:
	}
}

func (p Package) String() string {
	return fmt.Sprintf("Package{Type: %s, DataType: %s, len(Payload): %d}", p.Type, p.DataType, len(p.Payload))
}
