// Package protoerr defines the error kinds a TcpMs connection can surface
// through the Package Handler's on_error hook (spec.md §7), plus the
// sentinel values callers match against with errors.Is.
package protoerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a connection-level operation failed.
type Kind int

const (
	// KindReadTimeout: a byte-level read missed its deadline past the
	// first byte of a package.
	KindReadTimeout Kind = iota
	// KindCannotRead: the socket is broken on read. Terminal.
	KindCannotRead
	// KindCannotWrite: the socket is broken on write. Terminal.
	KindCannotWrite
	// KindDisconnected: the peer indicated disconnect, or the stream
	// ended cleanly. Terminal.
	KindDisconnected
	// KindErrorPackage: the peer sent an Error package.
	KindErrorPackage
	// KindUnexpectedPackage: a typed read observed a frame whose type
	// did not match what the caller expected.
	KindUnexpectedPackage
	// KindPingTimeout: no pong or data package arrived within the ping
	// budget.
	KindPingTimeout
	// KindIncorrectPackage: a validation round's echo did not match.
	KindIncorrectPackage
)

func (k Kind) String() string {
	switch k {
	case KindReadTimeout:
		return "read_timeout"
	case KindCannotRead:
		return "cannot_read"
	case KindCannotWrite:
		return "cannot_write"
	case KindDisconnected:
		return "disconnected"
	case KindErrorPackage:
		return "error_package"
	case KindUnexpectedPackage:
		return "unexpected_package"
	case KindPingTimeout:
		return "ping_timeout"
	case KindIncorrectPackage:
		return "incorrect_package"
	default:
		return "unknown"
	}
}

// Terminal reports whether this kind of error must end the session
// unconditionally (spec.md §7 policy), as opposed to triggering a Panic
// rejoin attempt.
func (k Kind) Terminal() bool {
	switch k {
	case KindCannotRead, KindCannotWrite, KindDisconnected:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with the underlying cause, if any.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, protoerr.New(kind, nil)) matches any *Error of that kind
// regardless of cause. The plain sentinels below never match an *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

var (
	// ErrJoinFailed is returned by the Handshake when the join sequence
	// terminates before reaching Joined (spec.md §4.3).
	ErrJoinFailed = errors.New("join failed")
	// ErrMaxClients names the at-capacity condition (spec.md §4.5). No
	// function in this module returns it: at capacity the Server's accept
	// loop stops accepting until a session leaves.
	ErrMaxClients = errors.New("max clients reached")
	// ErrPanicsExceeded names a session's panic count exceeding
	// ServerSettings.MaxPanicsPerClient (spec.md §4.3.6). No function in
	// this module returns it: the Session dispatches Disconnect and
	// terminates instead.
	ErrPanicsExceeded = errors.New("max panics exceeded")
	// ErrStopped is returned by Handler.Send (and so SendAwait) after
	// StopAll/Close.
	ErrStopped = errors.New("package handler stopped")
)
