// Package handshake implements the TcpMs Handshake State Machine (spec.md
// §4.3): Auth-Info, the two mutual password challenges, the data-channel
// encryption exchange, and probe-and-echo validation. Grounded on the
// teacher's ServerHandshake/ClientHandshake split
// (infrastructure/cryptography/chacha20/handshake/server_handshake.go): a
// small struct wrapping a connection adapter with typed steps, generalized
// from the teacher's X25519/HKDF key exchange to this protocol's
// password/PBKDF2 mutual challenge.
//
// Both roles run directly against a handler.Handler before its loops are
// started (spec.md §4.3: "direct dispatch/obtain_expected").
package handshake

import (
	"context"
	"crypto/hmac"
	"fmt"

	"tcpms/domain/protoerr"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/crypto"
	"tcpms/infrastructure/handler"
)

const challengeLength = 32

// Result is what a successful join produces: the data-channel crypto
// context (nil when encryption is disabled) ready to install before
// starting the obtain/dispatch loops.
type Result struct {
	DataCrypto          *crypto.AesContext
	Version             int32
	ConnectionTestTries uint8
	EncryptionEnabled   bool
}

// dispatchDisconnect best-effort notifies the peer of an aborted join
// (spec.md §4.3: "a server-side failure additionally dispatches a
// Disconnect when possible"). Errors are ignored: the join is already
// failing and this is a courtesy, not a requirement.
func dispatchDisconnect(h *handler.Handler) {
	_ = h.Dispatch(protocol.NewControlPackage(protocol.Disconnect, nil))
}

// mintChallenge builds a fresh AES context plus a random challenge,
// its ciphertext, and its plaintext digest (spec.md §4.3.2/§4.3.3: "create
// a fresh AES context... generate 32 random challenge bytes... compute
// enc_out... compute h_out").
func mintChallenge(password string) (ctx *crypto.AesContext, encChallenge, digest []byte, err error) {
	ctx, err = crypto.NewAesContext(password)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("handshake: mint challenge context: %w", err)
	}
	plain, err := crypto.RandomBytes(challengeLength)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("handshake: generate challenge: %w", err)
	}
	enc, err := ctx.Encrypt(plain)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("handshake: encrypt challenge: %w", err)
	}
	return ctx, enc, crypto.Sha512(plain), nil
}

// answerChallenge reconstructs the peer's context from the received
// salt/IV plus the local password, decrypts the challenge, and returns its
// digest, ready to send back as Auth_Response. A decryption failure is
// reported as a plain mismatch (spec.md §4.3.3: "a failed decryption on
// either side is treated as Auth_Failure, not a protocol error"), so the
// returned digest simply won't match — it is never itself an error.
func answerChallenge(password string, salt, iv, encChallenge []byte) ([]byte, error) {
	ctx, err := crypto.NewAesContextFromParts(password, salt, iv)
	if err != nil {
		return nil, fmt.Errorf("handshake: reconstruct challenge context: %w", err)
	}
	plain, err := ctx.Decrypt(encChallenge)
	if err != nil {
		return []byte{}, nil
	}
	return crypto.Sha512(plain), nil
}

func digestsMatch(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// sendChallenge dispatches the Auth_Salt/Auth_IV/Auth_Challenge triple a
// challenger sends to open either mutual-challenge phase (spec.md §4.3.2,
// §4.3.3).
func sendChallenge(h *handler.Handler, ctx *crypto.AesContext, encChallenge []byte) error {
	if err := h.Dispatch(protocol.NewControlPackage(protocol.AuthSalt, ctx.Salt)); err != nil {
		return err
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.AuthIV, ctx.IV)); err != nil {
		return err
	}
	return h.Dispatch(protocol.NewControlPackage(protocol.AuthChallenge, encChallenge))
}

// receiveChallenge obtains the Auth_Salt/Auth_IV/Auth_Challenge triple a
// verifier reads in either mutual-challenge phase.
func receiveChallenge(ctx context.Context, h *handler.Handler) (salt, iv, encChallenge []byte, err error) {
	saltPkg, err := h.ObtainExpected(ctx, protocol.AuthSalt)
	if err != nil {
		return nil, nil, nil, err
	}
	ivPkg, err := h.ObtainExpected(ctx, protocol.AuthIV)
	if err != nil {
		return nil, nil, nil, err
	}
	challengePkg, err := h.ObtainExpected(ctx, protocol.AuthChallenge)
	if err != nil {
		return nil, nil, nil, err
	}
	return saltPkg.Payload, ivPkg.Payload, challengePkg.Payload, nil
}

// sendVerdict dispatches Auth_Success or Auth_Failure depending on match.
func sendVerdict(h *handler.Handler, match bool) error {
	if match {
		return h.Dispatch(protocol.NewControlPackage(protocol.AuthSuccess, nil))
	}
	return h.Dispatch(protocol.NewControlPackage(protocol.AuthFailure, nil))
}

// receiveVerdict obtains Auth_Success/Auth_Failure and turns a failure
// into ErrJoinFailed.
func receiveVerdict(ctx context.Context, h *handler.Handler) error {
	pkg, err := h.ObtainExpected(ctx, protocol.AuthSuccess, protocol.AuthFailure)
	if err != nil {
		return err
	}
	if pkg.Type == protocol.AuthFailure {
		return fmt.Errorf("handshake: peer rejected challenge response: %w", protoerr.ErrJoinFailed)
	}
	return nil
}
