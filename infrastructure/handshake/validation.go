package handshake

import (
	"context"
	"fmt"

	"tcpms/domain/protoerr"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/crypto"
	"tcpms/infrastructure/handler"
)

const (
	minProbeLength = 1
	maxProbeLength = 5
)

// randomProbeLength picks a value in [1,5] from a single random byte
// (spec.md §4.3.5: "generate 1..=5 random bytes"). The modulo bias this
// introduces is irrelevant: the probe length only needs to vary enough to
// exercise framing, not to be uniformly distributed.
func randomProbeLength() (int, error) {
	b, err := crypto.RandomBytes(1)
	if err != nil {
		return 0, err
	}
	return minProbeLength + int(b[0])%(maxProbeLength-minProbeLength+1), nil
}

// encryptIfEnabled encrypts plaintext under dataCrypto, or returns it
// unchanged if encryption is disabled (dataCrypto == nil).
func encryptIfEnabled(dataCrypto *crypto.AesContext, plain []byte) ([]byte, error) {
	if dataCrypto == nil {
		return plain, nil
	}
	return dataCrypto.Encrypt(plain)
}

func decryptIfEnabled(dataCrypto *crypto.AesContext, cipher []byte) ([]byte, error) {
	if dataCrypto == nil {
		return cipher, nil
	}
	return dataCrypto.Decrypt(cipher)
}

// runProberRound executes one round of the prober side of spec.md §4.3.5:
// mint a probe, send it, obtain the peer's echo, and verify overlap.
func runProberRound(ctx context.Context, h *handler.Handler, dataCrypto *crypto.AesContext) error {
	n, err := randomProbeLength()
	if err != nil {
		return fmt.Errorf("handshake: generate probe length: %w", err)
	}
	probe, err := crypto.RandomBytes(n)
	if err != nil {
		return fmt.Errorf("handshake: generate probe: %w", err)
	}
	wire, err := encryptIfEnabled(dataCrypto, probe)
	if err != nil {
		return fmt.Errorf("handshake: encrypt probe: %w", err)
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.Test, wire)); err != nil {
		return err
	}

	echoPkg, err := h.ObtainExpected(ctx, protocol.Test)
	if err != nil {
		return err
	}
	echo, err := decryptIfEnabled(dataCrypto, echoPkg.Payload)
	if err != nil {
		// A corrupt/unreadable echo is a validation failure, not a
		// protocol error: fall through to the length/overlap check below,
		// which will reject it.
		echo = nil
	}

	if !probeOverlaps(probe, echo) {
		_ = h.Dispatch(protocol.NewControlPackage(protocol.TestTryFailure, nil))
		return protoerr.New(protoerr.KindIncorrectPackage, fmt.Errorf("validation round: no overlap"))
	}
	return h.Dispatch(protocol.NewControlPackage(protocol.TestTrySuccess, nil))
}

// runResponderRound executes one round of the responder side: obtain the
// prober's probe, build an echo of the same length that shares at least
// one byte with it, send it, then wait for the verdict.
func runResponderRound(ctx context.Context, h *handler.Handler, dataCrypto *crypto.AesContext) error {
	probePkg, err := h.ObtainExpected(ctx, protocol.Test)
	if err != nil {
		return err
	}
	probe, err := decryptIfEnabled(dataCrypto, probePkg.Payload)
	if err != nil {
		return fmt.Errorf("handshake: decrypt probe: %w", err)
	}

	echo, err := buildOverlappingEcho(probe)
	if err != nil {
		return fmt.Errorf("handshake: build echo: %w", err)
	}
	wire, err := encryptIfEnabled(dataCrypto, echo)
	if err != nil {
		return fmt.Errorf("handshake: encrypt echo: %w", err)
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.Test, wire)); err != nil {
		return err
	}

	verdict, err := h.ObtainExpected(ctx, protocol.TestTrySuccess, protocol.TestTryFailure)
	if err != nil {
		return err
	}
	if verdict.Type == protocol.TestTryFailure {
		return protoerr.New(protoerr.KindIncorrectPackage, fmt.Errorf("validation round: peer rejected echo"))
	}
	return nil
}

// buildOverlappingEcho returns len(probe) random bytes with one index
// overwritten by a random byte of probe, guaranteeing the overlap the
// prober checks for (spec.md §4.3.5: "replace one randomly chosen index of
// a random buffer with a random byte of the decrypted probe").
func buildOverlappingEcho(probe []byte) ([]byte, error) {
	if len(probe) == 0 {
		return nil, fmt.Errorf("handshake: empty probe")
	}
	echo, err := crypto.RandomBytes(len(probe))
	if err != nil {
		return nil, err
	}
	idxBytes, err := crypto.RandomBytes(2)
	if err != nil {
		return nil, err
	}
	dst := int(idxBytes[0]) % len(echo)
	src := int(idxBytes[1]) % len(probe)
	echo[dst] = probe[src]
	return echo, nil
}

func probeOverlaps(probe, echo []byte) bool {
	if len(echo) != len(probe) {
		return false
	}
	for _, pb := range probe {
		for _, eb := range echo {
			if pb == eb {
				return true
			}
		}
	}
	return false
}

// runValidationAsProber executes spec.md §4.3.5 as the server role: send
// TestRequest, then tries rounds of probe-and-echo with the server as
// prober.
func runValidationAsProber(ctx context.Context, h *handler.Handler, dataCrypto *crypto.AesContext, tries uint8) error {
	if err := h.Dispatch(protocol.NewControlPackage(protocol.TestRequest, nil)); err != nil {
		return err
	}
	for i := uint8(0); i < tries; i++ {
		if err := runProberRound(ctx, h, dataCrypto); err != nil {
			return err
		}
	}
	return nil
}

// runValidationAsResponder mirrors runValidationAsProber from the peer
// side: obtain TestRequest, then respond to tries rounds.
func runValidationAsResponder(ctx context.Context, h *handler.Handler, dataCrypto *crypto.AesContext, tries uint8) error {
	if _, err := h.ObtainExpected(ctx, protocol.TestRequest); err != nil {
		return err
	}
	for i := uint8(0); i < tries; i++ {
		if err := runResponderRound(ctx, h, dataCrypto); err != nil {
			return err
		}
	}
	return nil
}
