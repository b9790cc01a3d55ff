package handshake

import (
	"context"
	"fmt"

	"tcpms/domain/protoerr"
	"tcpms/domain/protocol"
	"tcpms/infrastructure/crypto"
	"tcpms/infrastructure/handler"
	"tcpms/infrastructure/settings"
)

// RunServer drives the accepting side of the join sequence (spec.md §4.3)
// over h, whose loops must not be started yet or must be paused (PauseAll,
// as on a Panic rejoin). On any failure it attempts to dispatch Disconnect
// before returning a wrapped protoerr.ErrJoinFailed.
func RunServer(ctx context.Context, h *handler.Handler, s settings.ServerSettings) (*Result, error) {
	res, err := runServerJoin(ctx, h, s)
	if err != nil {
		dispatchDisconnect(h)
		return nil, fmt.Errorf("handshake: server join: %w: %w", protoerr.ErrJoinFailed, err)
	}
	return res, nil
}

func runServerJoin(ctx context.Context, h *handler.Handler, s settings.ServerSettings) (*Result, error) {
	// 4.3.1 Auth-Info
	if err := h.Dispatch(protocol.NewControlPackage(protocol.AuthInfo, s.EncodeWire())); err != nil {
		return nil, err
	}

	if !s.EncryptionEnabled {
		if err := runValidationAsProber(ctx, h, nil, s.ConnectionTestTries); err != nil {
			return nil, err
		}
		return &Result{Version: s.Version, ConnectionTestTries: s.ConnectionTestTries}, nil
	}

	// 4.3.2 Client-Challenge: server proves knowledge of the password.
	authCtxOut, encOut, digestOut, err := mintChallenge(s.Password)
	if err != nil {
		return nil, err
	}
	if err := sendChallenge(h, authCtxOut, encOut); err != nil {
		return nil, err
	}
	responsePkg, err := h.ObtainExpected(ctx, protocol.AuthResponse)
	if err != nil {
		return nil, err
	}
	match := digestsMatch(responsePkg.Payload, digestOut)
	if err := sendVerdict(h, match); err != nil {
		return nil, err
	}
	if !match {
		return nil, protoerr.New(protoerr.KindIncorrectPackage, fmt.Errorf("client failed to prove password knowledge"))
	}

	// 4.3.3 Server-Challenge: client proves knowledge, server verifies.
	salt, iv, encChallenge, err := receiveChallenge(ctx, h)
	if err != nil {
		return nil, err
	}
	digestIn, err := answerChallenge(s.Password, salt, iv, encChallenge)
	if err != nil {
		return nil, err
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.AuthResponse, digestIn)); err != nil {
		return nil, err
	}
	if err := receiveVerdict(ctx, h); err != nil {
		return nil, err
	}

	// 4.3.4 Encryption Exchange: server mints the data-channel context.
	dataCrypto, err := crypto.NewAesContext(s.Password)
	if err != nil {
		return nil, err
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.EncrIV, dataCrypto.IV)); err != nil {
		return nil, err
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.EncrSalt, dataCrypto.Salt)); err != nil {
		return nil, err
	}

	// 4.3.5 Validation: server is prober.
	if err := runValidationAsProber(ctx, h, dataCrypto, s.ConnectionTestTries); err != nil {
		return nil, err
	}

	return &Result{
		DataCrypto:          dataCrypto,
		Version:             s.Version,
		ConnectionTestTries: s.ConnectionTestTries,
		EncryptionEnabled:   true,
	}, nil
}
