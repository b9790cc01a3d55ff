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

// RunClient drives the joining side of the join sequence (spec.md §4.3)
// over h, whose loops must not be started yet or must be paused (PauseAll,
// as on a Panic rejoin). On any failure it returns a wrapped
// protoerr.ErrJoinFailed. Once Auth-Info has been received and decoded, cs
// is updated in place with the server's settings, whether or not the rest
// of the join succeeds.
func RunClient(ctx context.Context, h *handler.Handler, cs *settings.ClientSettings) (*Result, error) {
	res, err := runClientJoin(ctx, h, cs)
	if err != nil {
		return nil, fmt.Errorf("handshake: client join: %w: %w", protoerr.ErrJoinFailed, err)
	}
	return res, nil
}

func runClientJoin(ctx context.Context, h *handler.Handler, cs *settings.ClientSettings) (*Result, error) {
	// 4.3.1 Auth-Info
	infoPkg, err := h.ObtainExpected(ctx, protocol.AuthInfo)
	if err != nil {
		return nil, err
	}
	version, tries, encryptionEnabled, err := settings.DecodeWireSettings(infoPkg.Payload)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode auth-info: %w", err)
	}
	cs.ApplyServerInfo(version, tries, encryptionEnabled)

	if encryptionEnabled && cs.Password == "" {
		return nil, protoerr.New(protoerr.KindIncorrectPackage, fmt.Errorf("encryption required but no password configured"))
	}

	if !encryptionEnabled {
		if err := runValidationAsResponder(ctx, h, nil, tries); err != nil {
			return nil, err
		}
		return &Result{Version: version, ConnectionTestTries: tries}, nil
	}

	// 4.3.2 Client-Challenge: server proves knowledge, client verifies.
	salt, iv, encChallenge, err := receiveChallenge(ctx, h)
	if err != nil {
		return nil, err
	}
	digestIn, err := answerChallenge(cs.Password, salt, iv, encChallenge)
	if err != nil {
		return nil, err
	}
	if err := h.Dispatch(protocol.NewControlPackage(protocol.AuthResponse, digestIn)); err != nil {
		return nil, err
	}
	if err := receiveVerdict(ctx, h); err != nil {
		return nil, err
	}

	// 4.3.3 Server-Challenge: client proves knowledge of the password.
	authCtxOut, encOut, digestOut, err := mintChallenge(cs.Password)
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
		return nil, protoerr.New(protoerr.KindIncorrectPackage, fmt.Errorf("server failed to prove password knowledge"))
	}

	// 4.3.4 Encryption Exchange: server mints, client reconstructs.
	ivPkg, err := h.ObtainExpected(ctx, protocol.EncrIV)
	if err != nil {
		return nil, err
	}
	saltPkg, err := h.ObtainExpected(ctx, protocol.EncrSalt)
	if err != nil {
		return nil, err
	}
	dataCrypto, err := crypto.NewAesContextFromParts(cs.Password, saltPkg.Payload, ivPkg.Payload)
	if err != nil {
		return nil, err
	}

	// 4.3.5 Validation: client is responder.
	if err := runValidationAsResponder(ctx, h, dataCrypto, tries); err != nil {
		return nil, err
	}

	return &Result{
		DataCrypto:          dataCrypto,
		Version:             version,
		ConnectionTestTries: tries,
		EncryptionEnabled:   true,
	}, nil
}
