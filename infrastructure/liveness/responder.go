package liveness

import (
	"context"

	"tcpms/domain/protocol"
	"tcpms/infrastructure/handler"
)

// RespondToPing implements the client-side half of spec.md §4.4: "on
// receipt of Ping, pause dispatch, directly dispatch Pong, resume
// dispatch". Intended to be called from a Handler's OnInternal callback
// when it observes a Ping package; the obtain loop awaits this call before
// continuing, which is what makes the pause/resume safe to do inline.
func RespondToPing(ctx context.Context, h *handler.Handler) error {
	if err := h.PauseDispatch(ctx); err != nil {
		return err
	}
	defer h.ResumeDispatch()
	return h.Dispatch(protocol.NewControlPackage(protocol.Pong, nil))
}
