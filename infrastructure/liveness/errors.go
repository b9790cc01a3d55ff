package liveness

import "errors"

var errPingTimeout = errors.New("liveness: no pong or data received within ping budget")
