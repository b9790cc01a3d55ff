package settings

import (
	"encoding/binary"
	"errors"
)

// wireLength is the fixed size of the client-visible settings payload:
// i32 version (big-endian), u8 connection_test_tries, u8 encryption_enabled
// (spec.md §6).
const wireLength = 6

var (
	errPingTimeoutTooLarge = errors.New("settings: ping timeout must be less than ping interval")
	// ErrShortSettingsPayload is returned by DecodeWireSettings on a truncated payload.
	ErrShortSettingsPayload = errors.New("settings: payload shorter than 6 bytes")
)

// EncodeWire serializes the client-visible subset of ServerSettings for
// transmission (spec.md §6).
func (s ServerSettings) EncodeWire() []byte {
	buf := make([]byte, wireLength)
	binary.BigEndian.PutUint32(buf[0:4], uint32(s.Version))
	buf[4] = s.ConnectionTestTries
	if s.EncryptionEnabled {
		buf[5] = 1
	}
	return buf
}

// DecodeWireSettings parses the payload produced by EncodeWire.
func DecodeWireSettings(payload []byte) (version int32, connectionTestTries uint8, encryptionEnabled bool, err error) {
	if len(payload) < wireLength {
		return 0, 0, false, ErrShortSettingsPayload
	}
	version = int32(binary.BigEndian.Uint32(payload[0:4]))
	connectionTestTries = payload[4]
	encryptionEnabled = payload[5] != 0
	return version, connectionTestTries, encryptionEnabled, nil
}
