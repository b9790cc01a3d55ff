package settings

import "time"

// ClientSettings mirrors the client-visible subset of ServerSettings plus
// purely local client configuration (spec.md §3: "ClientSettings... client
// visible fields... Others are server-local", SPEC_FULL.md §3). See
// json.go for its MarshalJSON/UnmarshalJSON (Duration fields as
// milliseconds, Password never serialized).
type ClientSettings struct {
	Version             int32
	ConnectionTestTries uint8
	EncryptionEnabled   bool

	Password       string
	ServerAddr     string
	DialTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// DefaultClientSettings returns sane local-only defaults; the
// version/connection-test-tries/encryption-enabled fields are overwritten
// by ApplyServerInfo once Auth_Info is received.
func DefaultClientSettings(serverAddr, password string) ClientSettings {
	return ClientSettings{
		EncryptionEnabled: true,
		Password:          password,
		ServerAddr:        serverAddr,
		DialTimeout:       10 * time.Second,
		ReceiveTimeout:    500 * time.Millisecond,
	}
}

// ApplyServerInfo updates the client's view of the negotiated settings
// after decoding the Auth_Info/settings package (spec.md §4.3.1, §6).
func (c *ClientSettings) ApplyServerInfo(version int32, connectionTestTries uint8, encryptionEnabled bool) {
	c.Version = version
	c.ConnectionTestTries = connectionTestTries
	c.EncryptionEnabled = encryptionEnabled
}
