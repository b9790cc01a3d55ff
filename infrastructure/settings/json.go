package settings

import (
	"encoding/json"
	"time"
)

// serverSettingsJSON is the on-disk shape of a ServerSettings: Duration
// fields as milliseconds, Password omitted entirely (it is never
// serialized, never transmitted, per spec.md §3 and the teacher's own
// enum-with-custom-JSON-marshal style in settings/encryption.go).
type serverSettingsJSON struct {
	Version             int32 `json:"version"`
	ConnectionTestTries uint8 `json:"connectionTestTries"`
	EncryptionEnabled   bool  `json:"encryptionEnabled"`
	MaxClients          int   `json:"maxClients"`
	MaxPanicsPerClient  int   `json:"maxPanicsPerClient"`
	PingIntervalMs      int64 `json:"pingIntervalMs"`
	PingTimeoutMs       int64 `json:"pingTimeoutMs"`
	ReceiveTimeoutMs    int64 `json:"receiveTimeoutMs"`
}

// MarshalJSON renders a ServerSettings for a config file or diagnostic dump.
func (s ServerSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(serverSettingsJSON{
		Version:             s.Version,
		ConnectionTestTries: s.ConnectionTestTries,
		EncryptionEnabled:   s.EncryptionEnabled,
		MaxClients:          s.MaxClients,
		MaxPanicsPerClient:  s.MaxPanicsPerClient,
		PingIntervalMs:      s.PingInterval.Milliseconds(),
		PingTimeoutMs:       s.PingTimeout.Milliseconds(),
		ReceiveTimeoutMs:    s.ReceiveTimeout.Milliseconds(),
	})
}

// UnmarshalJSON overlays a config file's fields onto whatever the receiver
// already holds, so a config file that omits a field keeps that field's
// existing (default) value rather than zeroing it.
func (s *ServerSettings) UnmarshalJSON(data []byte) error {
	a := serverSettingsJSON{
		Version:             s.Version,
		ConnectionTestTries: s.ConnectionTestTries,
		EncryptionEnabled:   s.EncryptionEnabled,
		MaxClients:          s.MaxClients,
		MaxPanicsPerClient:  s.MaxPanicsPerClient,
		PingIntervalMs:      s.PingInterval.Milliseconds(),
		PingTimeoutMs:       s.PingTimeout.Milliseconds(),
		ReceiveTimeoutMs:    s.ReceiveTimeout.Milliseconds(),
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.Version = a.Version
	s.ConnectionTestTries = a.ConnectionTestTries
	s.EncryptionEnabled = a.EncryptionEnabled
	s.MaxClients = a.MaxClients
	s.MaxPanicsPerClient = a.MaxPanicsPerClient
	s.PingInterval = time.Duration(a.PingIntervalMs) * time.Millisecond
	s.PingTimeout = time.Duration(a.PingTimeoutMs) * time.Millisecond
	s.ReceiveTimeout = time.Duration(a.ReceiveTimeoutMs) * time.Millisecond
	return nil
}

// clientSettingsJSON is the on-disk shape of a ClientSettings; Password is
// omitted for the same reason as ServerSettings.Password.
type clientSettingsJSON struct {
	Version             int32  `json:"version"`
	ConnectionTestTries uint8  `json:"connectionTestTries"`
	EncryptionEnabled   bool   `json:"encryptionEnabled"`
	ServerAddr          string `json:"serverAddr"`
	DialTimeoutMs       int64  `json:"dialTimeoutMs"`
	ReceiveTimeoutMs    int64  `json:"receiveTimeoutMs"`
}

func (c ClientSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(clientSettingsJSON{
		Version:             c.Version,
		ConnectionTestTries: c.ConnectionTestTries,
		EncryptionEnabled:   c.EncryptionEnabled,
		ServerAddr:          c.ServerAddr,
		DialTimeoutMs:       c.DialTimeout.Milliseconds(),
		ReceiveTimeoutMs:    c.ReceiveTimeout.Milliseconds(),
	})
}

func (c *ClientSettings) UnmarshalJSON(data []byte) error {
	a := clientSettingsJSON{
		Version:             c.Version,
		ConnectionTestTries: c.ConnectionTestTries,
		EncryptionEnabled:   c.EncryptionEnabled,
		ServerAddr:          c.ServerAddr,
		DialTimeoutMs:       c.DialTimeout.Milliseconds(),
		ReceiveTimeoutMs:    c.ReceiveTimeout.Milliseconds(),
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Version = a.Version
	c.ConnectionTestTries = a.ConnectionTestTries
	c.EncryptionEnabled = a.EncryptionEnabled
	c.ServerAddr = a.ServerAddr
	c.DialTimeout = time.Duration(a.DialTimeoutMs) * time.Millisecond
	c.ReceiveTimeout = time.Duration(a.ReceiveTimeoutMs) * time.Millisecond
	return nil
}
