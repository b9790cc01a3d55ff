// Package settings defines ServerSettings/ClientSettings (spec.md §3) and
// the settings wire codec (spec.md §6), grounded on the shape of the
// teacher's infrastructure/settings.Settings: an exported struct built from
// a Default() constructor plus functional Option setters, with its JSON form
// defined in json.go.
package settings

import "time"

// ServerSettings configures a single server's protocol behavior. Only
// Version, ConnectionTestTries and EncryptionEnabled are ever transmitted
// to clients (spec.md §3); the rest is server-local. JSON marshaling is
// handled by MarshalJSON/UnmarshalJSON below (json.go), which render the
// Duration fields as milliseconds and never serialize Password; struct tags
// here would be misleading for the duration fields (Go would otherwise
// marshal them as raw nanoseconds) so none are declared.
type ServerSettings struct {
	Version             int32
	ConnectionTestTries uint8
	EncryptionEnabled   bool
	Password            string // never serialized, never transmitted to clients

	MaxClients         int
	MaxPanicsPerClient int
	PingInterval       time.Duration
	PingTimeout        time.Duration
	ReceiveTimeout     time.Duration
}

// Option mutates a ServerSettings under construction.
type Option func(*ServerSettings)

// DefaultServerSettings returns the spec.md §3 defaults.
func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		Version:             1,
		ConnectionTestTries: 3,
		EncryptionEnabled:   true,
		MaxClients:          15,
		MaxPanicsPerClient:  5,
		PingInterval:        10_000 * time.Millisecond,
		PingTimeout:         8_000 * time.Millisecond,
		ReceiveTimeout:      500 * time.Millisecond,
	}
}

// NewServerSettings applies opts over the defaults.
func NewServerSettings(opts ...Option) ServerSettings {
	s := DefaultServerSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithPassword(password string) Option {
	return func(s *ServerSettings) { s.Password = password }
}

func WithEncryptionEnabled(enabled bool) Option {
	return func(s *ServerSettings) { s.EncryptionEnabled = enabled }
}

func WithMaxClients(n int) Option {
	return func(s *ServerSettings) { s.MaxClients = n }
}

func WithMaxPanicsPerClient(n int) Option {
	return func(s *ServerSettings) { s.MaxPanicsPerClient = n }
}

func WithConnectionTestTries(n uint8) Option {
	return func(s *ServerSettings) { s.ConnectionTestTries = n }
}

func WithPingIntervalMs(ms int) Option {
	return func(s *ServerSettings) { s.PingInterval = time.Duration(ms) * time.Millisecond }
}

func WithPingTimeoutMs(ms int) Option {
	return func(s *ServerSettings) { s.PingTimeout = time.Duration(ms) * time.Millisecond }
}

func WithReceiveTimeoutMs(ms int) Option {
	return func(s *ServerSettings) { s.ReceiveTimeout = time.Duration(ms) * time.Millisecond }
}

// PingEnabled reports whether the liveness monitor should run at all
// (spec.md §4.4: "Activates only when ping_interval_ms > 0").
func (s ServerSettings) PingEnabled() bool {
	return s.PingInterval > 0
}

// Validate enforces the invariant spec.md §3 requires at construction:
// "ping_timeout_ms must be < ping_interval_ms when pinging".
func (s ServerSettings) Validate() error {
	if s.PingEnabled() && s.PingTimeout >= s.PingInterval {
		return errPingTimeoutTooLarge
	}
	return nil
}
