package settings

import "testing"

func TestDefaultServerSettings(t *testing.T) {
	s := DefaultServerSettings()
	if s.ConnectionTestTries != 3 {
		t.Fatalf("expected 3 tries, got %d", s.ConnectionTestTries)
	}
	if !s.EncryptionEnabled {
		t.Fatal("expected encryption enabled by default")
	}
	if s.MaxClients != 15 {
		t.Fatalf("expected 15 max clients, got %d", s.MaxClients)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsTimeoutExceedingInterval(t *testing.T) {
	s := NewServerSettings(WithPingIntervalMs(1000), WithPingTimeoutMs(1000))
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error when ping timeout >= ping interval")
	}
}

func TestPingEnabledWhenIntervalZero(t *testing.T) {
	s := NewServerSettings(WithPingIntervalMs(0))
	if s.PingEnabled() {
		t.Fatal("ping must be disabled when interval is zero")
	}
}

func TestEncodeDecodeWireRoundTrip(t *testing.T) {
	s := NewServerSettings(WithConnectionTestTries(7), WithEncryptionEnabled(false))
	s.Version = 42
	buf := s.EncodeWire()
	version, tries, enc, err := DecodeWireSettings(buf)
	if err != nil {
		t.Fatalf("DecodeWireSettings: %v", err)
	}
	if version != 42 || tries != 7 || enc != false {
		t.Fatalf("round trip mismatch: version=%d tries=%d enc=%v", version, tries, enc)
	}
}

func TestDecodeWireRejectsShortPayload(t *testing.T) {
	if _, _, _, err := DecodeWireSettings([]byte{1, 2, 3}); err != ErrShortSettingsPayload {
		t.Fatalf("expected ErrShortSettingsPayload, got %v", err)
	}
}

func TestApplyServerInfo(t *testing.T) {
	c := DefaultClientSettings("127.0.0.1:9000", "secret")
	c.ApplyServerInfo(2, 5, false)
	if c.Version != 2 || c.ConnectionTestTries != 5 || c.EncryptionEnabled {
		t.Fatalf("ApplyServerInfo did not update fields: %+v", c)
	}
}
