package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// LoadServerSettings builds a ServerSettings from defaults, overlaid by a
// JSON config file (if path is non-empty) and then by environment
// variables, mirroring the teacher's configuration/server.Reader
// file-then-env layering (PAL/configuration/server/reader.go).
func LoadServerSettings(path string) (ServerSettings, error) {
	s := DefaultServerSettings()
	if path != "" {
		if err := loadJSONFile(path, &s); err != nil {
			return ServerSettings{}, err
		}
	}
	applyServerEnv(&s)
	if err := s.Validate(); err != nil {
		return ServerSettings{}, err
	}
	return s, nil
}

func applyServerEnv(s *ServerSettings) {
	if v := os.Getenv("TCPMS_PASSWORD"); v != "" {
		s.Password = v
	}
	if v := os.Getenv("TCPMS_ENCRYPTION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.EncryptionEnabled = b
		}
	}
	if v := os.Getenv("TCPMS_MAX_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxClients = n
		}
	}
}

// LoadClientSettings builds a ClientSettings for serverAddr/password,
// overlaid by a JSON config file (if path is non-empty) and then by
// environment variables.
func LoadClientSettings(path, serverAddr, password string) (ClientSettings, error) {
	c := DefaultClientSettings(serverAddr, password)
	if path != "" {
		if err := loadJSONFile(path, &c); err != nil {
			return ClientSettings{}, err
		}
	}
	applyClientEnv(&c)
	return c, nil
}

func applyClientEnv(c *ClientSettings) {
	if v := os.Getenv("TCPMS_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("TCPMS_SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
}

func loadJSONFile(path string, into any) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("settings: config file does not exist: %s", path)
		}
		return fmt.Errorf("settings: config file not accessible: %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings: config file (%s) is unreadable: %w", path, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("settings: config file (%s) is invalid: %w", path, err)
	}
	return nil
}
