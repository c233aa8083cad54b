package session

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Role selects which side of the link this process plays.
type Role string

const (
	RoleListener  Role = "listener"
	RoleConnector Role = "connector"
)

// ParseRole accepts the role names and the server/client aliases.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "listener", "server", "listen":
		return RoleListener, nil
	case "connector", "client", "connect":
		return RoleConnector, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, raw)
	}
}

// ConnectionConfig is immutable while a session is active.
type ConnectionConfig struct {
	Role          Role   `json:"role" toml:"role"`
	LocalAddress  string `json:"local_address" toml:"local_address"`
	LocalPort     int    `json:"local_port" toml:"local_port"`
	RemoteAddress string `json:"remote_address" toml:"remote_address"`
	RemotePort    int    `json:"remote_port" toml:"remote_port"`
}

// DefaultConnectionConfig mirrors the tool's stock endpoints.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Role:          RoleListener,
		LocalAddress:  "127.0.0.1",
		LocalPort:     1234,
		RemoteAddress: "127.0.0.1",
		RemotePort:    63156,
	}
}

// Validate checks the fields required by the configured role. A listener
// port of zero asks the OS for an ephemeral port.
func (c ConnectionConfig) Validate() error {
	switch c.Role {
	case RoleListener:
		if strings.TrimSpace(c.LocalAddress) == "" {
			return fmt.Errorf("%w: missing local_address", ErrInvalidConfig)
		}
		if c.LocalPort < 0 || c.LocalPort > 65535 {
			return fmt.Errorf("%w: local_port out of range: %d", ErrInvalidConfig, c.LocalPort)
		}
	case RoleConnector:
		if strings.TrimSpace(c.RemoteAddress) == "" {
			return fmt.Errorf("%w: missing remote_address", ErrInvalidConfig)
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			return fmt.Errorf("%w: remote_port out of range: %d", ErrInvalidConfig, c.RemotePort)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, c.Role)
	}
	return nil
}

func (c ConnectionConfig) LocalAddr() string {
	return net.JoinHostPort(strings.TrimSpace(c.LocalAddress), strconv.Itoa(c.LocalPort))
}

func (c ConnectionConfig) RemoteAddr() string {
	return net.JoinHostPort(strings.TrimSpace(c.RemoteAddress), strconv.Itoa(c.RemotePort))
}

// State is the session lifecycle phase.
type State string

const (
	StateDown       State = "down"
	StateStarting   State = "starting"
	StateListening  State = "listening"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// Status is the single current session status. Message is set only in StateError.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

func (s Status) String() string {
	if s.State == StateError && s.Message != "" {
		return "error: " + s.Message
	}
	return string(s.State)
}

// Active reports whether a session holds (or is acquiring) a socket.
func (s Status) Active() bool {
	return s.State != StateDown
}
