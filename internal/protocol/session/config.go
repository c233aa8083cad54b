package session

import "time"

// Config defines transport timeouts and buffer sizing for one link session.
type Config struct {
	// ConnectTimeout bounds a Connector dial. Zero waits until Stop.
	ConnectTimeout time.Duration
	// WriteTimeout bounds each peer write, including auto-responses. Writes
	// run on the session loop, so a stalled peer holds every other operation,
	// Stop included, for up to this long.
	WriteTimeout    time.Duration
	ReadBufferBytes int
	// AutoRespond is the initial auto-responder flag.
	AutoRespond bool
}

// DefaultConfig returns link session defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ReadBufferBytes: 64 * 1024,
	}
}

// WithDefaults fills unset sizing fields. ConnectTimeout is left alone so a
// zero value keeps meaning "no timeout".
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = def.ReadBufferBytes
	}
	if c.ConnectTimeout < 0 {
		c.ConnectTimeout = 0
	}
	return c
}
