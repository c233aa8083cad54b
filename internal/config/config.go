package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/linkctl/internal/display"
	"github.com/danmuck/linkctl/internal/logging"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the linkctl.toml document.
type Config struct {
	Connection session.ConnectionConfig `toml:"connection"`
	Session    SessionConfig            `toml:"session"`
	Display    DisplayConfig            `toml:"display"`
	Layouts    LayoutsConfig            `toml:"layouts"`
	HTTP       HTTPConfig               `toml:"http"`
	Log        LogConfig                `toml:"log"`
}

type SessionConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ReadBufferBytes int    `toml:"read_buffer_bytes"`
	AutoRespond     bool   `toml:"auto_respond"`
}

type DisplayConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type LayoutsConfig struct {
	Path string `toml:"path"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token, when set, is required as a bearer token on control routes.
	Token   string `toml:"token"`
	TLSCert string `toml:"tls_cert"`
	TLSKey  string `toml:"tls_key"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
	File      string `toml:"file"`
}

func Default() Config {
	sess := session.DefaultConfig()
	return Config{
		Connection: session.DefaultConnectionConfig(),
		Session: SessionConfig{
			ConnectTimeout:  sess.ConnectTimeout.String(),
			WriteTimeout:    sess.WriteTimeout.String(),
			ReadBufferBytes: sess.ReadBufferBytes,
			AutoRespond:     sess.AutoRespond,
		},
		Display: DisplayConfig{
			Path:       "local/display.jsonl",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Layouts: LayoutsConfig{Path: "local/layouts.toml"},
		HTTP: HTTPConfig{
			Addr:        "127.0.0.1:9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info", Timestamp: true},
	}
}

// Load overlays path onto Default. Keys absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if role, err := session.ParseRole(string(cfg.Connection.Role)); err == nil {
		cfg.Connection.Role = role
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if err := cfg.Connection.Validate(); err != nil {
		return fmt.Errorf("%w: [connection] %w", ErrInvalid, err)
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("%w: [http] addr is required", ErrInvalid)
	}
	if (strings.TrimSpace(cfg.HTTP.TLSCert) == "") != (strings.TrimSpace(cfg.HTTP.TLSKey) == "") {
		return fmt.Errorf("%w: [http] tls_cert and tls_key must be set together", ErrInvalid)
	}
	if cfg.Display.MaxSizeMB < 0 || cfg.Display.MaxBackups < 0 {
		return fmt.Errorf("%w: [display] rotation limits must not be negative", ErrInvalid)
	}
	if raw := strings.TrimSpace(cfg.Log.Level); raw != "" {
		if _, ok := logging.ParseLevel(raw); !ok {
			return fmt.Errorf("%w: [log] unknown level %q", ErrInvalid, raw)
		}
	}
	return nil
}

// SessionConfig resolves the [session] table.
func (c Config) SessionConfig() (session.Config, error) {
	out := session.DefaultConfig()
	d, err := parseDuration("connect_timeout", c.Session.ConnectTimeout)
	if err != nil {
		return session.Config{}, err
	}
	out.ConnectTimeout = d
	if d, err = parseDuration("write_timeout", c.Session.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	if d > 0 {
		out.WriteTimeout = d
	}
	if c.Session.ReadBufferBytes < 0 {
		return session.Config{}, fmt.Errorf("%w: [session] read_buffer_bytes must not be negative", ErrInvalid)
	}
	if c.Session.ReadBufferBytes > 0 {
		out.ReadBufferBytes = c.Session.ReadBufferBytes
	}
	out.AutoRespond = c.Session.AutoRespond
	return out.WithDefaults(), nil
}

func (c Config) DisplayOptions() display.Options {
	return display.Options{
		Path:       strings.TrimSpace(c.Display.Path),
		MaxSizeMB:  c.Display.MaxSizeMB,
		MaxBackups: c.Display.MaxBackups,
	}
}

// LoggingConfig maps the [log] table onto the runtime logging profile.
func (c Config) LoggingConfig() logging.Config {
	out := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		out.Level = lvl
	}
	out.Timestamp = c.Log.Timestamp
	out.NoColor = c.Log.NoColor
	out.File = strings.TrimSpace(c.Log.File)
	return out
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: [session] %s: %w", ErrInvalid, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: [session] %s must not be negative", ErrInvalid, key)
	}
	return d, nil
}
