package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `toml:"database" yaml:"database"`

	// Daemon configuration
	Daemon DaemonConfig `toml:"daemon" yaml:"daemon"`

	// Web server configuration
	Web WebConfig `toml:"web" yaml:"web"`

	// Gesture broker configuration
	Broker BrokerConfig `toml:"broker" yaml:"broker"`

	// Toggle behaviour
	Toggle ToggleConfig `toml:"toggle" yaml:"toggle"`

	// Confirmation dialog
	Notify NotifyConfig `toml:"notify" yaml:"notify"`

	// Gesture sources
	Hotkey     HotkeyConfig     `toml:"hotkey" yaml:"hotkey"`
	StreamDeck StreamDeckConfig `toml:"streamdeck" yaml:"streamdeck"`

	// Foreground surface
	Surface SurfaceConfig `toml:"surface" yaml:"surface"`

	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"` // Path to SQLite database file
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `toml:"pid_file" yaml:"pid_file"`
	LogFile string `toml:"log_file" yaml:"log_file"` // Log destination of the daemonized child
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// BrokerConfig selects the gesture the daemon listens for and where remote gestures come from
type BrokerConfig struct {
	Identifier    string `toml:"identifier" yaml:"identifier"`         // Gesture name the controller registers for
	NATSURL       string `toml:"nats_url" yaml:"nats_url"`             // Empty disables the NATS bridge
	SubjectPrefix string `toml:"subject_prefix" yaml:"subject_prefix"` // First token of gesture subjects
}

// ToggleConfig holds the controller behaviour
type ToggleConfig struct {
	RequireConfirmation bool   `toml:"require_confirmation" yaml:"require_confirmation"`
	CommitOn            string `toml:"commit_on" yaml:"commit_on"` // "deactivate" or "receive"
	Action              string `toml:"action" yaml:"action"`       // "toggle", "enable" or "disable"
	InitialSecure       bool   `toml:"initial_secure" yaml:"initial_secure"`
	SyncFromSurface     bool   `toml:"sync_from_surface" yaml:"sync_from_surface"`
	RecentEvents        int    `toml:"recent_events" yaml:"recent_events"`
}

// NotifyConfig holds the confirmation dialog content
type NotifyConfig struct {
	Title       string        `toml:"title" yaml:"title"`
	Message     string        `toml:"message" yaml:"message"`
	AcceptLabel string        `toml:"accept_label" yaml:"accept_label"`
	CancelLabel string        `toml:"cancel_label" yaml:"cancel_label"`
	Timeout     time.Duration `toml:"timeout" yaml:"timeout"`
}

// HotkeyConfig holds the X11 global hotkey source
type HotkeyConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Accelerator string `toml:"accelerator" yaml:"accelerator"` // e.g. "ctrl+alt+s"
}

// StreamDeckConfig holds the Stream Deck key source
type StreamDeckConfig struct {
	Enabled    bool          `toml:"enabled" yaml:"enabled"`
	Serial     string        `toml:"serial" yaml:"serial"` // Empty picks the first device
	Key        int           `toml:"key" yaml:"key"`       // 1-based key index
	AbortAfter time.Duration `toml:"abort_after" yaml:"abort_after"`
}

// SurfaceConfig holds the foreground surface accessor settings
type SurfaceConfig struct {
	Atom string `toml:"atom" yaml:"atom"` // X11 property carrying the secure flag
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // text or json
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/securetoggle/securetoggle.db
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/securetoggle-%d.pid", os.Getuid()),
			LogFile: "/tmp/securetoggle.log",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 11000 + os.Getuid()%10000,
		},
		Broker: BrokerConfig{
			Identifier:    "securetoggle.toggle",
			SubjectPrefix: "gesture",
		},
		Toggle: ToggleConfig{
			CommitOn:     "deactivate",
			Action:       "toggle",
			RecentEvents: 64,
		},
		Notify: NotifyConfig{
			Title:       "Secure window",
			Message:     "Toggle privacy protection for the focused window?",
			AcceptLabel: "Toggle",
			CancelLabel: "Cancel",
			Timeout:     15 * time.Second,
		},
		Hotkey: HotkeyConfig{
			Enabled:     true,
			Accelerator: "ctrl+alt+s",
		},
		StreamDeck: StreamDeckConfig{
			Key:        1,
			AbortAfter: 3 * time.Second,
		},
		Surface: SurfaceConfig{
			Atom: "_SECURETOGGLE_SECURE",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	if c.Broker.Identifier == "" {
		return fmt.Errorf("gesture identifier cannot be empty")
	}
	if strings.ContainsAny(c.Broker.Identifier, " *>") {
		return fmt.Errorf("gesture identifier %q contains spaces or NATS wildcards", c.Broker.Identifier)
	}

	switch c.Toggle.CommitOn {
	case "deactivate", "receive":
	default:
		return fmt.Errorf("commit_on must be deactivate or receive, got %q", c.Toggle.CommitOn)
	}

	switch c.Toggle.Action {
	case "toggle", "enable", "disable":
	default:
		return fmt.Errorf("action must be toggle, enable or disable, got %q", c.Toggle.Action)
	}

	if c.Toggle.RecentEvents < 1 {
		return fmt.Errorf("recent_events must be positive, got %d", c.Toggle.RecentEvents)
	}

	if c.Notify.Timeout < 0 {
		return fmt.Errorf("notification timeout cannot be negative")
	}

	if c.StreamDeck.Key < 1 || c.StreamDeck.Key > 32 {
		return fmt.Errorf("stream deck key must be between 1 and 32, got %d", c.StreamDeck.Key)
	}

	if c.Surface.Atom == "" {
		return fmt.Errorf("surface atom cannot be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// SetStreamDeckKey sets the Stream Deck key with validation
func (c *Config) SetStreamDeckKey(key int) error {
	if key < 1 || key > 32 {
		return fmt.Errorf("stream deck key must be between 1 and 32, got %d", key)
	}
	c.StreamDeck.Key = key
	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	nats := c.Broker.NATSURL
	if nats == "" {
		nats = "disabled"
	}
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Daemon:
    PID File: %s
  Web:
    Host: %s
    Port: %d
  Broker:
    Gesture: %s
    NATS: %s
  Toggle:
    Confirmation: %v
    Commit On: %s
    Action: %s
  Sources:
    Hotkey: %v (%s)
    Stream Deck: %v (key %d)
  Logging:
    Level: %s`,
		c.Database.Path,
		c.Daemon.PIDFile,
		c.Web.Host,
		c.Web.Port,
		c.Broker.Identifier,
		nats,
		c.Toggle.RequireConfirmation,
		c.Toggle.CommitOn,
		c.Toggle.Action,
		c.Hotkey.Enabled,
		c.Hotkey.Accelerator,
		c.StreamDeck.Enabled,
		c.StreamDeck.Key,
		c.Logging.Level,
	)
}
