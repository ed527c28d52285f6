package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override default and file values
func LoadFromEnv(cfg *Config) {
	// Database configuration
	if dbPath := os.Getenv("SECURETOGGLE_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Daemon configuration
	if pidFile := os.Getenv("SECURETOGGLE_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}
	if logFile := os.Getenv("SECURETOGGLE_LOG_FILE"); logFile != "" {
		cfg.Daemon.LogFile = logFile
	}

	// Web configuration
	if webHost := os.Getenv("SECURETOGGLE_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}
	if webPort := os.Getenv("SECURETOGGLE_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}

	// Broker configuration
	if identifier := os.Getenv("SECURETOGGLE_GESTURE"); identifier != "" {
		cfg.Broker.Identifier = identifier
	}
	if natsURL := os.Getenv("SECURETOGGLE_NATS_URL"); natsURL != "" {
		cfg.Broker.NATSURL = natsURL
	}
	if prefix := os.Getenv("SECURETOGGLE_NATS_PREFIX"); prefix != "" {
		cfg.Broker.SubjectPrefix = prefix
	}

	// Toggle configuration
	if confirm := os.Getenv("SECURETOGGLE_CONFIRM"); confirm != "" {
		if val, err := strconv.ParseBool(confirm); err == nil {
			cfg.Toggle.RequireConfirmation = val
		}
	}
	if commitOn := os.Getenv("SECURETOGGLE_COMMIT_ON"); commitOn != "" {
		cfg.Toggle.CommitOn = commitOn
	}
	if action := os.Getenv("SECURETOGGLE_ACTION"); action != "" {
		cfg.Toggle.Action = action
	}

	if timeout := os.Getenv("SECURETOGGLE_CONFIRM_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil && seconds >= 0 {
			cfg.Notify.Timeout = time.Duration(seconds) * time.Second
		}
	}

	// Sources
	if hotkey := os.Getenv("SECURETOGGLE_HOTKEY"); hotkey != "" {
		if hotkey == "off" || hotkey == "none" {
			cfg.Hotkey.Enabled = false
		} else {
			cfg.Hotkey.Enabled = true
			cfg.Hotkey.Accelerator = hotkey
		}
	}
	if key := os.Getenv("SECURETOGGLE_STREAMDECK_KEY"); key != "" {
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= 32 {
			cfg.StreamDeck.Enabled = true
			cfg.StreamDeck.Key = n
		}
	}

	// Logging
	if level := os.Getenv("SECURETOGGLE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SECURETOGGLE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}
