// Package detector picks the surface accessor for the running session.
package detector

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/pkg/integrations/x11"
	"github.com/actionsum/securetoggle/pkg/surface"
)

// ErrUnsupported is returned when no accessor can drive the session
var ErrUnsupported = errors.New("no supported display server for the secure flag")

// New returns the X11 accessor when an X server is reachable. Under
// Wayland the secure flag only reaches XWayland clients, so the X11
// accessor is still tried before giving up.
func New(secureAtom string) (surface.Accessor, error) {
	switch DetectDisplayServer() {
	case "x11", "wayland":
		if os.Getenv("DISPLAY") == "" {
			return nil, errors.Wrap(ErrUnsupported, "DISPLAY is not set")
		}
		s, err := x11.NewSurface(secureAtom)
		if err != nil {
			return nil, err
		}
		if !s.IsAvailable() {
			s.Close()
			return nil, errors.Wrap(ErrUnsupported, "X server does not expose an active window")
		}
		return s, nil
	default:
		return nil, ErrUnsupported
	}
}

// NewOrMemory falls back to an in-memory accessor, so the daemon keeps
// serving gestures and history on a headless machine
func NewOrMemory(secureAtom string, logger *slog.Logger) surface.Accessor {
	acc, err := New(secureAtom)
	if err == nil {
		return acc
	}
	if logger != nil {
		logger.Warn("secure flag is kept in memory only", "error", err, "display_server", DetectDisplayServer())
	}
	return surface.NewMemory(false)
}

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
