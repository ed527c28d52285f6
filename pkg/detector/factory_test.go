package detector

import (
	"errors"
	"os"
	"testing"
)

func TestDetectDisplayServer(t *testing.T) {
	tests := []struct {
		name             string
		sessionType      string
		waylandDisplay   string
		x11Display       string
		expectedContains string
	}{
		{
			name:             "Wayland session",
			sessionType:      "wayland",
			waylandDisplay:   "wayland-0",
			x11Display:       "",
			expectedContains: "wayland",
		},
		{
			name:             "X11 session",
			sessionType:      "x11",
			waylandDisplay:   "",
			x11Display:       ":0",
			expectedContains: "x11",
		},
		{
			name:             "Unknown session",
			sessionType:      "",
			waylandDisplay:   "",
			x11Display:       "",
			expectedContains: "unknown",
		},
		{
			name:             "Wayland display set",
			sessionType:      "",
			waylandDisplay:   "wayland-1",
			x11Display:       "",
			expectedContains: "wayland",
		},
		{
			name:             "X11 display set",
			sessionType:      "",
			waylandDisplay:   "",
			x11Display:       ":1",
			expectedContains: "x11",
		},
	}

	origSessionType := os.Getenv("XDG_SESSION_TYPE")
	origWaylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	origX11Display := os.Getenv("DISPLAY")

	defer func() {
		os.Setenv("XDG_SESSION_TYPE", origSessionType)
		os.Setenv("WAYLAND_DISPLAY", origWaylandDisplay)
		os.Setenv("DISPLAY", origX11Display)
	}()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("XDG_SESSION_TYPE", tt.sessionType)
			os.Setenv("WAYLAND_DISPLAY", tt.waylandDisplay)
			os.Setenv("DISPLAY", tt.x11Display)

			result := DetectDisplayServer()
			if result != tt.expectedContains {
				t.Errorf("DetectDisplayServer() = %s, want %s", result, tt.expectedContains)
			}
		})
	}
}

func TestNewWithoutDisplay(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", "")

	acc, err := New("")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("New() error = %v, want ErrUnsupported", err)
	}
	if acc != nil {
		t.Errorf("New() returned accessor %v alongside error", acc)
	}
}

func TestNewOrMemoryFallsBack(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", "")

	acc := NewOrMemory("", nil)
	defer acc.Close()

	if got := acc.GetDisplayServer(); got != "memory" {
		t.Errorf("GetDisplayServer() = %s, want memory", got)
	}
	if err := acc.SetSecure(true); err != nil {
		t.Fatalf("SetSecure() error: %v", err)
	}
	secure, err := acc.IsSecure()
	if err != nil || !secure {
		t.Errorf("IsSecure() = %v, %v, want true, nil", secure, err)
	}
}

func TestNewWithDisplay(t *testing.T) {
	if os.Getenv("DISPLAY") == "" {
		t.Skip("no X server")
	}
	acc, err := New("")
	if err != nil {
		t.Skipf("X server not usable: %v", err)
	}
	defer acc.Close()

	if got := acc.GetDisplayServer(); got != "x11" {
		t.Errorf("GetDisplayServer() = %s, want x11", got)
	}
}
