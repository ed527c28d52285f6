package x11

import (
	"os"
	"testing"

	"github.com/jezek/xgb/xproto"
)

func TestParseAccelerator(t *testing.T) {
	tests := []struct {
		input   string
		mods    uint16
		keysym  xproto.Keysym
		wantErr bool
	}{
		{input: "ctrl+alt+s", mods: xproto.ModMaskControl | xproto.ModMask1, keysym: 's'},
		{input: "Super+Shift+L", mods: xproto.ModMask4 | xproto.ModMaskShift, keysym: 'l'},
		{input: "pause", keysym: 0xff13},
		{input: "ctrl+f12", mods: xproto.ModMaskControl, keysym: 0xffc9},
		{input: "mod4 + 9", mods: xproto.ModMask4, keysym: '9'},
		{input: "", wantErr: true},
		{input: "ctrl+", wantErr: true},
		{input: "hyper+s", wantErr: true},
		{input: "ctrl+f99", wantErr: true},
		{input: "ctrl+?", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			acc, err := ParseAccelerator(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAccelerator(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAccelerator(%q) error: %v", tt.input, err)
			}
			if acc.Modifiers != tt.mods {
				t.Errorf("modifiers = 0x%x, want 0x%x", acc.Modifiers, tt.mods)
			}
			if acc.Keysym != tt.keysym {
				t.Errorf("keysym = 0x%x, want 0x%x", acc.Keysym, tt.keysym)
			}
		})
	}
}

func TestFindKeycode(t *testing.T) {
	// two keysyms per keycode, starting at keycode 8
	syms := []xproto.Keysym{
		'q', 'Q',
		'w', 'W',
		's', 'S',
	}

	code, ok := findKeycode(8, 2, syms, 's')
	if !ok || code != 10 {
		t.Errorf("findKeycode('s') = %d, %v; want 10, true", code, ok)
	}

	code, ok = findKeycode(8, 2, syms, 'W')
	if !ok || code != 9 {
		t.Errorf("findKeycode('W') = %d, %v; want 9, true", code, ok)
	}

	if _, ok := findKeycode(8, 2, syms, 'z'); ok {
		t.Error("findKeycode('z') should not be found")
	}
	if _, ok := findKeycode(8, 0, syms, 's'); ok {
		t.Error("zero keysyms per keycode must not match")
	}
}

func TestSplitClass(t *testing.T) {
	instance, class := splitClass([]byte("navigator\x00Firefox\x00"))
	if instance != "navigator" || class != "Firefox" {
		t.Errorf("splitClass = %q, %q", instance, class)
	}

	instance, class = splitClass([]byte("xterm"))
	if instance != "xterm" || class != "" {
		t.Errorf("splitClass single = %q, %q", instance, class)
	}
}

func TestFlagEncoding(t *testing.T) {
	if !decodeFlag(encodeFlag(true)) {
		t.Error("encoded true must decode as true")
	}
	if decodeFlag(encodeFlag(false)) {
		t.Error("encoded false must decode as false")
	}
	if decodeFlag(nil) {
		t.Error("a missing property reads as not secure")
	}
}

func TestNewHotkeyRejectsBadAccelerator(t *testing.T) {
	if _, err := NewHotkey("ctrl+", "toggle", nil); err == nil {
		t.Error("expected error for incomplete accelerator")
	}

	h, err := NewHotkey("ctrl+alt+s", "toggle", nil)
	if err != nil {
		t.Fatalf("NewHotkey error: %v", err)
	}
	if h.Name() != "hotkey" {
		t.Errorf("Name() = %q", h.Name())
	}
}

func TestSurfaceOnDisplay(t *testing.T) {
	if os.Getenv("DISPLAY") == "" {
		t.Skip("X11 display not available")
	}

	s, err := NewSurface("")
	if err != nil {
		t.Skipf("X server not reachable: %v", err)
	}
	defer s.Close()

	if s.GetDisplayServer() != "x11" {
		t.Errorf("GetDisplayServer() = %s, want x11", s.GetDisplayServer())
	}
	if !s.IsAvailable() {
		t.Error("connected surface should be available")
	}

	info, err := s.Describe()
	if err != nil {
		t.Logf("Describe() error (no focused window?): %v", err)
		return
	}
	t.Logf("Active window: 0x%x %s - %s", info.WindowID, info.AppName, info.WindowTitle)
}
