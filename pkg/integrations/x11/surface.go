// Package x11 provides the X11 foreground surface accessor and global hotkey source.
package x11

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/pkg/surface"
)

// DefaultSecureAtom is the window property holding the secure flag
const DefaultSecureAtom = "_SECURETOGGLE_SECURE"

var ErrNoActiveWindow = errors.New("no active window found")

// Surface implements surface.Accessor by keeping a CARDINAL property on the
// active top-level window. Compositors and capture tools read it to hide the window.
type Surface struct {
	mu     sync.Mutex
	conn   *xgb.Conn
	root   xproto.Window
	secure xproto.Atom
	atoms  map[string]xproto.Atom
}

var _ surface.Accessor = (*Surface)(nil)

// NewSurface connects to $DISPLAY and interns the atoms it needs
func NewSurface(secureAtom string) (*Surface, error) {
	if secureAtom == "" {
		secureAtom = DefaultSecureAtom
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	s := &Surface{
		conn:  conn,
		root:  xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}

	names := []string{
		"_NET_ACTIVE_WINDOW",
		"_NET_WM_NAME",
		"WM_NAME",
		"WM_CLASS",
		"UTF8_STRING",
		secureAtom,
	}
	for _, name := range names {
		atom, err := internAtom(conn, name)
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.atoms[name] = atom
	}
	s.secure = s.atoms[secureAtom]

	return s, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to intern atom %s", name)
	}
	return reply.Atom, nil
}

// SetSecure writes the flag on the active window
func (s *Surface) SetSecure(secure bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	win, err := s.activeWindow()
	if err != nil {
		return err
	}

	err = xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, win,
		s.secure, xproto.AtomCardinal, 32, 1, encodeFlag(secure)).Check()
	if err != nil {
		return errors.Wrapf(err, "failed to set secure flag on window 0x%x", uint32(win))
	}
	return nil
}

// IsSecure reads the flag of the active window; a missing property reads as false
func (s *Surface) IsSecure() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	win, err := s.activeWindow()
	if err != nil {
		return false, err
	}

	data, err := s.getProperty(win, s.secure, xproto.AtomCardinal, 1)
	if err != nil {
		return false, errors.Wrap(err, "failed to read secure flag")
	}
	return decodeFlag(data), nil
}

func (s *Surface) Describe() (*surface.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	win, err := s.activeWindow()
	if err != nil {
		return nil, err
	}

	instance, class := s.windowClass(win)
	appName := instance
	if appName == "" {
		appName = class
	}

	return &surface.Info{
		WindowID:      uint32(win),
		AppName:       strings.ToLower(appName),
		WindowTitle:   s.windowName(win),
		DisplayServer: "x11",
	}, nil
}

func (s *Surface) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := xproto.GetInputFocus(s.conn).Reply()
	return err == nil
}

func (s *Surface) GetDisplayServer() string {
	return "x11"
}

func (s *Surface) Close() error {
	s.conn.Close()
	return nil
}

func (s *Surface) getProperty(win xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(s.conn, false, win, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (s *Surface) activeFromProperty() xproto.Window {
	data, err := s.getProperty(s.root, s.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

func (s *Surface) activeFromInputFocus() xproto.Window {
	reply, err := xproto.GetInputFocus(s.conn).Reply()
	if err != nil {
		return 0
	}
	return reply.Focus
}

func (s *Surface) topLevelParent(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(s.conn, win).Reply()
		if err != nil || reply.Parent == s.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

// activeWindow prefers _NET_ACTIVE_WINDOW and falls back to the input
// focus; window managers update both lazily, so it retries briefly
func (s *Surface) activeWindow() (xproto.Window, error) {
	for i := 0; i < 5; i++ {
		if win := s.activeFromProperty(); win != 0 {
			return win, nil
		}

		if win := s.activeFromInputFocus(); win > 1 && win != s.root {
			return s.topLevelParent(win), nil
		}

		time.Sleep(20 * time.Millisecond)
	}
	return 0, ErrNoActiveWindow
}

func (s *Surface) windowName(win xproto.Window) string {
	data, err := s.getProperty(win, s.atoms["_NET_WM_NAME"], s.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	data, err = s.getProperty(win, s.atoms["WM_NAME"], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

func (s *Surface) windowClass(win xproto.Window) (instance, class string) {
	data, err := s.getProperty(win, s.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	return splitClass(data)
}

// splitClass splits a WM_CLASS value into its instance and class names
func splitClass(data []byte) (instance, class string) {
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func encodeFlag(secure bool) []byte {
	buf := make([]byte, 4)
	if secure {
		binary.LittleEndian.PutUint32(buf, 1)
	}
	return buf
}

func decodeFlag(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) != 0
}
