package x11

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/pkg/gesture"
)

// repeatGrace is how long a key release waits for the KeyPress that marks
// it as keyboard auto-repeat rather than a real release
const repeatGrace = 40 * time.Millisecond

// Accelerator is a parsed hotkey such as "ctrl+alt+s"
type Accelerator struct {
	Modifiers uint16
	Keysym    xproto.Keysym
}

var modifierNames = map[string]uint16{
	"shift":   xproto.ModMaskShift,
	"ctrl":    xproto.ModMaskControl,
	"control": xproto.ModMaskControl,
	"alt":     xproto.ModMask1,
	"mod1":    xproto.ModMask1,
	"super":   xproto.ModMask4,
	"win":     xproto.ModMask4,
	"mod4":    xproto.ModMask4,
}

var namedKeysyms = map[string]xproto.Keysym{
	"space":       0x0020,
	"return":      0xff0d,
	"enter":       0xff0d,
	"tab":         0xff09,
	"escape":      0xff1b,
	"pause":       0xff13,
	"scroll_lock": 0xff14,
	"print":       0xff61,
	"insert":      0xff63,
	"delete":      0xffff,
	"home":        0xff50,
	"end":         0xff57,
}

// ParseAccelerator parses "+"-joined modifiers followed by one key name
func ParseAccelerator(s string) (Accelerator, error) {
	var acc Accelerator

	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return acc, errors.Errorf("invalid accelerator %q", s)
	}

	for _, mod := range parts[:len(parts)-1] {
		mask, ok := modifierNames[strings.TrimSpace(mod)]
		if !ok {
			return acc, errors.Errorf("unknown modifier %q in accelerator %q", mod, s)
		}
		acc.Modifiers |= mask
	}

	sym, err := parseKeysym(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return acc, errors.Wrapf(err, "invalid accelerator %q", s)
	}
	acc.Keysym = sym
	return acc, nil
}

func parseKeysym(key string) (xproto.Keysym, error) {
	if sym, ok := namedKeysyms[key]; ok {
		return sym, nil
	}
	if len(key) == 1 {
		c := key[0]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			return xproto.Keysym(c), nil
		}
	}
	if len(key) > 1 && key[0] == 'f' {
		if n, err := strconv.Atoi(key[1:]); err == nil && n >= 1 && n <= 24 {
			return xproto.Keysym(0xffbe + n - 1), nil
		}
	}
	return 0, errors.Errorf("unknown key %q", key)
}

// findKeycode scans a keyboard mapping for the first keycode producing sym
func findKeycode(first xproto.Keycode, perKeycode byte, syms []xproto.Keysym, sym xproto.Keysym) (xproto.Keycode, bool) {
	if perKeycode == 0 {
		return 0, false
	}
	for i, s := range syms {
		if s == sym {
			return first + xproto.Keycode(i/int(perKeycode)), true
		}
	}
	return 0, false
}

// lockVariants are grabbed alongside the accelerator so Caps Lock and
// Num Lock do not defeat it
var lockVariants = []uint16{0, xproto.ModMaskLock, xproto.ModMask2, xproto.ModMaskLock | xproto.ModMask2}

// Hotkey is a gesture source driven by a global X11 key grab: press
// publishes a receive, release publishes the deactivate
type Hotkey struct {
	accel      Accelerator
	identifier string
	logger     *slog.Logger
}

var _ gesture.Source = (*Hotkey)(nil)

func NewHotkey(accelerator, identifier string, logger *slog.Logger) (*Hotkey, error) {
	acc, err := ParseAccelerator(accelerator)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hotkey{accel: acc, identifier: identifier, logger: logger}, nil
}

func (h *Hotkey) Name() string {
	return "hotkey"
}

// Run grabs the key on the root window and publishes until ctx is cancelled
func (h *Hotkey) Run(ctx context.Context, pub gesture.Publisher) error {
	conn, err := xgb.NewConn()
	if err != nil {
		return errors.Wrap(err, "failed to connect to X server")
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	mapping, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to read keyboard mapping")
	}
	keycode, ok := findKeycode(setup.MinKeycode, mapping.KeysymsPerKeycode, mapping.Keysyms, h.accel.Keysym)
	if !ok {
		conn.Close()
		return errors.Errorf("no keycode produces keysym 0x%x", uint32(h.accel.Keysym))
	}

	for _, extra := range lockVariants {
		err := xproto.GrabKeyChecked(conn, true, root, h.accel.Modifiers|extra, keycode,
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "failed to grab hotkey (already taken by another client?)")
		}
	}
	h.logger.Info("hotkey grabbed", "keycode", keycode, "modifiers", h.accel.Modifiers)

	go func() {
		<-ctx.Done()
		for _, extra := range lockVariants {
			xproto.UngrabKey(conn, keycode, root, h.accel.Modifiers|extra)
		}
		conn.Close()
	}()

	keys := newRepeatFilter(gesture.NewPress(pub, h.identifier, h.Name()), repeatGrace, h.logger)

	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			// connection closed
			keys.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.New("X connection closed")
		}
		if xerr != nil {
			h.logger.Debug("X error while waiting for hotkey", "error", xerr)
			continue
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			if e.Detail == keycode {
				keys.KeyDown(ctx)
			}
		case xproto.KeyReleaseEvent:
			if e.Detail == keycode {
				keys.KeyUp(ctx)
			}
		}
	}
}

// repeatFilter folds the press/release pairs X sends for an auto-repeating
// key into one gesture press. A release only ends the press once no new
// KeyPress follows within grace.
type repeatFilter struct {
	press  *gesture.Press
	grace  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	release *time.Timer
}

func newRepeatFilter(press *gesture.Press, grace time.Duration, logger *slog.Logger) *repeatFilter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &repeatFilter{press: press, grace: grace, logger: logger}
}

func (f *repeatFilter) KeyDown(ctx context.Context) {
	f.mu.Lock()
	held := f.release != nil && f.release.Stop()
	f.release = nil
	f.mu.Unlock()

	// auto-repeat: the release we held back was not real
	if held || f.press.Active() {
		return
	}
	if _, err := f.press.Begin(ctx, ""); err != nil {
		f.logger.Warn("hotkey gesture not delivered", "error", err)
	}
}

func (f *repeatFilter) KeyUp(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.release != nil {
		f.release.Stop()
	}
	f.release = time.AfterFunc(f.grace, func() {
		if err := f.press.End(ctx); err != nil {
			f.logger.Warn("hotkey release not delivered", "error", err)
		}
	})
}

// Close aborts a press whose release was still being held back
func (f *repeatFilter) Close() {
	f.mu.Lock()
	pending := f.release != nil && f.release.Stop()
	f.release = nil
	f.mu.Unlock()
	if pending {
		_ = f.press.Abort(context.Background())
	}
}
