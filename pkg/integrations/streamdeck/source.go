// Package streamdeck turns a Stream Deck key into a gesture source.
package streamdeck

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"rafaelmartins.com/p/streamdeck"

	"github.com/actionsum/securetoggle/pkg/gesture"
)

// StateFunc reports the secure flag and whether a cycle is in progress, for the key face
type StateFunc func() (secure, pending bool)

// Deck publishes a receive when the key goes down and the deactivate when
// it comes up. Holding the key past abortAfter publishes an abort instead.
type Deck struct {
	serial     string
	key        int
	abortAfter time.Duration
	identifier string
	state      StateFunc
	logger     *slog.Logger
}

var _ gesture.Source = (*Deck)(nil)

// NewDeck uses the device with the given serial, or the first one when serial is empty.
// key is 1-based.
func NewDeck(serial string, key int, abortAfter time.Duration, identifier string, state StateFunc, logger *slog.Logger) (*Deck, error) {
	if key < 1 {
		return nil, errors.Errorf("stream deck key must be 1 or greater, got %d", key)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deck{
		serial:     serial,
		key:        key,
		abortAfter: abortAfter,
		identifier: identifier,
		state:      state,
		logger:     logger,
	}, nil
}

func (d *Deck) Name() string {
	return "streamdeck"
}

func (d *Deck) Run(ctx context.Context, pub gesture.Publisher) error {
	device, err := streamdeck.GetDevice(d.serial)
	if err != nil {
		return errors.Wrap(err, "no stream deck found")
	}
	if err := device.Open(); err != nil {
		return errors.Wrap(err, "failed to open stream deck")
	}
	defer device.Close()

	if d.key > int(device.GetKeyCount()) {
		return errors.Errorf("%s has %d keys, key %d configured", device.GetModelName(), device.GetKeyCount(), d.key)
	}
	keyID := streamdeck.KEY_1 + streamdeck.KeyID(d.key-1)

	d.logger.Info("stream deck connected", "model", device.GetModelName(), "serial", device.GetSerialNumber(), "key", d.key)

	hold := newHoldPress(gesture.NewPress(pub, d.identifier, d.Name()), d.abortAfter, d.logger)
	err = device.AddKeyHandler(keyID, func(dev *streamdeck.Device, k *streamdeck.Key) error {
		return hold.Hold(ctx, func() { k.WaitForRelease() })
	})
	if err != nil {
		return errors.Wrap(err, "failed to register key handler")
	}

	renderer, err := NewKeyRenderer()
	if err != nil {
		return err
	}

	handlerErrs := make(chan error, 8)
	fatal := make(chan error, 1)
	go func() {
		fatal <- device.Listen(handlerErrs)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var (
		drawn                bool
		lastSecure, lastPend bool
	)
	refresh := func() {
		if d.state == nil {
			if !drawn {
				_ = device.SetKeyImage(keyID, renderer.Render(false, false))
				drawn = true
			}
			return
		}
		secure, pending := d.state()
		if drawn && secure == lastSecure && pending == lastPend {
			return
		}
		if err := device.SetKeyImage(keyID, renderer.Render(secure, pending)); err != nil {
			d.logger.Debug("failed to draw stream deck key", "error", err)
			return
		}
		drawn, lastSecure, lastPend = true, secure, pending
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			_ = device.ClearKey(keyID)
			return ctx.Err()
		case err := <-handlerErrs:
			if err != nil {
				d.logger.Warn("stream deck handler error", "error", err)
			}
		case err := <-fatal:
			if err == nil {
				err = errors.New("stream deck listener stopped")
			}
			return errors.Wrap(err, "stream deck disconnected")
		case <-ticker.C:
			refresh()
		}
	}
}

// holdPress runs one key press: receive on key down, deactivate on release,
// or abort once the key has been held for abortAfter
type holdPress struct {
	press      *gesture.Press
	abortAfter time.Duration
	logger     *slog.Logger
}

func newHoldPress(press *gesture.Press, abortAfter time.Duration, logger *slog.Logger) *holdPress {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &holdPress{press: press, abortAfter: abortAfter, logger: logger}
}

// Hold publishes the receive, blocks in waitRelease until the key comes up
// and then closes the press
func (h *holdPress) Hold(ctx context.Context, waitRelease func()) error {
	if _, err := h.press.Begin(ctx, ""); err != nil {
		h.logger.Warn("stream deck gesture not delivered", "error", err)
	}

	var abort *time.Timer
	if h.abortAfter > 0 {
		abort = time.AfterFunc(h.abortAfter, func() {
			h.logger.Info("stream deck key held too long, aborting")
			_ = h.press.Abort(ctx)
		})
	}

	waitRelease()
	if abort != nil {
		abort.Stop()
	}
	// no-op when the abort already closed the press
	return h.press.End(ctx)
}
