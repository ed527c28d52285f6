// Package broker dispatches gesture events to registered listeners.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/internal/idgen"
	"github.com/actionsum/securetoggle/pkg/gesture"
)

// ErrNoListeners is returned by Publish when nothing is registered for the gesture identifier
var ErrNoListeners = errors.New("no listener registered for gesture")

type registration struct {
	listenerID string
	identifier string
	listener   gesture.Listener
}

// Local is an in-process broker.
//
// A receive goes to listeners in registration order. The first listener
// that marks the event handled claims it; every later listener gets
// OtherListenerHandledEvent instead. Other phases reach every listener.
type Local struct {
	mu     sync.RWMutex
	regs   []registration
	logger *slog.Logger
}

var (
	_ gesture.Broker    = (*Local)(nil)
	_ gesture.Publisher = (*Local)(nil)
)

// NewLocal creates an empty in-process broker
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Local{logger: logger}
}

func (b *Local) Register(listenerID, identifier string, l gesture.Listener) error {
	if listenerID == "" || identifier == "" {
		return errors.New("listener ID and gesture identifier are required")
	}
	if l == nil {
		return errors.New("listener cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.regs {
		if r.listenerID == listenerID && r.identifier == identifier {
			return errors.Errorf("listener %s already registered for %s", listenerID, identifier)
		}
	}
	b.regs = append(b.regs, registration{listenerID: listenerID, identifier: identifier, listener: l})
	b.logger.Info("listener registered", "listener", listenerID, "gesture", identifier)
	return nil
}

func (b *Local) Unregister(listenerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.regs[:0]
	for _, r := range b.regs {
		if r.listenerID != listenerID {
			kept = append(kept, r)
		}
	}
	b.regs = kept
}

// Identifiers returns the distinct gesture identifiers with at least one listener
func (b *Local) Identifiers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, r := range b.regs {
		if !seen[r.identifier] {
			seen[r.identifier] = true
			out = append(out, r.identifier)
		}
	}
	return out
}

// Publish delivers ev to the listeners of ev.Identifier.
// A missing ID or time is filled in before delivery.
func (b *Local) Publish(ctx context.Context, ev *gesture.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		id, err := idgen.Generate()
		if err != nil {
			return errors.Wrap(err, "failed to assign gesture event ID")
		}
		ev.ID = id
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	listeners := b.listenersFor(ev.Identifier)
	if len(listeners) == 0 {
		b.logger.Debug("gesture event without listeners", "event", ev.String())
		return ErrNoListeners
	}

	b.logger.Debug("dispatching gesture event", "event", ev.String(), "listeners", len(listeners))

	if ev.Phase != gesture.PhaseReceive {
		for _, l := range listeners {
			gesture.Deliver(l, ev)
		}
		return nil
	}

	for _, l := range listeners {
		if ev.Handled {
			l.OtherListenerHandledEvent(ev.WithPhase(gesture.PhaseOtherListenerHandled))
			continue
		}
		l.ReceiveEvent(ev)
	}
	return nil
}

func (b *Local) listenersFor(identifier string) []gesture.Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []gesture.Listener
	for _, r := range b.regs {
		if r.identifier == identifier {
			out = append(out, r.listener)
		}
	}
	return out
}
