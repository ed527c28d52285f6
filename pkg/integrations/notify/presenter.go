// Package notify presents confirmation prompts as freedesktop desktop
// notifications with accept and cancel actions.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/pkg/confirm"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyIface = "org.freedesktop.Notifications"

	actionAccept = "accept"
	actionCancel = "cancel"

	urgencyCritical = byte(2)
)

// Presenter implements confirm.Presenter over the session bus
type Presenter struct {
	conn    *dbus.Conn
	appName string
	icon    string
	logger  *slog.Logger
	signals chan *dbus.Signal

	mu      sync.Mutex
	pending map[uint32]*dialog
}

var _ confirm.Presenter = (*Presenter)(nil)

// NewPresenter connects to the session bus and starts listening for
// ActionInvoked and NotificationClosed signals
func NewPresenter(appName string, logger *slog.Logger) (*Presenter, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to session bus")
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyIface),
	)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to subscribe to notification signals")
	}

	p := newPresenter(conn, appName, logger)
	conn.Signal(p.signals)
	go p.loop()
	return p, nil
}

func newPresenter(conn *dbus.Conn, appName string, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Presenter{
		conn:    conn,
		appName: appName,
		icon:    "dialog-password",
		logger:  logger,
		signals: make(chan *dbus.Signal, 16),
		pending: make(map[uint32]*dialog),
	}
}

// Present shows prompt as a critical notification. The answer arrives
// from the signal loop goroutine.
func (p *Presenter) Present(ctx context.Context, prompt confirm.Prompt, onResult func(bool)) (confirm.Dialog, error) {
	accept, cancel := prompt.AcceptLabel, prompt.CancelLabel
	if accept == "" {
		accept = "OK"
	}
	if cancel == "" {
		cancel = "Cancel"
	}

	actions := []string{actionAccept, accept, actionCancel, cancel}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgencyCritical),
	}
	expire := int32(-1)
	if prompt.Timeout > 0 {
		expire = int32(prompt.Timeout / time.Millisecond)
	}

	// Hold mu across the call so a signal for the new ID waits until it is tracked
	p.mu.Lock()
	defer p.mu.Unlock()

	var id uint32
	err := p.conn.Object(notifyDest, notifyPath).CallWithContext(ctx, notifyIface+".Notify", 0,
		p.appName, uint32(0), p.icon, prompt.Title, prompt.Message, actions, hints, expire).Store(&id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to show confirmation notification")
	}

	return p.trackLocked(id, onResult, prompt.Timeout), nil
}

func (p *Presenter) trackLocked(id uint32, onResult func(bool), timeout time.Duration) *dialog {
	fire, cancel := confirm.Once(onResult)
	d := &dialog{presenter: p, id: id, fire: fire, cancel: cancel}
	// servers may ignore expire_timeout for critical notifications
	if timeout > 0 {
		d.timer = time.AfterFunc(timeout, func() {
			if p.take(id) != nil {
				p.closeNotification(id)
				d.finish(false)
			}
		})
	}
	p.pending[id] = d
	return d
}

func (p *Presenter) take(id uint32) *dialog {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.pending[id]
	delete(p.pending, id)
	return d
}

func (p *Presenter) loop() {
	for sig := range p.signals {
		p.handleSignal(sig)
	}
}

func (p *Presenter) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) == 0 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	switch sig.Name {
	case notifyIface + ".ActionInvoked":
		if len(sig.Body) < 2 {
			return
		}
		key, _ := sig.Body[1].(string)
		if d := p.take(id); d != nil {
			p.logger.Debug("confirmation answered", "notification", id, "action", key)
			p.closeNotification(id)
			d.finish(key == actionAccept)
		}

	case notifyIface + ".NotificationClosed":
		if d := p.take(id); d != nil {
			p.logger.Debug("confirmation closed without an answer", "notification", id)
			d.finish(false)
		}
	}
}

func (p *Presenter) closeNotification(id uint32) {
	if p.conn == nil {
		return
	}
	call := p.conn.Object(notifyDest, notifyPath).Call(notifyIface+".CloseNotification", 0, id)
	if call.Err != nil {
		p.logger.Debug("failed to close notification", "notification", id, "error", call.Err)
	}
}

// Pending returns how many notifications still wait for an answer
func (p *Presenter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Presenter) Close() error {
	if p.conn == nil {
		return nil
	}
	p.conn.RemoveSignal(p.signals)
	return p.conn.Close()
}

type dialog struct {
	presenter *Presenter
	id        uint32
	fire      func(bool)
	cancel    func()
	timer     *time.Timer
}

func (d *dialog) finish(accepted bool) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.fire(accepted)
}

// Dismiss closes the notification without reporting an answer
func (d *dialog) Dismiss() error {
	d.cancel()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.presenter.take(d.id) != nil {
		d.presenter.closeNotification(d.id)
	}
	return nil
}
