// Package controller turns gesture lifecycle events into at most one secure
// flag write per gesture, with an optional confirmation step in between.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/actionsum/securetoggle/pkg/confirm"
	"github.com/actionsum/securetoggle/pkg/gesture"
	"github.com/actionsum/securetoggle/pkg/surface"
)

// presentTimeout bounds how long showing a dialog may hold up the gesture source
const presentTimeout = 2 * time.Second

type cycle struct {
	seq       uint64
	event     gesture.Event
	intent    Intent
	dialog    confirm.Dialog
	startedAt time.Time
}

// Controller is the gesture listener that owns the toggle state machine.
//
// Every entry point takes mu, so broker callbacks and dialog results may
// arrive from any goroutine. SetSecure is issued with mu held; presenting
// and dismissing dialogs is not.
type Controller struct {
	mu        sync.Mutex
	accessor  surface.Accessor
	presenter confirm.Presenter
	recorder  Recorder
	logger    *slog.Logger
	opts      Options

	presentTimeout time.Duration

	state   State
	secure  bool
	lastSet time.Time
	seq     uint64
	current *cycle
	recent  *lru.Cache[string, struct{}]
}

var _ gesture.Listener = (*Controller)(nil)

// New creates a controller. presenter may be nil when confirmation is never required,
// recorder and logger may be nil.
func New(accessor surface.Accessor, presenter confirm.Presenter, opts Options, recorder Recorder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = RecorderFunc(func(Resolution) {})
	}
	opts = normalize(opts)

	recent, err := lru.New[string, struct{}](opts.RecentEvents)
	if err != nil {
		// only fails on a non-positive size, which normalize rules out
		panic(err)
	}

	return &Controller{
		accessor:  accessor,
		presenter: presenter,
		recorder:  recorder,
		logger:    logger,
		opts:      opts,
		state:     Idle,

		presentTimeout: presentTimeout,
		secure:    opts.InitialSecure,
		recent:    recent,
	}
}

func normalize(opts Options) Options {
	def := DefaultOptions()
	if opts.CommitOn == "" {
		opts.CommitOn = def.CommitOn
	}
	if opts.Action == "" {
		opts.Action = def.Action
	}
	if opts.RecentEvents <= 0 {
		opts.RecentEvents = def.RecentEvents
	}
	if opts.Prompt.Message == "" {
		opts.Prompt = def.Prompt
	}
	return opts
}

// SetOptions swaps the options used by future cycles. The tracked secure value is kept.
func (c *Controller) SetOptions(opts Options) {
	opts = normalize(opts)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

// SyncFromSurface seeds the tracked secure value from the foreground surface
func (c *Controller) SyncFromSurface() error {
	secure, err := c.accessor.IsSecure()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.secure = secure
	c.mu.Unlock()
	return nil
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Secure returns the last value the controller requested
func (c *Controller) Secure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

// Snapshot returns the state, tracked value and active cycle
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:    c.state,
		StateStr: c.state.String(),
		Secure:   c.secure,
		LastSet:  c.lastSet,
	}
	if c.current != nil {
		s.EventID = c.current.event.ID
		s.Since = c.current.startedAt
	}
	return s
}

// ReceiveEvent starts a cycle for ev, superseding any cycle in progress
func (c *Controller) ReceiveEvent(ev *gesture.Event) {
	c.mu.Lock()
	ev.Handled = true

	if c.seenLocked(ev.ID) {
		c.mu.Unlock()
		c.stale(ev, "duplicate receive")
		return
	}

	var (
		resolved []Resolution
		dismiss  confirm.Dialog
	)
	if c.current != nil {
		dismiss = c.current.dialog
		resolved = append(resolved, c.finishLocked(OutcomeSuperseded, nil))
	}

	c.seq++
	cyc := &cycle{
		seq:       c.seq,
		event:     *ev,
		intent:    IntentPending,
		startedAt: time.Now(),
	}
	c.current = cyc
	c.state = AwaitingDecision
	c.logger.Debug("gesture cycle started", "event", ev.ID, "source", ev.Source)

	if !c.opts.RequireConfirmation || c.presenter == nil {
		if c.opts.CommitOn == CommitOnReceive {
			resolved = append(resolved, c.commitLocked())
		}
		c.mu.Unlock()
		c.dismiss(dismiss)
		c.record(resolved...)
		return
	}

	c.state = AwaitingConfirmation
	prompt := c.opts.Prompt
	c.mu.Unlock()

	c.dismiss(dismiss)
	c.record(resolved...)
	c.present(cyc.seq, prompt)
}

// present shows the dialog for cycle seq and attaches it if the cycle is still waiting
func (c *Controller) present(seq uint64, prompt confirm.Prompt) {
	ctx, cancel := context.WithTimeout(context.Background(), c.presentTimeout)
	defer cancel()
	dlg, err := c.presenter.Present(ctx, prompt, func(accepted bool) {
		c.confirmationResult(seq, accepted)
	})

	c.mu.Lock()
	waiting := c.current != nil && c.current.seq == seq && c.state == AwaitingConfirmation
	if err != nil {
		var resolved []Resolution
		if waiting {
			c.logger.Warn("confirmation dialog unavailable, leaving flag unchanged", "error", err)
			resolved = append(resolved, c.finishLocked(OutcomeFailed, err))
		}
		c.mu.Unlock()
		c.record(resolved...)
		return
	}
	if waiting {
		c.current.dialog = dlg
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// resolved or superseded while the dialog was being shown
	c.dismiss(dlg)
}

// confirmationResult resolves cycle seq from the dialog answer
func (c *Controller) confirmationResult(seq uint64, accepted bool) {
	c.mu.Lock()
	if c.current == nil || c.current.seq != seq || c.state != AwaitingConfirmation {
		c.mu.Unlock()
		c.logger.Debug("ignoring confirmation result for resolved cycle", "cycle", seq, "accepted", accepted)
		return
	}

	c.current.dialog = nil
	var res Resolution
	if accepted {
		c.current.intent = IntentConfirmed
		res = c.commitLocked()
	} else {
		res = c.finishLocked(OutcomeCancelled, nil)
	}
	c.mu.Unlock()

	c.record(res)
}

// AbortEvent withdraws the cycle for ev without touching the flag
func (c *Controller) AbortEvent(ev *gesture.Event) {
	c.withdraw(ev, OutcomeAborted)
}

// OtherListenerHandledEvent withdraws the cycle for ev because another listener claimed it
func (c *Controller) OtherListenerHandledEvent(ev *gesture.Event) {
	c.withdraw(ev, OutcomeClaimed)
}

func (c *Controller) withdraw(ev *gesture.Event, outcome Outcome) {
	c.mu.Lock()
	if !c.tracksLocked(ev.ID) {
		c.mu.Unlock()
		c.stale(ev, string(outcome)+" for untracked gesture")
		return
	}

	dlg := c.current.dialog
	c.current.intent = IntentAborted
	c.state = Aborted
	res := c.finishLocked(outcome, nil)
	c.mu.Unlock()

	c.dismiss(dlg)
	c.record(res)
}

// ReceiveDeactivateEvent commits a cycle that is waiting for the gesture to complete.
// While a confirmation is outstanding the dialog drives resolution and this is ignored.
func (c *Controller) ReceiveDeactivateEvent(ev *gesture.Event) {
	c.mu.Lock()
	if !c.tracksLocked(ev.ID) {
		c.mu.Unlock()
		c.stale(ev, "deactivate for untracked gesture")
		return
	}
	if c.state != AwaitingDecision {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("deactivate ignored", "event", ev.ID, "state", state.String())
		return
	}

	res := c.commitLocked()
	c.mu.Unlock()

	c.record(res)
}

// commitLocked writes the target value and resolves the current cycle
func (c *Controller) commitLocked() Resolution {
	c.state = Committing
	target := c.targetLocked()

	if err := c.accessor.SetSecure(target); err != nil {
		c.logger.Error("failed to set secure flag", "secure", target, "error", err)
		return c.finishLocked(OutcomeFailed, err)
	}

	c.secure = target
	c.lastSet = time.Now()
	c.logger.Info("secure flag set", "secure", target, "event", c.current.event.ID)
	return c.finishLocked(OutcomeCommitted, nil)
}

func (c *Controller) targetLocked() bool {
	switch c.opts.Action {
	case ActionEnable:
		return true
	case ActionDisable:
		return false
	default:
		return !c.secure
	}
}

// finishLocked closes the current cycle and returns to Idle
func (c *Controller) finishLocked(outcome Outcome, err error) Resolution {
	cyc := c.current
	res := Resolution{
		EventID:    cyc.event.ID,
		Identifier: cyc.event.Identifier,
		Source:     cyc.event.Source,
		Outcome:    outcome,
		Confirmed:  cyc.intent == IntentConfirmed,
		Secure:     c.secure,
		StartedAt:  cyc.startedAt,
		ResolvedAt: time.Now(),
		Err:        err,
	}
	if cyc.event.ID != "" {
		c.recent.Add(cyc.event.ID, struct{}{})
	}
	c.current = nil
	c.state = Idle
	c.logger.Debug("gesture cycle resolved", "event", res.EventID, "outcome", outcome)
	return res
}

// seenLocked reports whether id is the active cycle or was resolved recently
func (c *Controller) seenLocked(id string) bool {
	if id == "" {
		return false
	}
	return c.tracksLocked(id) || c.recent.Contains(id)
}

func (c *Controller) tracksLocked(id string) bool {
	return c.current != nil && c.current.event.ID == id
}

func (c *Controller) stale(ev *gesture.Event, reason string) {
	c.logger.Debug("stale gesture event", "event", ev.ID, "phase", ev.Phase.String(), "reason", reason)
}

func (c *Controller) dismiss(dlg confirm.Dialog) {
	if dlg == nil {
		return
	}
	if err := dlg.Dismiss(); err != nil {
		c.logger.Debug("dismissing confirmation dialog", "error", err)
	}
}

func (c *Controller) record(resolved ...Resolution) {
	for _, res := range resolved {
		c.recorder.RecordResolution(res)
	}
}
