package gesture

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Phase is the lifecycle tag of a delivered gesture event
type Phase int

const (
	// PhaseReceive means the gesture began or was recognized
	PhaseReceive Phase = iota
	// PhaseAbort means the gesture was cancelled before it completed
	PhaseAbort
	// PhaseOtherListenerHandled means a different listener claimed the gesture first
	PhaseOtherListenerHandled
	// PhaseDeactivate means the physical trigger was released
	PhaseDeactivate
)

var phaseNames = map[Phase]string{
	PhaseReceive:              "receive",
	PhaseAbort:                "abort",
	PhaseOtherListenerHandled: "other-handled",
	PhaseDeactivate:           "deactivate",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ParsePhase converts the wire name of a phase back to a Phase
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	switch s {
	case "begin", "began", "press":
		return PhaseReceive, nil
	case "release", "end":
		return PhaseDeactivate, nil
	case "cancel":
		return PhaseAbort, nil
	}
	return 0, fmt.Errorf("unknown gesture phase: %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Event is one occurrence of a recognized gesture.
// ID is assigned by whoever publishes the gesture and is only compared for equality.
type Event struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Phase      Phase     `json:"phase"`
	Source     string    `json:"source"`
	Time       time.Time `json:"time"`

	// Handled is set by the listener that claims a receive.
	Handled bool `json:"-"`
}

// WithPhase returns a copy of the event carrying another lifecycle phase
func (e Event) WithPhase(p Phase) *Event {
	e.Phase = p
	e.Handled = false
	e.Time = time.Now()
	return &e
}

func (e *Event) String() string {
	return fmt.Sprintf("%s[%s %s via %s]", e.Identifier, e.ID, e.Phase, e.Source)
}

// Listener reacts to gesture lifecycle callbacks delivered by a Broker
type Listener interface {
	ReceiveEvent(ev *Event)
	AbortEvent(ev *Event)
	OtherListenerHandledEvent(ev *Event)
	ReceiveDeactivateEvent(ev *Event)
}

// Broker dispatches gesture events to listeners keyed by gesture identifier
type Broker interface {
	// Register subscribes a listener to one named gesture
	Register(listenerID, identifier string, l Listener) error

	// Unregister removes every subscription held by listenerID
	Unregister(listenerID string)
}

// Publisher is what gesture sources push events into
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// Deliver invokes the callback of l that matches the event phase
func Deliver(l Listener, ev *Event) {
	switch ev.Phase {
	case PhaseReceive:
		l.ReceiveEvent(ev)
	case PhaseAbort:
		l.AbortEvent(ev)
	case PhaseOtherListenerHandled:
		l.OtherListenerHandledEvent(ev)
	case PhaseDeactivate:
		l.ReceiveDeactivateEvent(ev)
	}
}
