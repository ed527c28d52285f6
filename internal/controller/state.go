package controller

import (
	"fmt"
	"time"

	"github.com/actionsum/securetoggle/pkg/confirm"
)

// State is the position of the controller in the gesture cycle
type State int

const (
	Idle State = iota
	AwaitingDecision
	AwaitingConfirmation
	Committing
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDecision:
		return "awaiting-decision"
	case AwaitingConfirmation:
		return "awaiting-confirmation"
	case Committing:
		return "committing"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Intent is the working decision of one gesture cycle
type Intent int

const (
	IntentPending Intent = iota
	IntentConfirmed
	IntentAborted
)

func (i Intent) String() string {
	switch i {
	case IntentPending:
		return "pending"
	case IntentConfirmed:
		return "confirmed"
	case IntentAborted:
		return "aborted"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Outcome records how a gesture cycle resolved
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeAborted    Outcome = "aborted"
	OutcomeClaimed    Outcome = "claimed"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "failed"
)

// Action selects the value written on commit
type Action string

const (
	ActionToggle  Action = "toggle"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// CommitOn selects which phase commits a cycle that needs no confirmation
type CommitOn string

const (
	CommitOnDeactivate CommitOn = "deactivate"
	CommitOnReceive    CommitOn = "receive"
)

// Options configure a Controller
type Options struct {
	RequireConfirmation bool
	CommitOn            CommitOn
	Action              Action
	InitialSecure       bool
	Prompt              confirm.Prompt

	// RecentEvents bounds how many resolved event IDs are remembered to drop redeliveries
	RecentEvents int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		CommitOn: CommitOnDeactivate,
		Action:   ActionToggle,
		Prompt: confirm.Prompt{
			Title:       "Secure window",
			Message:     "Toggle privacy protection for the focused window?",
			AcceptLabel: "Toggle",
			CancelLabel: "Cancel",
		},
		RecentEvents: 64,
	}
}

// Resolution describes one finished gesture cycle
type Resolution struct {
	EventID    string
	Identifier string
	Source     string
	Outcome    Outcome
	Confirmed  bool
	Secure     bool // value written on commit, otherwise the value still tracked
	StartedAt  time.Time
	ResolvedAt time.Time
	Err        error
}

// Recorder receives every resolved cycle
type Recorder interface {
	RecordResolution(res Resolution)
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(res Resolution)

func (f RecorderFunc) RecordResolution(res Resolution) { f(res) }

// Snapshot is a point-in-time view of the controller
type Snapshot struct {
	State    State     `json:"-"`
	StateStr string    `json:"state"`
	Secure   bool      `json:"secure"`
	EventID  string    `json:"event_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	LastSet  time.Time `json:"last_set,omitempty"`
}
