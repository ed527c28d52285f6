// Package confirm defines the confirmation dialog contract used before a secure flag is toggled.
package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned by Disabled when no dialog can be shown
var ErrUnavailable = errors.New("confirmation dialog unavailable")

// Prompt is the content of a confirmation dialog
type Prompt struct {
	Title       string
	Message     string
	AcceptLabel string
	CancelLabel string

	// Timeout after which the dialog counts as dismissed; zero leaves it to the presenter
	Timeout time.Duration
}

// Presenter shows a modal confirmation and reports the user's answer.
//
// onResult is invoked at most once: true for accept, false for cancel or
// dismissal. It is never invoked after Dismiss returns. ctx bounds showing
// the dialog, not waiting for the answer.
type Presenter interface {
	Present(ctx context.Context, prompt Prompt, onResult func(accepted bool)) (Dialog, error)
}

// Dialog is a handle on one presented confirmation
type Dialog interface {
	// Dismiss tears the dialog down silently, without calling onResult
	Dismiss() error
}

// PresenterFunc adapts a function to the Presenter interface
type PresenterFunc func(ctx context.Context, prompt Prompt, onResult func(bool)) (Dialog, error)

func (f PresenterFunc) Present(ctx context.Context, prompt Prompt, onResult func(bool)) (Dialog, error) {
	return f(ctx, prompt, onResult)
}

// AutoAccept answers every prompt with accept, without showing anything
type AutoAccept struct{}

func (AutoAccept) Present(ctx context.Context, prompt Prompt, onResult func(bool)) (Dialog, error) {
	go onResult(true)
	return NopDialog{}, nil
}

// Disabled refuses every prompt, so a cycle that needs confirmation fails
// without touching the secure flag
type Disabled struct {
	Reason error
}

func (d Disabled) Present(ctx context.Context, prompt Prompt, onResult func(bool)) (Dialog, error) {
	if d.Reason != nil {
		return nil, errors.Wrap(d.Reason, ErrUnavailable.Error())
	}
	return nil, ErrUnavailable
}

// NopDialog is a Dialog with nothing to tear down
type NopDialog struct{}

func (NopDialog) Dismiss() error { return nil }

// Once wraps onResult so that it fires at most once and never after cancel is called
func Once(onResult func(bool)) (fire func(bool), cancel func()) {
	var (
		mu   sync.Mutex
		done bool
	)
	fire = func(accepted bool) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		done = true
		mu.Unlock()
		onResult(accepted)
	}
	cancel = func() {
		mu.Lock()
		done = true
		mu.Unlock()
	}
	return fire, cancel
}
