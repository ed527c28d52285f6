package gesture

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if ev.ID == "" {
		ev.ID = "assigned"
	}
	p.events = append(p.events, *ev)
	return nil
}

func TestPressCarriesReceiveID(t *testing.T) {
	pub := &recordingPublisher{}
	press := NewPress(pub, "toggle", "hotkey")
	ctx := context.Background()

	ev, err := press.Begin(ctx, "")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if ev.ID != "assigned" {
		t.Errorf("expected publisher-assigned ID, got %q", ev.ID)
	}
	if !press.Active() {
		t.Error("press should be active after Begin")
	}

	if err := press.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if press.Active() {
		t.Error("press should be closed after End")
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	end := pub.events[1]
	if end.Phase != PhaseDeactivate || end.ID != "assigned" || end.Source != "hotkey" || end.Identifier != "toggle" {
		t.Errorf("unexpected deactivate event: %+v", end)
	}
}

func TestPressAbort(t *testing.T) {
	pub := &recordingPublisher{}
	press := NewPress(pub, "toggle", "streamdeck")
	ctx := context.Background()

	if _, err := press.Begin(ctx, "g-1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := press.Abort(ctx); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	// nothing open, so End is a no-op
	if err := press.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	if pub.events[1].Phase != PhaseAbort || pub.events[1].ID != "g-1" {
		t.Errorf("unexpected abort event: %+v", pub.events[1])
	}
}

func TestPressBeginFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no listeners")}
	press := NewPress(pub, "toggle", "hotkey")

	if _, err := press.Begin(context.Background(), ""); err == nil {
		t.Fatal("expected Begin to fail")
	}
	if press.Active() {
		t.Error("failed Begin must not leave a press open")
	}
}
