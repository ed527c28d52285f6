package streamdeck

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/actionsum/securetoggle/pkg/gesture"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []gesture.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev *gesture.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("g-%d", len(p.events)+1)
	}
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) phases() []gesture.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []gesture.Phase
	for _, ev := range p.events {
		out = append(out, ev.Phase)
	}
	return out
}

func TestHoldPressShortPress(t *testing.T) {
	pub := &recordingPublisher{}
	h := newHoldPress(gesture.NewPress(pub, "securetoggle.toggle", "streamdeck"), time.Second, nil)

	if err := h.Hold(context.Background(), func() {}); err != nil {
		t.Fatalf("Hold() error: %v", err)
	}

	got := pub.phases()
	want := []gesture.Phase{gesture.PhaseReceive, gesture.PhaseDeactivate}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	if pub.events[0].ID != pub.events[1].ID {
		t.Errorf("deactivate ID %q does not match receive ID %q", pub.events[1].ID, pub.events[0].ID)
	}
	if pub.events[0].Source != "streamdeck" {
		t.Errorf("source = %q, want streamdeck", pub.events[0].Source)
	}
}

func TestHoldPressLongHoldAborts(t *testing.T) {
	pub := &recordingPublisher{}
	h := newHoldPress(gesture.NewPress(pub, "securetoggle.toggle", "streamdeck"), 10*time.Millisecond, nil)

	release := func() {
		deadline := time.Now().Add(2 * time.Second)
		for len(pub.phases()) < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if err := h.Hold(context.Background(), release); err != nil {
		t.Fatalf("Hold() error: %v", err)
	}

	got := pub.phases()
	want := []gesture.Phase{gesture.PhaseReceive, gesture.PhaseAbort}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("phases = %v, want %v (no deactivate after abort)", got, want)
	}
}

func TestHoldPressWithoutAbortTimer(t *testing.T) {
	pub := &recordingPublisher{}
	h := newHoldPress(gesture.NewPress(pub, "securetoggle.toggle", "streamdeck"), 0, nil)

	if err := h.Hold(context.Background(), func() { time.Sleep(20 * time.Millisecond) }); err != nil {
		t.Fatalf("Hold() error: %v", err)
	}

	got := pub.phases()
	want := []gesture.Phase{gesture.PhaseReceive, gesture.PhaseDeactivate}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
}
