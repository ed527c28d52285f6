package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/securetoggle/pkg/gesture"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// stubListener logs callbacks and optionally claims receives
type stubListener struct {
	name  string
	claim bool
	log   *callLog
}

func (s *stubListener) ReceiveEvent(ev *gesture.Event) {
	s.log.add(s.name + ":receive:" + ev.ID)
	if s.claim {
		ev.Handled = true
	}
}

func (s *stubListener) AbortEvent(ev *gesture.Event) {
	s.log.add(s.name + ":abort:" + ev.ID)
}

func (s *stubListener) OtherListenerHandledEvent(ev *gesture.Event) {
	s.log.add(s.name + ":other:" + ev.ID)
}

func (s *stubListener) ReceiveDeactivateEvent(ev *gesture.Event) {
	s.log.add(s.name + ":deactivate:" + ev.ID)
}

func TestLocalRegisterValidation(t *testing.T) {
	b := NewLocal(nil)
	l := &stubListener{log: &callLog{}}

	assert.Error(t, b.Register("", "toggle", l))
	assert.Error(t, b.Register("a", "", l))
	assert.Error(t, b.Register("a", "toggle", nil))
	require.NoError(t, b.Register("a", "toggle", l))
	assert.Error(t, b.Register("a", "toggle", l), "duplicate registration")
	require.NoError(t, b.Register("a", "other", l))

	assert.ElementsMatch(t, []string{"toggle", "other"}, b.Identifiers())
}

func TestLocalFirstClaimWins(t *testing.T) {
	log := &callLog{}
	b := NewLocal(nil)
	require.NoError(t, b.Register("first", "toggle", &stubListener{name: "first", claim: true, log: log}))
	require.NoError(t, b.Register("second", "toggle", &stubListener{name: "second", claim: true, log: log}))

	ev := &gesture.Event{ID: "e1", Identifier: "toggle", Phase: gesture.PhaseReceive}
	require.NoError(t, b.Publish(context.Background(), ev))

	assert.Equal(t, []string{"first:receive:e1", "second:other:e1"}, log.snapshot())
	assert.True(t, ev.Handled)
}

func TestLocalUnclaimedReceiveReachesNextListener(t *testing.T) {
	log := &callLog{}
	b := NewLocal(nil)
	require.NoError(t, b.Register("first", "toggle", &stubListener{name: "first", log: log}))
	require.NoError(t, b.Register("second", "toggle", &stubListener{name: "second", claim: true, log: log}))

	require.NoError(t, b.Publish(context.Background(), &gesture.Event{ID: "e1", Identifier: "toggle"}))

	assert.Equal(t, []string{"first:receive:e1", "second:receive:e1"}, log.snapshot())
}

func TestLocalNonReceivePhasesReachEveryListener(t *testing.T) {
	log := &callLog{}
	b := NewLocal(nil)
	require.NoError(t, b.Register("first", "toggle", &stubListener{name: "first", log: log}))
	require.NoError(t, b.Register("second", "toggle", &stubListener{name: "second", log: log}))
	require.NoError(t, b.Register("third", "unrelated", &stubListener{name: "third", log: log}))

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, &gesture.Event{ID: "e1", Identifier: "toggle", Phase: gesture.PhaseAbort}))
	require.NoError(t, b.Publish(ctx, &gesture.Event{ID: "e1", Identifier: "toggle", Phase: gesture.PhaseDeactivate}))

	assert.Equal(t, []string{
		"first:abort:e1", "second:abort:e1",
		"first:deactivate:e1", "second:deactivate:e1",
	}, log.snapshot())
}

func TestLocalPublishAssignsIDAndTime(t *testing.T) {
	log := &callLog{}
	b := NewLocal(nil)
	require.NoError(t, b.Register("a", "toggle", &stubListener{name: "a", log: log}))

	ev := &gesture.Event{Identifier: "toggle"}
	require.NoError(t, b.Publish(context.Background(), ev))

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Time.IsZero())
}

func TestLocalPublishWithoutListeners(t *testing.T) {
	b := NewLocal(nil)
	err := b.Publish(context.Background(), &gesture.Event{ID: "e1", Identifier: "nobody"})
	assert.True(t, errors.Is(err, ErrNoListeners))
}

func TestLocalPublishCancelledContext(t *testing.T) {
	b := NewLocal(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, &gesture.Event{Identifier: "toggle"}), context.Canceled)
}

func TestLocalUnregister(t *testing.T) {
	log := &callLog{}
	b := NewLocal(nil)
	require.NoError(t, b.Register("a", "toggle", &stubListener{name: "a", log: log}))
	require.NoError(t, b.Register("b", "toggle", &stubListener{name: "b", log: log}))

	b.Unregister("a")
	require.NoError(t, b.Publish(context.Background(), &gesture.Event{ID: "e1", Identifier: "toggle"}))

	assert.Equal(t, []string{"b:receive:e1"}, log.snapshot())
}
