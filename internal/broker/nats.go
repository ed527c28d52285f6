package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/pkg/gesture"
)

// DefaultSubjectPrefix is the first token of every gesture subject.
// Subjects look like <prefix>.<identifier>.<phase>.
const DefaultSubjectPrefix = "gesture"

// Subject returns the NATS subject carrying the given phase of a gesture
func Subject(prefix, identifier string, phase gesture.Phase) string {
	return prefix + "." + identifier + "." + phase.String()
}

// phaseFromSubject parses the trailing phase token of a gesture subject
func phaseFromSubject(subject string) (gesture.Phase, error) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return 0, errors.Errorf("subject %q has no phase token", subject)
	}
	return gesture.ParsePhase(subject[idx+1:])
}

// NATSBridge subscribes to gesture subjects and forwards decoded events to a local publisher
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	target gesture.Publisher
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSBridge connects with automatic reconnection support.
// Extra nats.Option values (e.g. disconnect/reconnect handlers) can be appended.
func NewNATSBridge(url, prefix string, target gesture.Publisher, logger *slog.Logger, opts ...nats.Option) (*NATSBridge, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	defaults := []nats.Option{
		nats.Name("securetoggle"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", url)
	}

	return &NATSBridge{conn: nc, prefix: prefix, target: target, logger: logger}, nil
}

// Bind forwards every phase of the named gesture
func (b *NATSBridge) Bind(identifier string) error {
	subject := b.prefix + "." + identifier + ".*"

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := decodeMessage(msg.Subject, msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed gesture message", "subject", msg.Subject, "error", err)
			return
		}
		if ev.Identifier == "" {
			ev.Identifier = identifier
		}
		if err := b.target.Publish(context.Background(), ev); err != nil {
			b.logger.Debug("gesture not delivered", "event", ev.String(), "error", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", subject)
	}
	// Flush ensures the subscription is registered on the server before
	// returning, so that gestures published on other connections are routed.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return errors.Wrap(err, "flushing subscription")
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Info("listening for gestures on NATS", "subject", subject)
	return nil
}

func (b *NATSBridge) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

// decodeMessage builds an event from a gesture message. The subject decides
// the phase; an empty payload is allowed and yields an event without an ID.
func decodeMessage(subject string, data []byte) (*gesture.Event, error) {
	phase, err := phaseFromSubject(subject)
	if err != nil {
		return nil, err
	}

	ev := &gesture.Event{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, errors.Wrap(err, "decoding gesture payload")
		}
	}
	ev.Phase = phase
	if ev.Source == "" {
		ev.Source = "nats"
	}
	return ev, nil
}

// NATSPublisher publishes gesture events to NATS subjects
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ gesture.Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := nats.Connect(url, nats.Name("securetoggle-trigger"))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", url)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev *gesture.Event) error {
	if ev.Identifier == "" {
		return errors.New("gesture identifier is required")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshaling gesture event")
	}
	if err := p.conn.Publish(Subject(p.prefix, ev.Identifier, ev.Phase), data); err != nil {
		return errors.Wrap(err, "publishing gesture event")
	}
	if _, ok := ctx.Deadline(); !ok {
		return p.conn.FlushTimeout(5 * time.Second)
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
