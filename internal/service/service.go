// Package service assembles the daemon: broker, toggle controller, gesture
// sources and the history store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/internal/broker"
	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/controller"
	"github.com/actionsum/securetoggle/internal/database"
	"github.com/actionsum/securetoggle/internal/models"
	"github.com/actionsum/securetoggle/pkg/confirm"
	"github.com/actionsum/securetoggle/pkg/gesture"
	"github.com/actionsum/securetoggle/pkg/surface"
)

// Status is what `securetoggle status` and /api/status report
type Status struct {
	Running       bool                `json:"running"`
	ListenerID    string              `json:"listener_id"`
	Gesture       string              `json:"gesture"`
	Controller    controller.Snapshot `json:"controller"`
	Window        *surface.Info       `json:"window,omitempty"`
	DisplayServer string              `json:"display_server"`
	Sources       []string            `json:"sources"`
	NATS          string              `json:"nats,omitempty"`
	StartedAt     time.Time           `json:"started_at,omitempty"`
}

type Service struct {
	config     *config.Config
	repo       *database.Repository
	accessor   surface.Accessor
	broker     *broker.Local
	controller *controller.Controller
	listenerID string
	logger     *slog.Logger

	mu        sync.Mutex
	sources   []gesture.Source
	bridge    *broker.NATSBridge
	running   bool
	stopChan  chan struct{}
	startedAt time.Time
	wg        sync.WaitGroup
}

// NewService wires a controller for cfg.Broker.Identifier into a fresh local broker.
// Every resolved cycle is stored through repo.
func NewService(cfg *config.Config, repo *database.Repository, accessor surface.Accessor, presenter confirm.Presenter, listenerID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		config:     cfg,
		repo:       repo,
		accessor:   accessor,
		broker:     broker.NewLocal(logger.With("component", "broker")),
		listenerID: listenerID,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
	s.controller = controller.New(accessor, presenter, ControllerOptions(cfg), controller.RecorderFunc(s.recordResolution), logger.With("component", "controller"))
	return s
}

// ControllerOptions maps the toggle and notify sections onto controller options
func ControllerOptions(cfg *config.Config) controller.Options {
	return controller.Options{
		RequireConfirmation: cfg.Toggle.RequireConfirmation,
		CommitOn:            controller.CommitOn(cfg.Toggle.CommitOn),
		Action:              controller.Action(cfg.Toggle.Action),
		InitialSecure:       cfg.Toggle.InitialSecure,
		RecentEvents:        cfg.Toggle.RecentEvents,
		Prompt: confirm.Prompt{
			Title:       cfg.Notify.Title,
			Message:     cfg.Notify.Message,
			AcceptLabel: cfg.Notify.AcceptLabel,
			CancelLabel: cfg.Notify.CancelLabel,
			Timeout:     cfg.Notify.Timeout,
		},
	}
}

// AddSource registers a gesture source; sources added before Start run with the service
func (s *Service) AddSource(src gesture.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, src)
}

// Broker exposes the local broker so other listeners can register alongside the controller
func (s *Service) Broker() *broker.Local {
	return s.broker
}

func (s *Service) Controller() *controller.Controller {
	return s.controller
}

// Start registers the controller, starts the NATS bridge and every source,
// then blocks until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("service is already running")
	}
	s.running = true
	s.startedAt = time.Now()
	// a fresh channel per run so a stopped service can be started again
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	sources := append([]gesture.Source(nil), s.sources...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	identifier := s.config.Broker.Identifier
	if err := s.broker.Register(s.listenerID, identifier, s.controller); err != nil {
		return errors.Wrap(err, "failed to register toggle controller")
	}
	defer s.broker.Unregister(s.listenerID)

	if s.config.Toggle.SyncFromSurface {
		if err := s.controller.SyncFromSurface(); err != nil {
			s.storeError("surface", "", errors.Wrap(err, "failed to read secure flag"))
		}
	}

	if url := s.config.Broker.NATSURL; url != "" {
		bridge, err := s.startBridge(url, identifier)
		if err != nil {
			return err
		}
		defer bridge.Close()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	for _, src := range sources {
		s.runSource(runCtx, src)
	}

	s.logger.Info("securetoggle started",
		"listener", s.listenerID,
		"gesture", identifier,
		"display_server", s.accessor.GetDisplayServer(),
		"sources", len(sources),
		"confirmation", s.config.Toggle.RequireConfirmation)

	select {
	case <-ctx.Done():
		s.logger.Info("service stopped by context")
		return ctx.Err()
	case <-stop:
		s.logger.Info("service stopped")
		return nil
	}
}

func (s *Service) startBridge(url, identifier string) (*broker.NATSBridge, error) {
	logger := s.logger.With("component", "nats")
	bridge, err := broker.NewNATSBridge(url, s.config.Broker.SubjectPrefix, s.broker, logger,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := bridge.Bind(identifier); err != nil {
		bridge.Close()
		return nil, err
	}

	s.mu.Lock()
	s.bridge = bridge
	s.mu.Unlock()
	return bridge, nil
}

func (s *Service) runSource(ctx context.Context, src gesture.Source) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("gesture source started", "source", src.Name())
		if err := src.Run(ctx, s.broker); err != nil && !errors.Is(err, context.Canceled) {
			s.storeError(src.Name(), "", errors.Wrapf(err, "gesture source %s stopped", src.Name()))
		}
	}()
}

// Stop ends the current Start; it is safe to call more than once.
// Calling Stop before Start has no effect on the later run.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Publish injects a gesture event into the local broker
func (s *Service) Publish(ctx context.Context, ev *gesture.Event) error {
	if ev.Identifier == "" {
		ev.Identifier = s.config.Broker.Identifier
	}
	return s.broker.Publish(ctx, ev)
}

// ApplyConfig pushes reloaded toggle settings into the controller
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.controller.SetOptions(ControllerOptions(cfg))
	s.logger.Info("configuration reloaded",
		"confirmation", cfg.Toggle.RequireConfirmation,
		"commit_on", cfg.Toggle.CommitOn,
		"action", cfg.Toggle.Action)
}

func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:       s.running,
		ListenerID:    s.listenerID,
		Gesture:       s.config.Broker.Identifier,
		DisplayServer: s.accessor.GetDisplayServer(),
		StartedAt:     s.startedAt,
	}
	for _, src := range s.sources {
		st.Sources = append(st.Sources, src.Name())
	}
	if s.bridge != nil {
		st.NATS = s.config.Broker.NATSURL
	}
	s.mu.Unlock()

	st.Controller = s.controller.Snapshot()
	if info, err := s.accessor.Describe(); err == nil {
		st.Window = info
	}
	return st
}

func (s *Service) recordResolution(res controller.Resolution) {
	s.logger.Info("gesture resolved",
		"event", res.EventID,
		"source", res.Source,
		"outcome", string(res.Outcome),
		"secure", res.Secure)

	record := &models.ToggleRecord{
		Timestamp:     res.ResolvedAt,
		EventID:       res.EventID,
		Gesture:       res.Identifier,
		Source:        res.Source,
		Outcome:       string(res.Outcome),
		Confirmed:     res.Confirmed,
		Secure:        res.Secure,
		DisplayServer: s.accessor.GetDisplayServer(),
	}
	if !res.StartedAt.IsZero() {
		record.LatencyMs = res.ResolvedAt.Sub(res.StartedAt).Milliseconds()
	}
	if res.Outcome == controller.OutcomeCommitted {
		if info, err := s.accessor.Describe(); err == nil && info != nil {
			record.AppName = info.AppName
			record.WindowTitle = info.WindowTitle
		}
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
		s.storeError("controller", res.EventID, res.Err)
	}

	if err := s.repo.Create(record); err != nil {
		s.logger.Error("failed to store toggle record", "event", res.EventID, "error", err)
	}
}

func (s *Service) storeError(component, eventID string, err error) {
	errorLog := &models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		EventID:   eventID,
		ErrorMsg:  err.Error(),
	}

	if dbErr := s.repo.CreateErrorLog(errorLog); dbErr != nil {
		s.logger.Error("failed to store error in database", "error", dbErr, "original_error", err)
	} else {
		s.logger.Warn(fmt.Sprintf("%s error logged to database", component), "error", err)
	}
}
