package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/controller"
	"github.com/actionsum/securetoggle/internal/daemon"
	"github.com/actionsum/securetoggle/internal/logging"
	"github.com/actionsum/securetoggle/internal/service"
	"github.com/actionsum/securetoggle/internal/web"
	"github.com/actionsum/securetoggle/pkg/confirm"
	"github.com/actionsum/securetoggle/pkg/detector"
	"github.com/actionsum/securetoggle/pkg/integrations/notify"
	"github.com/actionsum/securetoggle/pkg/integrations/streamdeck"
	"github.com/actionsum/securetoggle/pkg/integrations/x11"
)

const appName = "securetoggle"

var (
	foreground bool
	servePort  int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the toggle daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startDaemon(cmd, false)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon with the web API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startDaemon(cmd, true)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the toggle daemon",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	for _, c := range []*cobra.Command{startCmd, serveCmd} {
		c.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground and log to stderr")
	}
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "web API port (overrides config)")
}

func startDaemon(cmd *cobra.Command, withWeb bool) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		if err := cfg.SetWebPort(servePort); err != nil {
			return err
		}
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return errors.Wrap(err, "failed to check daemon status")
	}
	if running {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}

	if !foreground && !daemon.IsChild() {
		pid, err := daemon.Spawn()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Daemon started successfully (PID: %d)\n", pid)
		if withWeb {
			fmt.Fprintf(out, "Web API available at: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
		}
		fmt.Fprintf(out, "Logs: %s\n", cfg.Daemon.LogFile)
		return nil
	}

	return runDaemon(loader, cfg, dm, withWeb)
}

func runDaemon(loader *config.Loader, cfg *config.Config, dm *daemon.Daemon, withWeb bool) error {
	logOpts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if daemon.IsChild() {
		logOpts.FilePath = cfg.Daemon.LogFile
	}
	lg, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer lg.Close()
	logger := lg.Logger

	db, repo, err := openRepository(cfg)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer db.Close()

	accessor := detector.NewOrMemory(cfg.Surface.Atom, logger.With("component", "surface"))
	defer accessor.Close()
	logger.Info("surface accessor initialized", "display_server", accessor.GetDisplayServer())

	presenter, closePresenter := newPresenter(cfg, logger.With("component", "notify"))
	defer closePresenter()

	if err := dm.WritePID(); err != nil {
		return err
	}
	defer dm.RemovePID()

	listenerID := appName + "-" + uuid.NewString()
	svc := service.NewService(cfg, repo, accessor, presenter, listenerID, logger)
	addSources(svc, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader.OnChange(svc.ApplyConfig)
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
	}
	defer loader.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload failed, keeping previous configuration", "error", err)
			}
		}
	}()

	var webServer *web.Server
	if withWeb {
		webServer = web.NewServer(cfg, repo, svc, 0, logger.With("component", "web"))
		go func() {
			if err := webServer.Start(); err != nil {
				logger.Error("web server error", "error", err)
				stop()
			}
		}()
	}

	logger.Info("starting securetoggle daemon", "config", loader.Path(), "web", withWeb)
	logger.Debug("configuration\n" + cfg.String())

	err = svc.Start(ctx)

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down web server", "error", err)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("daemon stopped successfully")
	return nil
}

// newPresenter connects the notification presenter even when confirmation
// is off, so a reload can turn it on. Without a session bus every
// confirmation fails and the flag stays as it is.
func newPresenter(cfg *config.Config, logger *slog.Logger) (confirm.Presenter, func()) {
	p, err := notify.NewPresenter(appName, logger)
	if err != nil {
		if cfg.Toggle.RequireConfirmation {
			logger.Warn("confirmation notifications unavailable", "error", err)
		}
		return confirm.Disabled{Reason: err}, func() {}
	}
	return p, func() { p.Close() }
}

func addSources(svc *service.Service, cfg *config.Config, logger *slog.Logger) {
	id := cfg.Broker.Identifier

	if cfg.Hotkey.Enabled {
		if detector.DetectDisplayServer() == "unknown" {
			logger.Info("no display, hotkey source skipped", "accelerator", cfg.Hotkey.Accelerator)
		} else if hk, err := x11.NewHotkey(cfg.Hotkey.Accelerator, id, logger.With("component", "hotkey")); err != nil {
			logger.Warn("invalid hotkey", "accelerator", cfg.Hotkey.Accelerator, "error", err)
		} else {
			svc.AddSource(hk)
		}
	}

	if cfg.StreamDeck.Enabled {
		state := func() (bool, bool) {
			snap := svc.Controller().Snapshot()
			return snap.Secure, snap.State != controller.Idle
		}
		deck, err := streamdeck.NewDeck(cfg.StreamDeck.Serial, cfg.StreamDeck.Key, cfg.StreamDeck.AbortAfter, id, state, logger.With("component", "streamdeck"))
		if err != nil {
			logger.Warn("stream deck source disabled", "error", err)
		} else {
			svc.AddSource(deck)
		}
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		return errors.Wrap(err, "failed to check daemon status")
	}
	out := cmd.OutOrStdout()
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Daemon stopped successfully")
	return nil
}
