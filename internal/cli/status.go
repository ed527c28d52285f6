package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/daemon"
	"github.com/actionsum/securetoggle/internal/service"
	"github.com/actionsum/securetoggle/internal/web"
	"github.com/actionsum/securetoggle/pkg/detector"
	"github.com/actionsum/securetoggle/pkg/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and the foreground window's secure flag",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	running, pid, err := daemon.New(cfg.Daemon.PIDFile).IsRunning()
	if err != nil {
		return errors.Wrap(err, "failed to check daemon status")
	}

	if !running {
		fmt.Fprintln(out, "Status: Not running")
	} else {
		fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
		fmt.Fprintf(out, "Gesture: %s\n", cfg.Broker.Identifier)
		fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		if status, err := web.NewClient(fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)).Status(ctx); err == nil {
			printServiceStatus(out, status)
		}
	}

	printLastToggle(out, cfg)
	printSurface(out, cfg)
	return nil
}

func printServiceStatus(out io.Writer, status *service.Status) {
	fmt.Fprintf(out, "Controller: %s (secure: %v)\n", status.Controller.StateStr, status.Controller.Secure)
	if len(status.Sources) > 0 {
		fmt.Fprintf(out, "Sources: %v\n", status.Sources)
	}
	if status.NATS != "" {
		fmt.Fprintf(out, "NATS: %s\n", status.NATS)
	}
	if !status.StartedAt.IsZero() {
		up := int64(time.Since(status.StartedAt).Seconds())
		fmt.Fprintf(out, "Uptime: %s\n", utils.FormatRoundedUnit(up))
	}
}

func printLastToggle(out io.Writer, cfg *config.Config) {
	db, repo, err := openRepository(cfg)
	if err != nil {
		return
	}
	defer db.Close()

	last, err := repo.GetLatestCommit()
	if err != nil || last == nil {
		return
	}
	ago := int64(time.Since(last.Timestamp).Seconds())
	fmt.Fprintf(out, "\nLast toggle: secure=%v %s ago via %s", last.Secure, utils.FormatRoundedUnit(ago), last.Source)
	if last.AppName != "" {
		fmt.Fprintf(out, " (%s)", last.AppName)
	}
	fmt.Fprintln(out)
}

// printSurface reads the flag straight from the display, daemon or not
func printSurface(out io.Writer, cfg *config.Config) {
	acc, err := detector.New(cfg.Surface.Atom)
	if err != nil {
		fmt.Fprintf(out, "\nCould not read foreground window: %v\n", err)
		return
	}
	defer acc.Close()

	info, err := acc.Describe()
	if err != nil || info == nil {
		return
	}
	secure, err := acc.IsSecure()
	fmt.Fprintf(out, "\nForeground Window:\n")
	fmt.Fprintf(out, "  App: %s\n", info.AppName)
	fmt.Fprintf(out, "  Title: %s\n", utils.Truncate(info.WindowTitle, 60))
	fmt.Fprintf(out, "  Display: %s\n", info.DisplayServer)
	if err == nil {
		fmt.Fprintf(out, "  Secure: %v\n", secure)
	}
}
