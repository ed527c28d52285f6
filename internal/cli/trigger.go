package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/actionsum/securetoggle/internal/broker"
	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/idgen"
	"github.com/actionsum/securetoggle/internal/web"
	"github.com/actionsum/securetoggle/pkg/gesture"
)

var triggerOpts struct {
	id      string
	gesture string
	natsURL string
	addr    string
	source  string
	hold    time.Duration
}

var triggerCmd = &cobra.Command{
	Use:   "trigger [press|receive|deactivate|abort]",
	Short: "Send a gesture to the daemon over NATS or the web API",
	Long: `Send a gesture to the daemon. "press" (the default) sends a receive and
its deactivate with the same ID. Single phases other than receive need --id.

NATS is used when --nats or broker.nats_url is set, otherwise the web API of
"securetoggle serve".`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"press", "receive", "deactivate", "abort"},
	RunE:      runTrigger,
}

func init() {
	f := triggerCmd.Flags()
	f.StringVar(&triggerOpts.id, "id", "", "event ID (generated when empty)")
	f.StringVarP(&triggerOpts.gesture, "gesture", "g", "", "gesture identifier (default broker.identifier)")
	f.StringVar(&triggerOpts.natsURL, "nats", "", "NATS server URL")
	f.StringVar(&triggerOpts.addr, "addr", "", "web API address host:port")
	f.StringVar(&triggerOpts.source, "source", "cli", "source name recorded with the gesture")
	f.DurationVar(&triggerOpts.hold, "hold", 0, "time between receive and deactivate of a press")
}

type closablePublisher interface {
	gesture.Publisher
	Close() error
}

type nopCloser struct {
	gesture.Publisher
}

func (nopCloser) Close() error { return nil }

// triggerPublisher picks the transport; over NATS the IDs are chosen here
// because nothing on the way assigns them
func triggerPublisher(cfg *config.Config) (closablePublisher, bool, error) {
	url := triggerOpts.natsURL
	if url == "" && triggerOpts.addr == "" {
		url = cfg.Broker.NATSURL
	}
	if url != "" {
		pub, err := broker.NewNATSPublisher(url, cfg.Broker.SubjectPrefix)
		if err != nil {
			return nil, false, err
		}
		return pub, true, nil
	}

	addr := triggerOpts.addr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	return nopCloser{web.NewClient(addr)}, false, nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	phaseName := "press"
	if len(args) > 0 {
		phaseName = args[0]
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	identifier := triggerOpts.gesture
	if identifier == "" {
		identifier = cfg.Broker.Identifier
	}

	pub, needsID, err := triggerPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	id := triggerOpts.id
	if id == "" && needsID {
		if id, err = idgen.Generate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second+triggerOpts.hold)
	defer cancel()
	out := cmd.OutOrStdout()

	if phaseName == "press" {
		press := gesture.NewPress(pub, identifier, triggerOpts.source)
		ev, err := press.Begin(ctx, id)
		if err != nil {
			return err
		}
		if triggerOpts.hold > 0 {
			time.Sleep(triggerOpts.hold)
		}
		if err := press.End(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Sent press %s for %s\n", ev.ID, identifier)
		return nil
	}

	phase, err := gesture.ParsePhase(phaseName)
	if err != nil {
		return err
	}
	if phase == gesture.PhaseOtherListenerHandled {
		return fmt.Errorf("%s is produced by the broker and cannot be sent", phase)
	}
	if phase != gesture.PhaseReceive && id == "" {
		return fmt.Errorf("%s needs --id of its receive", phase)
	}

	ev := &gesture.Event{
		ID:         id,
		Identifier: identifier,
		Phase:      phase,
		Source:     triggerOpts.source,
		Time:       time.Now(),
	}
	if err := pub.Publish(ctx, ev); err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent %s %s for %s\n", phase, ev.ID, identifier)
	return nil
}
