// Package cli implements the securetoggle commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/database"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "securetoggle",
	Short: "Toggle the privacy flag of the foreground window with a gesture",
	Long: `securetoggle listens for a named gesture (a global hotkey, a Stream Deck
key, a NATS subject or an HTTP request) and switches the secure flag of the
foreground window, optionally after a confirmation notification.`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion is called from main with values stamped by the linker
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/securetoggle/config.toml)")

	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

func openRepository(cfg *config.Config) (*database.DB, *database.Repository, error) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, database.NewRepository(db), nil
}
