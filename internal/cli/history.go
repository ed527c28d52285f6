package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/actionsum/securetoggle/internal/reporter"
)

var (
	jsonOutput   bool
	historyLimit int
	assumeYes    bool
	olderThan    time.Duration
)

var historyCmd = &cobra.Command{
	Use:       "history [period]",
	Short:     "List recorded gesture cycles (period: day, week, month, all)",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"day", "week", "month", "all"},
	RunE:      runHistory,
}

var reportCmd = &cobra.Command{
	Use:       "report [period]",
	Short:     "Summarize gesture outcomes and sources (period: day, week, month, all)",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"day", "week", "month", "all"},
	RunE:      runReport,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded gesture history",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "show at most n records")
	reportCmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	clearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	clearCmd.Flags().DurationVar(&olderThan, "older-than", 0, "only delete records older than this (e.g. 720h)")
}

func periodArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "day"
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rep := reporter.New(repo)
	period, err := rep.Period(periodArg(args))
	if err != nil {
		return err
	}
	records, err := repo.GetRecordsSince(period.Start)
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal JSON")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprint(out, rep.FormatHistoryText(records))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rep := reporter.New(repo)
	report, err := rep.GenerateReport(periodArg(args))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		s, err := rep.FormatReportJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
		return nil
	}
	fmt.Fprintln(out, rep.FormatReportText(report))
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !assumeYes {
		if f, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return errors.New("stdin is not a terminal, pass --yes to clear")
		}
		what := "all gesture history"
		if olderThan > 0 {
			what = fmt.Sprintf("gesture history older than %s", olderThan)
		}
		fmt.Fprintf(out, "This will delete %s. Are you sure? (yes/no): ", what)
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "yes" && response != "y" {
			fmt.Fprintln(out, "Operation cancelled")
			return nil
		}
	}

	db, repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if olderThan > 0 {
		n, err := repo.DeleteOldRecords(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d records\n", n)
		return nil
	}

	if err := repo.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Database cleared successfully")
	return nil
}
