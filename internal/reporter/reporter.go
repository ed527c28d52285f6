package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/internal/database"
	"github.com/actionsum/securetoggle/internal/models"
	"github.com/actionsum/securetoggle/pkg/utils"
)

// Reporter summarizes toggle history
type Reporter struct {
	repo *database.Repository
	now  func() time.Time
}

// New creates a new reporter
func New(repo *database.Repository) *Reporter {
	return &Reporter{repo: repo, now: time.Now}
}

// GenerateReport summarizes the cycles of the given period ("day", "week", "month" or "all")
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := r.Period(periodType)
	if err != nil {
		return nil, err
	}

	outcomes, err := r.repo.GetOutcomeSummarySince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get outcome summary")
	}
	sources, err := r.repo.GetSourceSummarySince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get source summary")
	}
	last, err := r.repo.GetLatestCommit()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get last toggle")
	}

	var total, commits int64
	for _, o := range outcomes {
		total += o.Count
		if o.Outcome == "committed" {
			commits = o.Count
		}
	}
	if total > 0 {
		for i := range outcomes {
			outcomes[i].Percentage = float64(outcomes[i].Count) / float64(total) * 100.0
		}
	}

	report := &models.Report{
		Period:      *period,
		Outcomes:    outcomes,
		Sources:     sources,
		TotalCycles: total,
		Commits:     commits,
		LastToggle:  last,
		GeneratedAt: r.now(),
	}
	if total > 0 {
		report.CommitRate = float64(commits) / float64(total) * 100.0
	}
	return report, nil
}

// Period calculates the time range for a report
func (r *Reporter) Period(periodType string) (*models.ReportPeriod, error) {
	now := r.now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.Add(24 * time.Hour)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	case "all":
		end = now

	default:
		return nil, errors.Errorf("invalid period type: %s (valid: day, week, month, all)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Toggle Report - %s\n", report.Period.Type)
	if !report.Period.Start.IsZero() {
		fmt.Fprintf(&b, "Period: %s to %s\n",
			report.Period.Start.Format("2006-01-02 15:04"),
			report.Period.End.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Gesture cycles: %d, committed: %d (%.0f%%)\n", report.TotalCycles, report.Commits, report.CommitRate)
	if report.LastToggle != nil {
		ago := int64(r.now().Sub(report.LastToggle.Timestamp).Seconds())
		state := "off"
		if report.LastToggle.Secure {
			state = "on"
		}
		fmt.Fprintf(&b, "Last toggle: secure %s, %s ago via %s\n", state, utils.FormatRoundedUnit(ago), report.LastToggle.Source)
	}
	b.WriteString("\n")

	if report.TotalCycles == 0 {
		b.WriteString("No gestures recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-20s %10s %10s\n", "Outcome", "Count", "Percent")
	b.WriteString(strings.Repeat("-", 42) + "\n")
	for _, o := range report.Outcomes {
		fmt.Fprintf(&b, "%-20s %10d %9.1f%%\n", o.Outcome, o.Count, o.Percentage)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%-20s %10s %10s %12s\n", "Source", "Cycles", "Commits", "Avg latency")
	b.WriteString(strings.Repeat("-", 55) + "\n")
	for _, s := range report.Sources {
		fmt.Fprintf(&b, "%-20s %10d %10d %12s\n",
			utils.Truncate(s.Source, 20),
			s.Cycles,
			s.Commits,
			utils.FormatLatency(s.AvgLatency))
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}

// FormatHistoryText lists individual records, newest last
func (r *Reporter) FormatHistoryText(records []*models.ToggleRecord) string {
	if len(records) == 0 {
		return "No gestures recorded for this period.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-19s %-12s %-11s %-6s %-8s %s\n", "Time", "Source", "Outcome", "Secure", "Latency", "Window")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%-19s %-12s %-11s %-6v %-8s %s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			utils.Truncate(rec.Source, 12),
			rec.Outcome,
			rec.Secure,
			utils.FormatLatency(rec.LatencyMs),
			utils.Truncate(rec.AppName, 20))
	}
	return b.String()
}
