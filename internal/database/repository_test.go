package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/securetoggle/internal/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func record(at time.Time, source, outcome string, latency int64) *models.ToggleRecord {
	return &models.ToggleRecord{
		Timestamp: at,
		EventID:   "g-" + outcome + source,
		Gesture:   "securetoggle.toggle",
		Source:    source,
		Outcome:   outcome,
		Secure:    outcome == "committed",
		LatencyMs: latency,
	}
}

func TestRepositoryCreateAndQuery(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	require.NoError(t, repo.Create(record(now.Add(-48*time.Hour), "hotkey", "committed", 100)))
	require.NoError(t, repo.Create(record(now.Add(-2*time.Hour), "hotkey", "committed", 200)))
	require.NoError(t, repo.Create(record(now.Add(-time.Hour), "nats", "aborted", 50)))
	require.NoError(t, repo.Create(record(now.Add(-30*time.Minute), "hotkey", "cancelled", 400)))

	records, err := repo.GetRecordsSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "committed", records[0].Outcome, "oldest first")
	assert.Equal(t, "cancelled", records[2].Outcome)
}

func TestRepositoryOutcomeSummary(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	require.NoError(t, repo.Create(record(now, "hotkey", "committed", 0)))
	require.NoError(t, repo.Create(record(now, "hotkey", "committed", 0)))
	require.NoError(t, repo.Create(record(now, "nats", "aborted", 0)))

	summary, err := repo.GetOutcomeSummarySince(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "committed", summary[0].Outcome)
	assert.Equal(t, int64(2), summary[0].Count)
	assert.Equal(t, "aborted", summary[1].Outcome)
	assert.Equal(t, int64(1), summary[1].Count)
}

func TestRepositorySourceSummary(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	require.NoError(t, repo.Create(record(now, "hotkey", "committed", 100)))
	require.NoError(t, repo.Create(record(now, "hotkey", "cancelled", 300)))
	require.NoError(t, repo.Create(record(now, "streamdeck", "committed", 50)))

	summary, err := repo.GetSourceSummarySince(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, "hotkey", summary[0].Source)
	assert.Equal(t, int64(2), summary[0].Cycles)
	assert.Equal(t, int64(1), summary[0].Commits)
	assert.Equal(t, int64(200), summary[0].AvgLatency)

	assert.Equal(t, "streamdeck", summary[1].Source)
	assert.Equal(t, int64(1), summary[1].Commits)
}

func TestRepositoryLatest(t *testing.T) {
	repo := newTestRepository(t)

	latest, err := repo.GetLatest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	now := time.Now()
	require.NoError(t, repo.Create(record(now.Add(-time.Minute), "hotkey", "committed", 0)))
	require.NoError(t, repo.Create(record(now, "hotkey", "aborted", 0)))

	latest, err = repo.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "aborted", latest.Outcome)

	commit, err := repo.GetLatestCommit()
	require.NoError(t, err)
	require.NotNil(t, commit)
	assert.Equal(t, "committed", commit.Outcome)
}

func TestRepositoryErrorLogsAndClear(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	require.NoError(t, repo.Create(record(now, "hotkey", "failed", 0)))
	require.NoError(t, repo.CreateErrorLog(&models.ErrorLog{Component: "surface", ErrorMsg: "no focused window"}))

	logs, err := repo.GetErrorsSince(now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "surface", logs[0].Component)

	require.NoError(t, repo.Clear())

	records, err := repo.GetRecordsSince(time.Time{})
	require.NoError(t, err)
	assert.Empty(t, records)

	logs, err = repo.GetErrorsSince(time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRepositoryDeleteOldRecords(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	require.NoError(t, repo.Create(record(now.Add(-72*time.Hour), "hotkey", "committed", 0)))
	require.NoError(t, repo.Create(record(now, "hotkey", "committed", 0)))

	deleted, err := repo.DeleteOldRecords(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := repo.GetRecordsSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
