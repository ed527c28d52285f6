package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/actionsum/securetoggle/internal/models"
)

// Repository handles all database operations for toggle history
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a resolved gesture cycle
func (r *Repository) Create(record *models.ToggleRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if result := r.db.Create(record); result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert toggle record")
	}
	return nil
}

// GetRecordsSince returns cycles resolved at or after since, oldest first
func (r *Repository) GetRecordsSince(since time.Time) ([]*models.ToggleRecord, error) {
	var records []*models.ToggleRecord
	result := r.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&records)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query toggle records")
	}
	return records, nil
}

// GetOutcomeSummarySince counts cycles per outcome, most frequent first
func (r *Repository) GetOutcomeSummarySince(since time.Time) ([]models.OutcomeSummary, error) {
	var summaries []models.OutcomeSummary

	result := r.db.Model(&models.ToggleRecord{}).
		Select("outcome, COUNT(*) as count").
		Where("timestamp >= ?", since).
		Group("outcome").
		Order("count DESC, outcome ASC").
		Scan(&summaries)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query outcome summary")
	}

	return summaries, nil
}

// GetSourceSummarySince aggregates cycles and commits per gesture source
func (r *Repository) GetSourceSummarySince(since time.Time) ([]models.SourceSummary, error) {
	var summaries []models.SourceSummary

	result := r.db.Model(&models.ToggleRecord{}).
		Select("source, COUNT(*) as cycles, "+
			"SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) as commits, "+
			"CAST(AVG(latency_ms) AS INTEGER) as avg_latency", "committed").
		Where("timestamp >= ?", since).
		Group("source").
		Order("cycles DESC, source ASC").
		Scan(&summaries)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query source summary")
	}

	return summaries, nil
}

// GetLatest returns the most recent record, or nil when there is none
func (r *Repository) GetLatest() (*models.ToggleRecord, error) {
	return r.latest(r.db.DB)
}

// GetLatestCommit returns the most recent committed cycle, or nil
func (r *Repository) GetLatestCommit() (*models.ToggleRecord, error) {
	return r.latest(r.db.Where("outcome = ?", "committed"))
}

func (r *Repository) latest(q *gorm.DB) (*models.ToggleRecord, error) {
	var record models.ToggleRecord
	result := q.Order("timestamp DESC").Order("id DESC").First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest toggle record")
	}
	return &record, nil
}

// DeleteOldRecords soft-deletes records older than before
func (r *Repository) DeleteOldRecords(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&models.ToggleRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old records")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	if errorLog.Timestamp.IsZero() {
		errorLog.Timestamp = time.Now()
	}
	if result := r.db.Create(errorLog); result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// GetErrorsSince returns error logs at or after since, newest first
func (r *Repository) GetErrorsSince(since time.Time, limit int) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	q := r.db.Where("timestamp >= ?", since).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if result := q.Find(&logs); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all toggle history and error logs
func (r *Repository) Clear() error {
	if result := r.db.Exec("DELETE FROM toggle_records"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear toggle records")
	}
	if result := r.db.Exec("DELETE FROM error_logs"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear error logs")
	}
	return nil
}
