package models

import (
	"time"

	"gorm.io/gorm"
)

// ToggleRecord is one resolved gesture cycle
type ToggleRecord struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"` // when the cycle resolved
	EventID       string         `gorm:"not null;index" json:"event_id"`
	Gesture       string         `gorm:"not null" json:"gesture"`
	Source        string         `gorm:"not null;index" json:"source"` // "hotkey", "streamdeck", "nats", "http", ...
	Outcome       string         `gorm:"not null;index" json:"outcome"`
	Confirmed     bool           `gorm:"not null;default:false" json:"confirmed"`
	Secure        bool           `gorm:"not null;default:false" json:"secure"`
	AppName       string         `json:"app_name,omitempty"`
	WindowTitle   string         `json:"window_title,omitempty"`
	DisplayServer string         `json:"display_server,omitempty"`
	LatencyMs     int64          `gorm:"not null;default:0" json:"latency_ms"` // receive to resolution
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

type OutcomeSummary struct {
	Outcome    string  `json:"outcome"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage,omitempty"`
}

type SourceSummary struct {
	Source     string `json:"source"`
	Cycles     int64  `json:"cycles"`
	Commits    int64  `json:"commits"`
	AvgLatency int64  `json:"avg_latency_ms"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period      ReportPeriod     `json:"period"`
	Outcomes    []OutcomeSummary `json:"outcomes"`
	Sources     []SourceSummary  `json:"sources"`
	TotalCycles int64            `json:"total_cycles"`
	Commits     int64            `json:"commits"`
	CommitRate  float64          `json:"commit_rate"`
	LastToggle  *ToggleRecord    `json:"last_toggle,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}
