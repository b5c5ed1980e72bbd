package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Campaign represents a record in the public.campaigns table
type Campaign struct {
	ID              int       `gorm:"primaryKey;column:id"`
	CampaignID      string    `gorm:"column:campaign_id;not null;uniqueIndex"`
	Workspace       string    `gorm:"column:workspace;not null"`
	ContainerRef    string    `gorm:"column:container_ref"`
	CreatedAt       time.Time `gorm:"column:created_at;default:now()"`
	StartedAt       time.Time `gorm:"column:started_at"`
	FinishedAt      time.Time `gorm:"column:finished_at"`
	DiscoveredCount int       `gorm:"column:discovered_count"`
	BuiltCount      int       `gorm:"column:built_count"`
	ExecutedCount   int       `gorm:"column:executed_count"`
	CrashCount      int       `gorm:"column:crash_count"`
	Summary         Summary   `gorm:"column:summary;type:jsonb"`
}

// CrashArtifact represents a record in the public.crash_artifacts table
type CrashArtifact struct {
	ID           int       `gorm:"primaryKey;column:id"`
	CampaignID   string    `gorm:"column:campaign_id;not null;index"`
	Fuzzer       string    `gorm:"column:fuzzer;not null"`
	Path         string    `gorm:"column:path;not null"`
	DiscoveredAt time.Time `gorm:"column:discovered_at"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
}

// Summary represents the jsonb field in the campaigns table
type Summary map[string]any

// Value implements the driver.Valuer interface for the Summary type
func (s Summary) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for the Summary type
func (s *Summary) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &s)
}
