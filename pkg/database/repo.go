package database

import (
	"context"
	"time"

	"fuzzforge/internal/types"

	"gorm.io/gorm"
)

// NewCampaign maps a finished campaign report onto its database row.
func NewCampaign(report *types.CampaignReport) *Campaign {
	return &Campaign{
		CampaignID:      report.ID,
		Workspace:       report.Workspace,
		ContainerRef:    report.ContainerRef,
		CreatedAt:       time.Now(),
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		DiscoveredCount: report.DiscoveredCount,
		BuiltCount:      report.BuiltCount,
		ExecutedCount:   report.ExecutedCount,
		CrashCount:      len(report.Crashes),
		Summary: Summary{
			"build_failures":   len(report.BuildFailures),
			"execution_errors": len(report.ExecutionErrors),
		},
	}
}

// SaveCampaign inserts one campaign row. A nil db means history is
// disabled and the call is a no-op.
func SaveCampaign(ctx context.Context, db *gorm.DB, campaign *Campaign) error {
	if db == nil || campaign == nil {
		return nil
	}
	return db.WithContext(ctx).Create(campaign).Error
}

// NewCrashArtifact maps one crash record onto its database row.
func NewCrashArtifact(campaignID string, record types.CrashRecord) *CrashArtifact {
	return &CrashArtifact{
		CampaignID:   campaignID,
		Fuzzer:       record.Fuzzer,
		Path:         record.Path,
		DiscoveredAt: record.DiscoveredAt,
		CreatedAt:    time.Now(),
	}
}

// AddCrashArtifacts inserts multiple crash artifact records.
func AddCrashArtifacts(ctx context.Context, db *gorm.DB, artifacts []*CrashArtifact) error {
	if db == nil || len(artifacts) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(artifacts).Error
}

// RecentCampaigns returns the latest campaign rows for one workspace,
// newest first.
func RecentCampaigns(ctx context.Context, db *gorm.DB, workspace string, limit int) ([]Campaign, error) {
	if db == nil {
		return nil, nil
	}
	var campaigns []Campaign
	err := db.WithContext(ctx).
		Where("workspace = ?", workspace).
		Order("started_at DESC").
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, err
}
