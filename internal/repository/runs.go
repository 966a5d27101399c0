// Package repository persists sync run summaries for later inspection.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRun is one completed (or aborted) sync invocation for a channel.
type SyncRun struct {
	ID         uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	Channel    string    `json:"channel"`
	ChannelID  int64     `json:"channel_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Eligible   int       `json:"eligible"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted"`
	Error      string    `json:"error,omitempty"`
}

// BeforeCreate assigns an id when none is set.
func (r *SyncRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RunsRepository handles sync_runs table operations.
type RunsRepository struct {
	db *gorm.DB
}

// NewRunsRepository creates the repository and migrates its schema.
func NewRunsRepository(db *gorm.DB) (*RunsRepository, error) {
	if err := db.AutoMigrate(&SyncRun{}); err != nil {
		return nil, fmt.Errorf("migrate sync_runs: %w", err)
	}
	return &RunsRepository{db: db}, nil
}

// Create stores a completed run.
func (r *RunsRepository) Create(ctx context.Context, run *SyncRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (r *RunsRepository) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

// ByChannel returns runs for one channel, newest first.
func (r *RunsRepository) ByChannel(ctx context.Context, channel string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []SyncRun
	err := r.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync runs for %s: %w", channel, err)
	}
	return runs, nil
}
