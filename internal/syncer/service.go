package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyplan/tg-media-sync/internal/logger"
	"github.com/studyplan/tg-media-sync/internal/repository"
	"github.com/studyplan/tg-media-sync/internal/telegram"
)

// ChannelResolver resolves channel usernames and reports client status.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	GetStatus() telegram.Status
}

// EventPublisher publishes sync lifecycle events.
type EventPublisher interface {
	PublishProgress(ctx context.Context, event ProgressEvent) error
	PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error
}

// RunCompletedEvent is emitted once per finished sync run.
type RunCompletedEvent struct {
	RunID      uuid.UUID `json:"run_id"`
	Channel    string    `json:"channel"`
	ChannelID  int64     `json:"channel_id"`
	Eligible   int       `json:"eligible"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted"`
	FinishedAt time.Time `json:"finished_at"`
}

// Service resolves a channel, runs the engine against it and records the
// run outcome. One Service serves all channels; concurrent Sync calls for
// different channels are fine, the manager keeps a channel from being
// synced twice at once.
type Service struct {
	resolver  ChannelResolver
	engine    *Engine
	runs      *repository.RunsRepository
	publisher EventPublisher
	log       *logger.Logger
}

// NewService creates a new sync service.
func NewService(
	resolver ChannelResolver,
	engine *Engine,
	runs *repository.RunsRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *Service {
	return &Service{
		resolver:  resolver,
		engine:    engine,
		runs:      runs,
		publisher: publisher,
		log:       log,
	}
}

// Sync resolves the channel and walks its history per the given options.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (*Summary, error) {
	startedAt := time.Now()

	channel, err := s.resolver.ResolveChannel(ctx, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}

	s.log.Info().
		Str("channel", opts.Channel).
		Int64("channel_id", channel.ID).
		Int("limit", opts.Limit).
		Msg("starting sync")

	sink := s.progressSink(ctx)
	summary, err := s.engine.Sync(ctx, channel, opts.Limit, sink)
	if summary != nil {
		summary.Channel = opts.Channel
		s.recordRun(opts, summary, startedAt, err)
	}
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// GetTelegramStatus returns the current telegram connection status.
func (s *Service) GetTelegramStatus() telegram.Status {
	return s.resolver.GetStatus()
}

// progressSink forwards engine progress to the publisher when one is
// configured, otherwise events go to the log.
func (s *Service) progressSink(ctx context.Context) ProgressSink {
	if s.publisher == nil {
		return &LogSink{Log: s.log}
	}
	return SinkFunc(func(event ProgressEvent) {
		if err := s.publisher.PublishProgress(ctx, event); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish progress event")
		}
	})
}

// recordRun stores the run summary and publishes the completion event.
// Both are best effort, a persistence hiccup never fails the sync itself.
func (s *Service) recordRun(opts SyncOptions, summary *Summary, startedAt time.Time, runErr error) {
	run := &repository.SyncRun{
		Channel:    opts.Channel,
		ChannelID:  summary.ChannelID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Eligible:   summary.Eligible,
		Downloaded: summary.Downloaded,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		Aborted:    summary.Aborted,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	// request contexts are gone by now, recording uses its own deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			s.log.Warn().Err(err).Str("channel", opts.Channel).Msg("failed to record sync run")
		}
	}

	if s.publisher != nil {
		event := RunCompletedEvent{
			RunID:      run.ID,
			Channel:    run.Channel,
			ChannelID:  run.ChannelID,
			Eligible:   run.Eligible,
			Downloaded: run.Downloaded,
			Skipped:    run.Skipped,
			Failed:     run.Failed,
			Aborted:    run.Aborted,
			FinishedAt: run.FinishedAt,
		}
		if err := s.publisher.PublishRunCompleted(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("channel", opts.Channel).Msg("failed to publish run event")
		}
	}
}
