package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyplan/tg-media-sync/internal/telegram"
)

// errors
var (
	ErrChannelBusy = errors.New("a sync for this channel is already running")
)

// SyncOptions holds options for one sync run.
type SyncOptions struct {
	// Channel username, without @.
	Channel string
	// Limit caps media-bearing messages handled this run. 0 means no cap.
	Limit int
}

// SyncJob represents an active sync run for one channel.
type SyncJob struct {
	ID        uuid.UUID
	Channel   string
	StartedAt time.Time
	Options   SyncOptions
}

// Syncer defines the interface for the sync logic.
type Syncer interface {
	Sync(ctx context.Context, opts SyncOptions) (*Summary, error)
	GetTelegramStatus() telegram.Status
}

// SyncManager tracks active sync jobs, at most one per channel.
// thread-safe
type SyncManager struct {
	mu     sync.Mutex
	jobs   map[string]*SyncJob
	cancel map[string]context.CancelFunc
	syncer Syncer
}

// NewSyncManager creates a new sync manager.
func NewSyncManager(syncer Syncer) *SyncManager {
	return &SyncManager{
		jobs:   make(map[string]*SyncJob),
		cancel: make(map[string]context.CancelFunc),
		syncer: syncer,
	}
}

// Start launches a sync job for a channel in the background.
// Returns ErrChannelBusy when the channel already has a running job.
func (m *SyncManager) Start(_ context.Context, opts SyncOptions) (*SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.jobs[opts.Channel]; running {
		return nil, ErrChannelBusy
	}

	// IMPORTANT: use a background context, not the HTTP request context.
	// The request context dies with the handler and would cancel the
	// walk mid-run.
	jobCtx, cancel := context.WithCancel(context.Background())

	job := &SyncJob{
		ID:        uuid.New(),
		Channel:   opts.Channel,
		StartedAt: time.Now(),
		Options:   opts,
	}
	m.jobs[opts.Channel] = job
	m.cancel[opts.Channel] = cancel

	go m.run(jobCtx, job)

	return job, nil
}

// Stop cancels the running job for a channel. The engine finishes its
// current unit and checkpoints before exiting. Safe to call when no job
// is running; reports whether a job was found.
func (m *SyncManager) Stop(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.cancel[channel]
	if !ok {
		return false
	}
	cancel()
	return true
}

// StopAll cancels every running job. Used on shutdown.
func (m *SyncManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cancel := range m.cancel {
		cancel()
	}
}

// Running returns a snapshot of the active jobs, ordered by channel.
func (m *SyncManager) Running() []*SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*SyncJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Channel < jobs[j].Channel })
	return jobs
}

// GetTelegramStatus returns the current telegram connection status.
func (m *SyncManager) GetTelegramStatus() telegram.Status {
	if m.syncer == nil {
		return telegram.StatusError
	}
	return m.syncer.GetTelegramStatus()
}

// run executes the sync job and clears the slot when it finishes.
func (m *SyncManager) run(ctx context.Context, job *SyncJob) {
	defer func() {
		m.mu.Lock()
		if current, ok := m.jobs[job.Channel]; ok && current.ID == job.ID {
			delete(m.jobs, job.Channel)
			delete(m.cancel, job.Channel)
		}
		m.mu.Unlock()
	}()

	if m.syncer != nil {
		// errors are logged and recorded inside the service
		_, _ = m.syncer.Sync(ctx, job.Options)
	}
}
