// Package publisher emits sync lifecycle events to NATS.
package publisher

import (
	"context"

	"github.com/studyplan/tg-media-sync/internal/syncer"
)

// subjects
const (
	SubjectProgress     = "sync.progress"
	SubjectRunCompleted = "sync.runs.completed"
)

// JetStreamClient interface to allow mocking
type JetStreamClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements syncer.EventPublisher
type NATSPublisher struct {
	js JetStreamClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(js JetStreamClient) *NATSPublisher {
	return &NATSPublisher{js: js}
}

// PublishProgress publishes one walk progress event
func (p *NATSPublisher) PublishProgress(ctx context.Context, event syncer.ProgressEvent) error {
	return p.js.Publish(ctx, SubjectProgress, event)
}

// PublishRunCompleted publishes a run completion event
func (p *NATSPublisher) PublishRunCompleted(ctx context.Context, event syncer.RunCompletedEvent) error {
	return p.js.Publish(ctx, SubjectRunCompleted, event)
}
