package syncer

import "github.com/studyplan/tg-media-sync/internal/logger"

// ProgressEvent is one structured progress record emitted while a sync
// walks a channel. Events arrive in processing order (newest message first).
type ProgressEvent struct {
	Channel   string `json:"channel"`
	MessageID int    `json:"message_id"`
	Processed int    `json:"processed"` // units resolved so far in this run
	Total     int    `json:"total"`     // known upper bound of units this run
	Status    string `json:"status"`    // human-readable status text
	File      string `json:"file,omitempty"`
}

// ProgressSink receives progress events from a running sync.
type ProgressSink interface {
	Progress(event ProgressEvent)
}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(event ProgressEvent)

// Progress implements ProgressSink.
func (f SinkFunc) Progress(event ProgressEvent) {
	if f != nil {
		f(event)
	}
}

// LogSink writes progress events to the structured log. Used when no event
// publisher is configured.
type LogSink struct {
	Log *logger.Logger
}

// Progress implements ProgressSink.
func (s *LogSink) Progress(event ProgressEvent) {
	s.Log.Info().
		Str("channel", event.Channel).
		Int("message_id", event.MessageID).
		Int("processed", event.Processed).
		Int("total", event.Total).
		Str("file", event.File).
		Msg(event.Status)
}
