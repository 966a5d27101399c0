package syncer

import (
	"errors"
	"strings"
)

// validation errors
var (
	ErrChannelRequired = errors.New("channel is required")
	ErrInvalidChannel  = errors.New("channel must be a username, not a link")
	ErrInvalidLimit    = errors.New("limit must be non-negative")
)

// SyncRequest represents a request to sync a telegram channel.
type SyncRequest struct {
	// Channel - username (with or without @).
	Channel string `json:"channel"`

	// Limit - maximum media-bearing messages to handle this run.
	// 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// Validate performs basic validation of the request
// does not check if the channel exists (that requires a network call)
func (r *SyncRequest) Validate() error {
	r.Channel = strings.TrimSpace(r.Channel)
	r.Channel = strings.TrimPrefix(r.Channel, "@")

	if r.Channel == "" {
		return ErrChannelRequired
	}
	if strings.Contains(r.Channel, "/") {
		return ErrInvalidChannel
	}
	if r.Limit < 0 {
		return ErrInvalidLimit
	}

	return nil
}

// Options converts the validated request into sync options.
func (r *SyncRequest) Options() SyncOptions {
	return SyncOptions{
		Channel: r.Channel,
		Limit:   r.Limit,
	}
}
