// Package checkpoint persists per-channel sync progress as one JSON file per
// channel, written atomically so a crash never leaves a torn record.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/studyplan/tg-media-sync/internal/logger"
)

// Record is the durable progress ledger for one channel.
//
// LastMessageID is the highest message id for which all work is confirmed
// resolved. A group id enters ProcessedGroups only after every member's media
// has been written. FailedGroups counts consecutive runs in which a group
// failed; once the count reaches the quarantine ceiling the group moves to
// QuarantinedGroups and is skipped permanently.
// When a walk is interrupted (crash, cancel, limit) the in-progress segment
// is kept: RunTop is the newest id the walk started from, Frontier the oldest
// id reached so far, MinFailed the lowest id of any failed unit in the
// segment (0 = none). The next run finishes the segment before the floor may
// advance, so the floor never claims unresolved work.
type Record struct {
	LastMessageID     int             `json:"last_message_id"`
	RunTop            int             `json:"run_top,omitempty"`
	Frontier          int             `json:"frontier,omitempty"`
	MinFailed         int             `json:"min_failed,omitempty"`
	ProcessedGroups   map[string]bool `json:"-"`
	FailedGroups      map[string]int  `json:"failed_groups,omitempty"`
	QuarantinedGroups map[string]bool `json:"-"`
}

// recordJSON is the wire layout: group sets serialize as sorted arrays.
type recordJSON struct {
	LastMessageID     int            `json:"last_message_id"`
	RunTop            int            `json:"run_top,omitempty"`
	Frontier          int            `json:"frontier,omitempty"`
	MinFailed         int            `json:"min_failed,omitempty"`
	ProcessedGroups   []string       `json:"processed_media_groups"`
	FailedGroups      map[string]int `json:"failed_groups,omitempty"`
	QuarantinedGroups []string       `json:"quarantined_groups,omitempty"`
}

// NewRecord returns an empty record (nothing processed yet).
func NewRecord() *Record {
	return &Record{
		ProcessedGroups:   make(map[string]bool),
		FailedGroups:      make(map[string]int),
		QuarantinedGroups: make(map[string]bool),
	}
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		LastMessageID:     r.LastMessageID,
		RunTop:            r.RunTop,
		Frontier:          r.Frontier,
		MinFailed:         r.MinFailed,
		ProcessedGroups:   sortedKeys(r.ProcessedGroups),
		FailedGroups:      r.FailedGroups,
		QuarantinedGroups: sortedKeys(r.QuarantinedGroups),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.LastMessageID = raw.LastMessageID
	r.RunTop = raw.RunTop
	r.Frontier = raw.Frontier
	r.MinFailed = raw.MinFailed
	r.ProcessedGroups = make(map[string]bool, len(raw.ProcessedGroups))
	for _, g := range raw.ProcessedGroups {
		r.ProcessedGroups[g] = true
	}
	r.FailedGroups = raw.FailedGroups
	if r.FailedGroups == nil {
		r.FailedGroups = make(map[string]int)
	}
	r.QuarantinedGroups = make(map[string]bool, len(raw.QuarantinedGroups))
	for _, g := range raw.QuarantinedGroups {
		r.QuarantinedGroups[g] = true
	}
	return nil
}

// HasSegment reports whether an interrupted walk segment is pending.
func (r *Record) HasSegment() bool {
	return r.RunTop > 0
}

// NoteFailed lowers the failed-unit floor of the current segment.
func (r *Record) NoteFailed(id int) {
	if r.MinFailed == 0 || id < r.MinFailed {
		r.MinFailed = id
	}
}

// ClearSegment collapses a completed walk segment into the stable floor.
// The floor advances to the newest id of the walk, held back below the
// lowest failed unit so failures are re-attempted next run. The floor
// never moves backwards.
func (r *Record) ClearSegment() {
	last := r.RunTop
	if r.MinFailed > 0 && r.MinFailed-1 < last {
		last = r.MinFailed - 1
	}
	if last > r.LastMessageID {
		r.LastMessageID = last
	}
	r.RunTop = 0
	r.Frontier = 0
	r.MinFailed = 0
}

// IsGroupDone reports whether a group is already fully processed or
// permanently quarantined.
func (r *Record) IsGroupDone(groupID string) bool {
	return r.ProcessedGroups[groupID] || r.QuarantinedGroups[groupID]
}

// MarkGroupProcessed records a fully downloaded group and clears any failure
// history for it.
func (r *Record) MarkGroupProcessed(groupID string) {
	r.ProcessedGroups[groupID] = true
	delete(r.FailedGroups, groupID)
}

// RegisterGroupFailure increments the consecutive-failure counter for a group.
// When the counter reaches maxAttempts the group is quarantined and true is
// returned; quarantined groups are never re-attempted.
func (r *Record) RegisterGroupFailure(groupID string, maxAttempts int) bool {
	r.FailedGroups[groupID]++
	if maxAttempts > 0 && r.FailedGroups[groupID] >= maxAttempts {
		r.QuarantinedGroups[groupID] = true
		delete(r.FailedGroups, groupID)
		return true
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store reads and writes per-channel checkpoint records under a state
// directory. One sync owns a channel's record at a time; the store itself
// does no locking.
type Store struct {
	dir string
	log *logger.Logger
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir, log: logger.Get()}, nil
}

// path returns the checkpoint file path for a channel.
func (s *Store) path(channelID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("control_%d.json", channelID))
}

// Load returns the checkpoint record for a channel, or nil if none exists.
// A corrupt record is logged and discarded, never surfaced as an error:
// the caller restarts from scratch.
func (s *Store) Load(channelID int64) *Record {
	data, err := os.ReadFile(s.path(channelID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Int64("channel_id", channelID).Msg("checkpoint: unreadable record, starting from scratch")
		}
		return nil
	}

	rec := NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		s.log.Warn().Err(err).Int64("channel_id", channelID).Msg("checkpoint: corrupt record, starting from scratch")
		return nil
	}
	return rec
}

// Save atomically persists the record for a channel: the new content is
// written to a temp file and renamed over the old one, so a crash leaves
// either the previous or the new record, never a partial write.
func (s *Store) Save(channelID int64, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	target := s.path(channelID)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
