// Package syncer walks a channel's message history newest-first and
// downloads every supported media attachment exactly once, checkpointing
// after each resolved unit so an interrupted run resumes where it stopped.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/studyplan/tg-media-sync/internal/checkpoint"
	"github.com/studyplan/tg-media-sync/internal/config"
	"github.com/studyplan/tg-media-sync/internal/logger"
	"github.com/studyplan/tg-media-sync/internal/media"
	"github.com/studyplan/tg-media-sync/internal/telegram"
)

// FeedClient defines the remote feed operations the engine needs.
// All operations may fail with telegram.FloodWaitError, which the engine
// handles with bounded sleep-and-retry.
type FeedClient interface {
	LatestMessageID(ctx context.Context, channel *telegram.Channel) (int, error)
	GetMessage(ctx context.Context, channel *telegram.Channel, id int) (*telegram.Message, error)
	GetMediaGroup(ctx context.Context, channel *telegram.Channel, id int) ([]telegram.Message, error)
	DownloadMedia(ctx context.Context, msg *telegram.Message, destPath string) error
}

// UnitFailure records one message that could not be resolved this run.
type UnitFailure struct {
	MessageID int    `json:"message_id"`
	Reason    string `json:"reason"`
}

// Summary aggregates the outcome of one sync invocation. Built fresh per
// run, returned to the caller, never persisted by the engine itself.
type Summary struct {
	Channel    string        `json:"channel"`
	ChannelID  int64         `json:"channel_id"`
	Eligible   int           `json:"eligible"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Files      []string      `json:"files,omitempty"`
	Failures   []UnitFailure `json:"failures,omitempty"`
	Aborted    bool          `json:"aborted"`
}

// unit outcomes
const (
	outcomeNone = iota // no downloadable media, resolved with nothing to do
	outcomeDownloaded
	outcomeSkipped // target already on disk from a previous run
	outcomeFailed
)

// Engine drives the sync for one channel at a time. A single engine value
// is safe to share across channels because all walk state lives on the
// stack of Sync; the per-channel single-writer discipline is enforced by
// the manager, not here.
type Engine struct {
	feed            FeedClient
	checkpoints     *checkpoint.Store
	downloadDir     string
	paceDelay       time.Duration
	maxFloodRetries int
	quarantineAfter int
	log             *logger.Logger

	// sleep is replaced in tests to observe backoff without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a sync engine.
func NewEngine(feed FeedClient, checkpoints *checkpoint.Store, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		feed:            feed,
		checkpoints:     checkpoints,
		downloadDir:     cfg.DownloadDir,
		paceDelay:       time.Duration(cfg.PaceDelayMs) * time.Millisecond,
		maxFloodRetries: cfg.MaxFloodRetries,
		quarantineAfter: cfg.GroupQuarantineMax,
		log:             log,
		sleep:           sleepCtx,
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// walk carries the mutable state of one sync invocation.
type walk struct {
	channel *telegram.Channel
	rec     *checkpoint.Record
	dir     string
	sink    ProgressSink
	sum     *Summary
	total   int
	// claimed tracks destination paths taken by earlier messages in this
	// run, so two different messages never write the same file
	claimed map[string]bool
	// attempted tracks groups already tried this run; the walk visits
	// every member id, the group itself is handled once per run
	attempted map[string]bool
}

// Sync walks the channel from its newest message down to the last
// checkpointed one, downloading media along the way. limit > 0 caps the
// number of media-bearing messages handled this run; the walk stops early
// and the next run continues from the same spot.
//
// Failures local to one message or group go into the summary and hold the
// checkpoint floor below them. Only a dead feed or an unwritable
// destination directory abort the run with an error.
func (e *Engine) Sync(ctx context.Context, channel *telegram.Channel, limit int, sink ProgressSink) (*Summary, error) {
	sum := &Summary{Channel: channel.Username, ChannelID: channel.ID}

	rec := e.checkpoints.Load(channel.ID)
	if rec == nil {
		rec = checkpoint.NewRecord()
	}

	latest, err := e.latestID(ctx, channel)
	if err != nil {
		return sum, fmt.Errorf("latest message id: %w", err)
	}

	if !rec.HasSegment() && latest <= rec.LastMessageID {
		e.log.Info().
			Str("channel", channel.Username).
			Int("last_message_id", rec.LastMessageID).
			Msg("channel up to date")
		return sum, nil
	}

	dir := filepath.Join(e.downloadDir, channelDirName(channel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return sum, fmt.Errorf("create download dir: %w", err)
	}

	// ids inside [skipLo, skipHi] were already handled by the interrupted
	// run this segment belongs to
	skipLo, skipHi := rec.Frontier, rec.RunTop

	// top is where this walk starts. With a pending segment the persisted
	// RunTop is NOT raised yet: ids above the old segment only join it once
	// the walk has covered every one of them down to skipHi, otherwise an
	// interruption up there would persist a segment claiming unprocessed ids
	top := rec.RunTop
	if latest > top {
		top = latest
		if !rec.HasSegment() {
			rec.RunTop = top
		}
	}

	w := &walk{
		channel:   channel,
		rec:       rec,
		dir:       dir,
		sink:      sink,
		sum:       sum,
		total:     top - rec.LastMessageID,
		claimed:   make(map[string]bool),
		attempted: make(map[string]bool),
	}

	e.log.Info().
		Str("channel", channel.Username).
		Int("from", top).
		Int("to", rec.LastMessageID+1).
		Msg("starting sync walk")

	for id := top; id > rec.LastMessageID; id-- {
		select {
		case <-ctx.Done():
			e.log.Info().Str("channel", channel.Username).Msg("sync cancelled")
			sum.Aborted = true
			e.save(channel.ID, rec)
			return sum, nil
		default:
		}

		if skipLo > 0 && id <= skipHi {
			// the walk reconnected with the old segment: everything from
			// top down to here is contiguous with it, widen the segment
			if rec.RunTop != top {
				rec.RunTop = top
				e.save(channel.ID, rec)
			}
			if id >= skipLo {
				continue
			}
		}

		e.processMessage(ctx, w, id)

		if rec.Frontier == 0 || id < rec.Frontier {
			rec.Frontier = id
		}
		e.save(channel.ID, rec)

		if limit > 0 && sum.Eligible >= limit {
			e.log.Info().
				Str("channel", channel.Username).
				Int("limit", limit).
				Msg("message limit reached, stopping walk")
			return sum, nil
		}
	}

	rec.ClearSegment()
	e.save(channel.ID, rec)

	e.log.Info().
		Str("channel", channel.Username).
		Int("eligible", sum.Eligible).
		Int("downloaded", sum.Downloaded).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("sync completed")

	return sum, nil
}

// processMessage resolves a single candidate id: fetches the message,
// dispatches to group or standalone handling, and accounts the outcome.
func (e *Engine) processMessage(ctx context.Context, w *walk, id int) {
	var msg *telegram.Message
	err := e.withFloodRetry(ctx, w, id, func() error {
		var ferr error
		msg, ferr = e.feed.GetMessage(ctx, w.channel, id)
		return ferr
	})
	if err != nil {
		e.unitFailed(w, id, fmt.Errorf("fetch message: %w", err))
		return
	}
	if msg == nil {
		// deleted or empty, nothing to resolve
		return
	}

	if msg.GroupedID != 0 {
		e.processGroup(ctx, w, msg)
		return
	}

	if !msg.HasMedia() {
		return
	}

	w.sum.Eligible++
	outcome, path := e.downloadUnit(ctx, w, msg, w.dir)
	switch outcome {
	case outcomeDownloaded:
		w.sum.Downloaded++
		w.sum.Files = append(w.sum.Files, path)
		e.emit(w, id, "downloaded", path)
	case outcomeSkipped:
		w.sum.Skipped++
		e.emit(w, id, "skipped duplicate", path)
	case outcomeFailed:
		e.unitFailed(w, id, fmt.Errorf("download failed"))
	}
}

// processGroup downloads every member of a media group as one unit. The
// group id enters the processed set only after every member's media is on
// disk; a partial group is retried from scratch next run, and a group that
// keeps failing across runs is eventually quarantined.
func (e *Engine) processGroup(ctx context.Context, w *walk, msg *telegram.Message) {
	gid := strconv.FormatInt(msg.GroupedID, 10)
	if w.rec.IsGroupDone(gid) || w.attempted[gid] {
		return
	}
	w.attempted[gid] = true

	var members []telegram.Message
	err := e.withFloodRetry(ctx, w, msg.ID, func() error {
		var ferr error
		members, ferr = e.feed.GetMediaGroup(ctx, w.channel, msg.ID)
		return ferr
	})
	if err != nil {
		e.groupFailed(w, gid, msg.ID, fmt.Errorf("fetch media group: %w", err))
		return
	}

	groupDir := filepath.Join(w.dir, "media_group_"+gid)
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		e.groupFailed(w, gid, msg.ID, fmt.Errorf("create group dir: %w", err))
		return
	}

	lowest := msg.ID
	complete := true
	for i := range members {
		member := &members[i]
		if member.ID < lowest {
			lowest = member.ID
		}
		if !member.HasMedia() {
			continue
		}

		w.sum.Eligible++
		outcome, path := e.downloadUnit(ctx, w, member, groupDir)
		switch outcome {
		case outcomeDownloaded:
			w.sum.Downloaded++
			w.sum.Files = append(w.sum.Files, path)
			e.emit(w, member.ID, "downloaded", path)
		case outcomeSkipped:
			w.sum.Skipped++
			e.emit(w, member.ID, "skipped duplicate", path)
		case outcomeFailed:
			w.sum.Failed++
			w.sum.Failures = append(w.sum.Failures, UnitFailure{MessageID: member.ID, Reason: "download failed"})
			complete = false
		}
	}

	if !complete {
		e.groupFailed(w, gid, lowest, fmt.Errorf("incomplete group"))
		return
	}

	w.rec.MarkGroupProcessed(gid)
	e.emit(w, msg.ID, "media group completed", "")
}

// downloadUnit writes one message's media to disk. Returns the outcome and
// the destination path. Filename collisions within this run get a numeric
// suffix; a target that already exists on disk from a previous run is a
// duplicate and is skipped without calling the feed at all.
func (e *Engine) downloadUnit(ctx context.Context, w *walk, msg *telegram.Message, dir string) (int, string) {
	ext, ok := media.Classify(msg.Media.Kind, msg.Media.FileName)
	if !ok {
		w.sum.Eligible-- // counted optimistically by the caller
		return outcomeNone, ""
	}

	base := msg.Text
	if base == "" {
		base = fmt.Sprintf("msg_%d", msg.ID)
	}
	name := media.SanitizeFilename(base)

	path := filepath.Join(dir, name+ext)
	for n := 1; w.claimed[path]; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, n, ext))
	}
	w.claimed[path] = true

	if _, err := os.Stat(path); err == nil {
		return outcomeSkipped, path
	}

	err := e.withFloodRetry(ctx, w, msg.ID, func() error {
		return e.feed.DownloadMedia(ctx, msg, path)
	})
	if err != nil {
		e.log.Error().Err(err).
			Str("channel", w.channel.Username).
			Int("message_id", msg.ID).
			Msg("media download failed")
		os.Remove(path) // drop a partial file, next run retries
		return outcomeFailed, path
	}

	if e.paceDelay > 0 {
		_ = e.sleep(ctx, e.paceDelay)
	}
	return outcomeDownloaded, path
}

// withFloodRetry runs fn, sleeping out rate-limit waits and retrying the
// same unit up to the configured ceiling. Any other error passes through
// on the first occurrence.
func (e *Engine) withFloodRetry(ctx context.Context, w *walk, id int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		seconds, ok := telegram.AsFloodWait(err)
		if !ok {
			return err
		}
		if attempt >= e.maxFloodRetries {
			return fmt.Errorf("flood wait retries exhausted: %w", err)
		}

		wait := time.Duration(seconds) * time.Second
		e.log.Warn().
			Str("channel", w.channel.Username).
			Int("message_id", id).
			Int("seconds", seconds).
			Msg("rate limited, backing off")
		e.emit(w, id, fmt.Sprintf("rate limited, waiting %ds", seconds), "")

		if serr := e.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

// latestID queries the newest message id with flood handling but no walk
// state yet, so it uses a bare retry loop.
func (e *Engine) latestID(ctx context.Context, channel *telegram.Channel) (int, error) {
	var latest int
	var err error
	for attempt := 0; attempt <= e.maxFloodRetries; attempt++ {
		latest, err = e.feed.LatestMessageID(ctx, channel)
		if err == nil {
			return latest, nil
		}
		seconds, ok := telegram.AsFloodWait(err)
		if !ok || attempt == e.maxFloodRetries {
			return 0, err
		}
		if serr := e.sleep(ctx, time.Duration(seconds)*time.Second); serr != nil {
			return 0, serr
		}
	}
	return 0, err
}

// unitFailed accounts a failed standalone unit and holds the checkpoint
// floor below it so the next run re-attempts it.
func (e *Engine) unitFailed(w *walk, id int, err error) {
	e.log.Error().Err(err).
		Str("channel", w.channel.Username).
		Int("message_id", id).
		Msg("message failed")
	w.sum.Failed++
	w.sum.Failures = append(w.sum.Failures, UnitFailure{MessageID: id, Reason: err.Error()})
	w.rec.NoteFailed(id)
}

// groupFailed registers a failed group attempt. The floor is held below
// the group's lowest member; after enough consecutive failed runs the
// group is quarantined and never re-attempted.
func (e *Engine) groupFailed(w *walk, gid string, lowestID int, err error) {
	e.log.Error().Err(err).
		Str("channel", w.channel.Username).
		Str("group_id", gid).
		Msg("media group failed")
	if quarantined := w.rec.RegisterGroupFailure(gid, e.quarantineAfter); quarantined {
		e.log.Warn().
			Str("channel", w.channel.Username).
			Str("group_id", gid).
			Msg("media group quarantined after repeated failures")
		return
	}
	w.rec.NoteFailed(lowestID)
}

// save persists the checkpoint. A write failure is logged but does not
// stop the walk; the worst case is redone work next run.
func (e *Engine) save(channelID int64, rec *checkpoint.Record) {
	if err := e.checkpoints.Save(channelID, rec); err != nil {
		e.log.Error().Err(err).Int64("channel_id", channelID).Msg("checkpoint save failed")
	}
}

// emit delivers one progress event if a sink is attached.
func (e *Engine) emit(w *walk, id int, status, file string) {
	if w.sink == nil {
		return
	}
	processed := w.sum.Downloaded + w.sum.Skipped + w.sum.Failed
	w.sink.Progress(ProgressEvent{
		Channel:   w.channel.Username,
		MessageID: id,
		Processed: processed,
		Total:     w.total,
		Status:    status,
		File:      file,
	})
}

// channelDirName picks the per-channel destination directory name.
func channelDirName(channel *telegram.Channel) string {
	switch {
	case channel.Username != "":
		return media.SanitizeFilename(channel.Username)
	case channel.Title != "":
		return media.SanitizeFilename(channel.Title)
	default:
		return fmt.Sprintf("channel_%d", channel.ID)
	}
}
