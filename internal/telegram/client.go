// Package telegram provides the remote feed client over the Telegram MTProto
// protocol: paginated history lookups, message and media-group retrieval and
// media downloads, with FLOOD_WAIT conditions surfaced as typed errors.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/studyplan/tg-media-sync/internal/logger"
	"github.com/studyplan/tg-media-sync/internal/media"
)

// albumWindow is how many ids around a grouped message are fetched when
// resolving its media group. Telegram albums hold at most 10 messages with
// adjacent ids, so a ±9 window always covers the whole group.
const albumWindow = 9

// Client wraps the gotgproto client and provides the feed operations the sync
// engine needs. All network calls go through the rate limiter, and FLOOD_WAIT
// responses both update the limiter and come back as *FloodWaitError.
type Client struct {
	manager     *Manager
	rateLimiter *RateLimiter
	log         *logger.Logger
}

// NewClient creates a new telegram client wrapper using the Manager.
func NewClient(manager *Manager) *Client {
	return &Client{
		manager:     manager,
		rateLimiter: DefaultRateLimiter(),
		log:         logger.Get(),
	}
}

// NewClientWithRate creates a client with a custom request rate.
func NewClientWithRate(manager *Manager, rps float64) *Client {
	return &Client{
		manager:     manager,
		rateLimiter: NewRateLimiter(rps, 1),
		log:         logger.Get(),
	}
}

// Close stops the client via the manager.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// GetStatus returns the current status of the telegram client.
func (c *Client) GetStatus() Status {
	return c.manager.GetStatus()
}

// getProto returns the current protocol client if available.
func (c *Client) getProto() (*gotgproto.Client, error) {
	proto := c.manager.GetClient()
	if proto == nil {
		return nil, fmt.Errorf("telegram client not authorized")
	}
	return proto, nil
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	proto, err := c.getProto()
	if err != nil {
		return nil, err
	}
	return proto.API(), nil
}

// wait blocks on the rate limiter before an API call.
func (c *Client) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.log.Error().Err(err).Msg("telegram: rate limiter wait failed")
		return err
	}
	return nil
}

// apiErr records FLOOD_WAIT backoff on the limiter and wraps the error as a
// typed *FloodWaitError for the caller.
func (c *Client) apiErr(err error, op string) error {
	if wait := floodWaitSeconds(err); wait > 0 {
		c.log.Warn().Int("wait_seconds", wait).Str("op", op).Msg("telegram: FLOOD_WAIT detected, updating rate limiter")
		c.rateLimiter.SetFloodWait(wait)
	}
	return wrapFloodWait(err)
}

// ResolveChannel resolves a channel username to channel info.
// username can be with or without the @ prefix.
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimPrefix(username, "@")

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.log.Info().Str("username", username).Msg("telegram: resolving channel username")
	api, err := c.API()
	if err != nil {
		return nil, err
	}
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.log.Error().Err(err).Str("username", username).Msg("telegram: failed to resolve username")
		return nil, fmt.Errorf("resolve username %s: %w", username, c.apiErr(err, "resolve"))
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("channel not found: %s", username)
	}

	ch, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("not a channel: %s", username)
	}

	return &Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   username,
		Title:      ch.Title,
	}, nil
}

// LatestMessageID returns the id of the newest message in the channel,
// 0 when the channel has no messages.
func (c *Client) LatestMessageID(ctx context.Context, channel *Channel) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}

	api, err := c.API()
	if err != nil {
		return 0, err
	}
	history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer: &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		Limit: 1,
	})
	if err != nil {
		c.log.Error().Err(err).Int64("channel_id", channel.ID).Msg("telegram: latest message lookup failed")
		return 0, fmt.Errorf("get latest message: %w", c.apiErr(err, "latest"))
	}

	for _, raw := range rawMessages(history) {
		if m, ok := raw.(*tg.Message); ok {
			return m.ID, nil
		}
	}
	return 0, nil
}

// GetMessage fetches a single message by id.
// Returns (nil, nil) when the message is empty or deleted.
func (c *Client) GetMessage(ctx context.Context, channel *Channel, id int) (*Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	api, err := c.API()
	if err != nil {
		return nil, err
	}
	res, err := api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		ID: []tg.InputMessageClass{&tg.InputMessageID{ID: id}},
	})
	if err != nil {
		c.log.Error().Err(err).Int("message_id", id).Msg("telegram: get message failed")
		return nil, fmt.Errorf("get message %d: %w", id, c.apiErr(err, "get_message"))
	}

	for _, raw := range rawMessages(res) {
		if m, ok := raw.(*tg.Message); ok && m.ID == id {
			return parseMessage(m, channel), nil
		}
	}
	// empty marker: deleted or inaccessible message
	return nil, nil
}

// GetMediaGroup returns all messages sharing the media group of the message
// with the given id, in ascending id order. The surrounding album window is
// fetched in one request and filtered by grouped id.
func (c *Client) GetMediaGroup(ctx context.Context, channel *Channel, id int) ([]Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	api, err := c.API()
	if err != nil {
		return nil, err
	}

	ids := make([]tg.InputMessageClass, 0, 2*albumWindow+1)
	for i := id - albumWindow; i <= id+albumWindow; i++ {
		if i < 1 {
			continue
		}
		ids = append(ids, &tg.InputMessageID{ID: i})
	}

	res, err := api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		ID: ids,
	})
	if err != nil {
		c.log.Error().Err(err).Int("message_id", id).Msg("telegram: get media group failed")
		return nil, fmt.Errorf("get media group of %d: %w", id, c.apiErr(err, "get_group"))
	}

	var groupID int64
	byID := make(map[int]*tg.Message)
	for _, raw := range rawMessages(res) {
		m, ok := raw.(*tg.Message)
		if !ok {
			continue
		}
		byID[m.ID] = m
		if m.ID == id {
			groupID = m.GroupedID
		}
	}

	if groupID == 0 {
		return nil, fmt.Errorf("message %d is not part of a media group", id)
	}

	var group []Message
	for _, m := range byID {
		if m.GroupedID != groupID {
			continue
		}
		if parsed := parseMessage(m, channel); parsed != nil {
			group = append(group, *parsed)
		}
	}

	sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	return group, nil
}

// DownloadMedia downloads the message's media payload to destPath.
func (c *Client) DownloadMedia(ctx context.Context, msg *Message, destPath string) error {
	if !msg.HasMedia() {
		return fmt.Errorf("message %d has no media", msg.ID)
	}

	if err := c.wait(ctx); err != nil {
		return err
	}

	api, err := c.API()
	if err != nil {
		return err
	}

	loc, err := downloadLocation(msg.Media)
	if err != nil {
		return err
	}

	dl := downloader.NewDownloader()
	if _, err := dl.Download(api, loc).ToPath(ctx, destPath); err != nil {
		c.log.Error().Err(err).Int("message_id", msg.ID).Str("path", destPath).Msg("telegram: media download failed")
		return fmt.Errorf("download media of %d: %w", msg.ID, c.apiErr(err, "download"))
	}
	return nil
}

// downloadLocation builds the input file location for the media payload.
func downloadLocation(m *Media) (tg.InputFileLocationClass, error) {
	switch {
	case m.Photo != nil:
		return &tg.InputPhotoFileLocation{
			ID:            m.Photo.ID,
			AccessHash:    m.Photo.AccessHash,
			FileReference: m.Photo.FileReference,
			ThumbSize:     largestPhotoSize(m.Photo),
		}, nil
	case m.Document != nil:
		return m.Document.AsInputDocumentFileLocation(), nil
	default:
		return nil, fmt.Errorf("media has no downloadable payload")
	}
}

// largestPhotoSize picks the thumb type of the biggest available photo size.
func largestPhotoSize(p *tg.Photo) string {
	var best string
	var bestBytes int
	for _, s := range p.Sizes {
		switch sz := s.(type) {
		case *tg.PhotoSize:
			if sz.Size >= bestBytes {
				bestBytes = sz.Size
				best = sz.Type
			}
		case *tg.PhotoSizeProgressive:
			total := 0
			for _, b := range sz.Sizes {
				if b > total {
					total = b
				}
			}
			if total >= bestBytes {
				bestBytes = total
				best = sz.Type
			}
		}
	}
	return best
}

// rawMessages extracts the message list from a history/get-messages response.
func rawMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := res.(type) {
	case *tg.MessagesChannelMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	case *tg.MessagesMessages:
		return h.Messages
	}
	return nil
}

// parseMessage converts a raw telegram message to our Message type.
func parseMessage(m *tg.Message, channel *Channel) *Message {
	return &Message{
		ID:        m.ID,
		ChannelID: channel.ID,
		GroupedID: m.GroupedID,
		Text:      m.Message,
		Date:      unixTime(m.Date),
		Media:     parseMedia(m.Media),
	}
}

// parseMedia maps the raw media payload to a Media descriptor, nil when the
// message has nothing downloadable.
func parseMedia(mc tg.MessageMediaClass) *Media {
	switch mm := mc.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := mm.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		return &Media{Kind: media.KindPhoto, Photo: photo}

	case *tg.MessageMediaDocument:
		doc, ok := mm.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &Media{
			Kind:     documentKind(doc),
			FileName: documentFileName(doc),
			Document: doc,
		}
	}
	return nil
}

// documentKind inspects document attributes to pick the media kind.
func documentKind(doc *tg.Document) media.Kind {
	var hasVideo, hasAnimated, hasAudio, isVoice bool
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			hasVideo = true
		case *tg.DocumentAttributeAnimated:
			hasAnimated = true
		case *tg.DocumentAttributeAudio:
			hasAudio = true
			isVoice = a.Voice
		}
	}

	switch {
	case hasAnimated:
		return media.KindAnimation
	case hasVideo:
		return media.KindVideo
	case hasAudio && isVoice:
		return media.KindVoice
	case hasAudio:
		return media.KindAudio
	default:
		return media.KindDocument
	}
}

// documentFileName returns the declared filename attribute, if any.
func documentFileName(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if a, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return a.FileName
		}
	}
	return ""
}
