package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/studyplan/tg-media-sync/internal/media"
)

// Channel identifies a telegram channel whose history is enumerable.
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
}

// Message is a snapshot of one point in a channel's message sequence.
// It is retrieved per request and never cached across operations.
type Message struct {
	ID        int       // message id (monotonic, unique within channel)
	ChannelID int64     // channel id
	GroupedID int64     // media group id, 0 when the message is not grouped
	Text      string    // caption or text content
	Date      time.Time // message creation timestamp
	Media     *Media    // nil when the message carries no downloadable media
}

// Media describes the downloadable payload of a message. Kind and FileName
// feed the classifier; the raw photo/document references are the download
// handles for the gotd downloader.
type Media struct {
	Kind     media.Kind
	FileName string // declared filename, documents only

	Photo    *tg.Photo
	Document *tg.Document
}

// HasMedia reports whether the message carries downloadable media.
func (m *Message) HasMedia() bool {
	return m != nil && m.Media != nil
}

// unixTime converts a telegram unix timestamp to time.Time.
func unixTime(ts int) time.Time {
	return time.Unix(int64(ts), 0)
}
