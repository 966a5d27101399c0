package media

import "path/filepath"

// Kind identifies the supported telegram media types.
type Kind string

// Supported media kinds. KindNone marks messages without downloadable media.
const (
	KindNone      Kind = ""
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindVoice     Kind = "voice"
	KindAnimation Kind = "animation"
	KindDocument  Kind = "document"
)

// Classify maps a media kind to its file extension.
// For documents the extension comes from the declared filename and may be
// empty. Returns ok=false for unsupported kinds.
func Classify(kind Kind, fileName string) (ext string, ok bool) {
	switch kind {
	case KindPhoto:
		return ".jpg", true
	case KindVideo:
		return ".mp4", true
	case KindAudio:
		return ".mp3", true
	case KindVoice:
		return ".ogg", true
	case KindAnimation:
		return ".mp4", true
	case KindDocument:
		if fileName != "" {
			return filepath.Ext(fileName), true
		}
		return "", true
	default:
		return "", false
	}
}
