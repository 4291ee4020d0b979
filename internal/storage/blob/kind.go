package blob

import (
	"strings"

	"chat-relay/internal/storage/database/message"

	"github.com/gabriel-vasile/mimetype"
)

// KindOf 依內容判斷訊息類型（image、audio、video 或 file）.
func KindOf(head []byte) string {
	mime := mimetype.Detect(head).String()
	switch {
	case strings.HasPrefix(mime, "image/"):
		return message.KindImage
	case strings.HasPrefix(mime, "audio/"):
		return message.KindAudio
	case strings.HasPrefix(mime, "video/"):
		return message.KindVideo
	}
	return message.KindFile
}
