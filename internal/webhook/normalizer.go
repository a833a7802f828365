package webhook

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chathive/chathive-platform/internal/messages"
	"github.com/chathive/chathive-platform/internal/whatsapp"
)

// Normalize converts one provider message unit into the internal
// message record shape. Arrival of the unit proves delivery to the
// provider's servers, so status starts at delivered. Media bodies are
// reduced to placeholder content; the mime type and filename are kept
// so the media itself can be fetched asynchronously later.
func Normalize(msg whatsapp.Message, orgID, conversationID, customerID uuid.UUID, replyTo *uuid.UUID) messages.Record {
	rec := messages.Record{
		OrganizationID:    orgID,
		ConversationID:    conversationID,
		CustomerID:        customerID,
		WhatsAppMessageID: msg.ID,
		Direction:         messages.DirectionInbound,
		SenderType:        messages.SenderCustomer,
		MessageType:       msg.Type,
		ReplyToMessageID:  replyTo,
		Status:            messages.StatusDelivered,
	}
	sentAt := msg.SentAt()
	rec.WhatsAppTimestamp = &sentAt

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			rec.Content = msg.Text.Body
		}
	case "image":
		rec.Content = "[Image]"
		if msg.Image != nil {
			rec.MediaMimeType = msg.Image.MimeType
		}
	case "document":
		filename := "file"
		if msg.Document != nil {
			if msg.Document.Filename != "" {
				filename = msg.Document.Filename
			}
			rec.MediaMimeType = msg.Document.MimeType
			rec.MediaFilename = msg.Document.Filename
		}
		rec.Content = fmt.Sprintf("[Document: %s]", filename)
	case "audio":
		rec.Content = "[Audio]"
		if msg.Audio != nil {
			rec.MediaMimeType = msg.Audio.MimeType
		}
	case "video":
		rec.Content = "[Video]"
		if msg.Video != nil {
			rec.MediaMimeType = msg.Video.MimeType
		}
	case "location":
		place := "Location shared"
		if msg.Location != nil {
			if msg.Location.Name != "" {
				place = msg.Location.Name
			} else if msg.Location.Address != "" {
				place = msg.Location.Address
			}
		}
		rec.Content = fmt.Sprintf("[Location: %s]", place)
	default:
		rec.Content = fmt.Sprintf("[%s]", msg.Type)
	}

	return rec
}
