package webhook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chathive/chathive-platform/internal/messages"
	"github.com/chathive/chathive-platform/internal/whatsapp"
)

func TestNormalizeContentMapping(t *testing.T) {
	tests := []struct {
		name         string
		msg          whatsapp.Message
		wantContent  string
		wantMime     string
		wantFilename string
	}{
		{
			name: "text verbatim",
			msg: whatsapp.Message{Type: "text", Text: &whatsapp.Text{
				Body: "Hi, do you have a 3pm slot?",
			}},
			wantContent: "Hi, do you have a 3pm slot?",
		},
		{
			name:        "image placeholder with mime",
			msg:         whatsapp.Message{Type: "image", Image: &whatsapp.Media{MimeType: "image/jpeg"}},
			wantContent: "[Image]",
			wantMime:    "image/jpeg",
		},
		{
			name: "document with filename",
			msg: whatsapp.Message{Type: "document", Document: &whatsapp.Media{
				MimeType: "application/pdf",
				Filename: "quote.pdf",
			}},
			wantContent:  "[Document: quote.pdf]",
			wantMime:     "application/pdf",
			wantFilename: "quote.pdf",
		},
		{
			name:        "document without filename",
			msg:         whatsapp.Message{Type: "document", Document: &whatsapp.Media{MimeType: "application/pdf"}},
			wantContent: "[Document: file]",
			wantMime:    "application/pdf",
		},
		{
			name:        "audio",
			msg:         whatsapp.Message{Type: "audio", Audio: &whatsapp.Media{MimeType: "audio/ogg"}},
			wantContent: "[Audio]",
			wantMime:    "audio/ogg",
		},
		{
			name:        "video",
			msg:         whatsapp.Message{Type: "video", Video: &whatsapp.Media{MimeType: "video/mp4"}},
			wantContent: "[Video]",
			wantMime:    "video/mp4",
		},
		{
			name:        "location with name",
			msg:         whatsapp.Message{Type: "location", Location: &whatsapp.Location{Name: "Central Cafe"}},
			wantContent: "[Location: Central Cafe]",
		},
		{
			name:        "location with address only",
			msg:         whatsapp.Message{Type: "location", Location: &whatsapp.Location{Address: "12 Main St"}},
			wantContent: "[Location: 12 Main St]",
		},
		{
			name:        "location bare",
			msg:         whatsapp.Message{Type: "location", Location: &whatsapp.Location{Latitude: 1, Longitude: 2}},
			wantContent: "[Location: Location shared]",
		},
		{
			name:        "unknown type falls through",
			msg:         whatsapp.Message{Type: "sticker"},
			wantContent: "[sticker]",
		},
		{
			name:        "text with missing body",
			msg:         whatsapp.Message{Type: "text"},
			wantContent: "",
		},
	}

	orgID := uuid.New()
	convID := uuid.New()
	custID := uuid.New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.ID = "wamid.test"
			tt.msg.Timestamp = "1700000000"
			rec := Normalize(tt.msg, orgID, convID, custID, nil)

			assert.Equal(t, tt.wantContent, rec.Content)
			assert.Equal(t, tt.wantMime, rec.MediaMimeType)
			assert.Equal(t, tt.wantFilename, rec.MediaFilename)
			assert.Equal(t, messages.DirectionInbound, rec.Direction)
			assert.Equal(t, messages.SenderCustomer, rec.SenderType)
			assert.Equal(t, messages.StatusDelivered, rec.Status)
			assert.Equal(t, tt.msg.Type, rec.MessageType)
			assert.Equal(t, "wamid.test", rec.WhatsAppMessageID)
			if assert.NotNil(t, rec.WhatsAppTimestamp) {
				assert.Equal(t, time.Unix(1700000000, 0).UTC(), *rec.WhatsAppTimestamp)
			}
		})
	}
}

func TestNormalizeCarriesReplyReference(t *testing.T) {
	replyTo := uuid.New()
	rec := Normalize(whatsapp.Message{Type: "text", Text: &whatsapp.Text{Body: "yes"}},
		uuid.New(), uuid.New(), uuid.New(), &replyTo)
	if rec.ReplyToMessageID == nil || *rec.ReplyToMessageID != replyTo {
		t.Fatalf("expected reply reference %s, got %v", replyTo, rec.ReplyToMessageID)
	}
}
