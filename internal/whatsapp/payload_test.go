package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification_FullMessage(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "100",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550001111", "phone_number_id": "phone-1"},
					"contacts": [{"wa_id": "15550002222", "profile": {"name": "Ada"}}],
					"messages": [{
						"id": "wamid.abc",
						"from": "15550002222",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "Hi, do you have a 3pm slot?"}
					}]
				}
			}]
		}]
	}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)
	assert.Equal(t, ObjectBusinessAccount, n.Object)
	require.Len(t, n.Entry, 1)
	require.Len(t, n.Entry[0].Changes, 1)

	value := n.Entry[0].Changes[0].Value
	assert.Equal(t, "phone-1", value.Metadata.PhoneNumberID)
	require.Len(t, value.Messages, 1)

	msg := value.Messages[0]
	assert.Equal(t, "wamid.abc", msg.ID)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "Hi, do you have a 3pm slot?", msg.Text.Body)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.SentAt())
	assert.Empty(t, value.Statuses)
}

func TestParseNotification_SparsePayload(t *testing.T) {
	// Absent arrays at every nesting level must yield zero iterations,
	// never a decode failure.
	cases := []string{
		`{}`,
		`{"object":"whatsapp_business_account"}`,
		`{"object":"whatsapp_business_account","entry":[]}`,
		`{"object":"whatsapp_business_account","entry":[{}]}`,
		`{"object":"whatsapp_business_account","entry":[{"changes":[{}]}]}`,
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{}}]}]}`,
	}
	for _, raw := range cases {
		n, err := ParseNotification([]byte(raw))
		require.NoError(t, err, raw)
		for _, entry := range n.Entry {
			for _, change := range entry.Changes {
				assert.Empty(t, change.Value.Messages, raw)
				assert.Empty(t, change.Value.Statuses, raw)
			}
		}
	}
}

func TestParseNotification_Statuses(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "phone-1"},
			"statuses": [{
				"id": "wamid.123",
				"status": "read",
				"timestamp": "1700000500",
				"recipient_id": "15550002222",
				"errors": [{"code": 131047, "title": "Re-engagement message"}]
			}]
		}}]}]
	}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)
	statuses := n.Entry[0].Changes[0].Value.Statuses
	require.Len(t, statuses, 1)
	assert.Equal(t, "read", statuses[0].Status)
	assert.Equal(t, time.Unix(1700000500, 0).UTC(), statuses[0].OccurredAt())
	require.Len(t, statuses[0].Errors, 1)
	assert.Equal(t, 131047, statuses[0].Errors[0].Code)
}

func TestContactName(t *testing.T) {
	value := Value{Contacts: []Contact{
		{WaID: "15550002222", Profile: Profile{Name: "Ada"}},
		{WaID: "15550003333"},
	}}
	assert.Equal(t, "Ada", value.ContactName("15550002222"))
	// Missing profile name falls back to the wa_id.
	assert.Equal(t, "15550003333", value.ContactName("15550003333"))
	assert.Equal(t, "15550009999", value.ContactName("15550009999"))
}

func TestEpochSecondsFallback(t *testing.T) {
	before := time.Now().UTC()
	got := Message{Timestamp: "not-a-number"}.SentAt()
	if got.Before(before.Add(-time.Minute)) {
		t.Fatalf("expected fallback to now, got %s", got)
	}
}
