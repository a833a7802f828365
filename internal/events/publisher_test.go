package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), KeyMessageCreated, Event{}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}

func TestEventJSONShape(t *testing.T) {
	evt := Event{
		ID:             "evt-1",
		Type:           KeyMessageCreated,
		OrganizationID: "org-1",
		OccurredAt:     time.Unix(1700000000, 0).UTC(),
		Data:           map[string]string{"message_id": "msg-1"},
	}
	body, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "message.created" {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	if decoded["organization_id"] != "org-1" {
		t.Fatalf("unexpected org %v", decoded["organization_id"])
	}
	if _, ok := decoded["data"]; !ok {
		t.Fatal("expected data in envelope")
	}
}
