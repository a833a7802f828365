package whatsapp

import (
	"encoding/json"
	"strconv"
	"time"
)

// ObjectBusinessAccount is the object field value for WhatsApp Business
// webhook deliveries.
const ObjectBusinessAccount = "whatsapp_business_account"

// FieldMessages is the change field carrying messages and statuses.
const FieldMessages = "messages"

// Notification is the top-level webhook delivery body. Every collection
// inside it is optional on the wire; absent arrays decode to nil slices
// and simply yield zero iterations downstream.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound message unit. Exactly one of the typed payload
// pointers is set, matching the declared Type; anything else is nil.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *Text     `json:"text,omitempty"`
	Image     *Media    `json:"image,omitempty"`
	Document  *Media    `json:"document,omitempty"`
	Audio     *Media    `json:"audio,omitempty"`
	Video     *Media    `json:"video,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Context   *Context  `json:"context,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Context references a prior message this one replies to.
type Context struct {
	MessageID string `json:"message_id"`
}

// Status is one delivery-status unit for a previously sent message.
type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []ErrorDetail `json:"errors,omitempty"`
}

type ErrorDetail struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

// ParseNotification decodes a webhook body into a Notification.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// SentAt converts the provider's epoch-seconds timestamp to UTC time.
// A missing or malformed timestamp falls back to now.
func (m Message) SentAt() time.Time {
	return epochSeconds(m.Timestamp)
}

// OccurredAt converts the status event timestamp to UTC time.
func (s Status) OccurredAt() time.Time {
	return epochSeconds(s.Timestamp)
}

// ContactName returns the display name the provider supplied for the
// given wa_id, falling back to the wa_id itself.
func (v Value) ContactName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	return waID
}

func epochSeconds(raw string) time.Time {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
