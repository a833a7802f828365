package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the WhatsApp Cloud API (graph.facebook.com).
type Client struct {
	httpClient *resty.Client
}

// NewClient builds a Cloud API client rooted at baseURL
// (e.g. https://graph.facebook.com/v21.0).
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(accessToken)

	return &Client{httpClient: httpClient}
}

type sendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// TemplateComponent is one component block of a template send.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters"`
}

type TemplateParameter struct {
	Type  string      `json:"type"`
	Text  string      `json:"text,omitempty"`
	Image *MediaLink  `json:"image,omitempty"`
}

type MediaLink struct {
	Link string `json:"link"`
}

// SendText sends a free-form text message and returns the
// provider-assigned message id. replyTo, when set, threads the message
// as a reply to that provider message id.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body, replyTo string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	if replyTo != "" {
		payload["context"] = map[string]string{"message_id": replyTo}
	}
	return c.send(ctx, phoneNumberID, payload)
}

// SendTemplate sends a pre-approved template message, the only kind
// permitted outside the customer-service window.
func (c *Client) SendTemplate(ctx context.Context, phoneNumberID, to, name, languageCode string, components []TemplateComponent) (string, error) {
	template := map[string]any{
		"name":     name,
		"language": map[string]string{"code": languageCode},
	}
	if len(components) > 0 {
		template["components"] = components
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return c.send(ctx, phoneNumberID, payload)
}

func (c *Client) send(ctx context.Context, phoneNumberID string, payload map[string]any) (string, error) {
	var (
		result sendResponse
		apiErr apiError
	)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/%s/messages", phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("whatsapp: send request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("whatsapp: send failed (%d): %s", resp.StatusCode(), apiErr.Error.Message)
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: send succeeded but no message id returned")
	}
	return result.Messages[0].ID, nil
}

// MarkRead marks an inbound message as read so the sender sees the
// blue ticks. Best effort; callers treat failure as log-only.
func (c *Client) MarkRead(ctx context.Context, phoneNumberID, messageID string) error {
	var apiErr apiError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"messaging_product": "whatsapp",
			"status":            "read",
			"message_id":        messageID,
		}).
		SetError(&apiErr).
		Post(fmt.Sprintf("/%s/messages", phoneNumberID))
	if err != nil {
		return fmt.Errorf("whatsapp: mark read request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp: mark read failed (%d): %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return nil
}

// MediaURL resolves a media id to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	var (
		result struct {
			URL string `json:"url"`
		}
		apiErr apiError
	)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&apiErr).
		Get("/" + mediaID)
	if err != nil {
		return "", fmt.Errorf("whatsapp: media url request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("whatsapp: media url failed (%d): %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return result.URL, nil
}
