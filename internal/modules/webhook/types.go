package webhook

import (
	"time"

	"github.com/mx-space/sentinel/internal/modules/notify"
)

// CreateWebhookDTO is the request body for creating a webhook.
type CreateWebhookDTO struct {
	PayloadURL string   `json:"payloadUrl" binding:"required,url"`
	Events     []string `json:"events"     binding:"required,min=1"`
	Enabled    *bool    `json:"enabled"`
	Secret     string   `json:"secret"`
	CreatorID  string   `json:"creatorId"`
}

// UpdateWebhookDTO is the request body for updating a webhook.
type UpdateWebhookDTO struct {
	PayloadURL *string  `json:"payloadUrl"`
	Events     []string `json:"events"`
	Enabled    *bool    `json:"enabled"`
	Secret     *string  `json:"secret"`
	CreatorID  *string  `json:"creatorId"`
}

// webhookResponse is the outbound representation of a webhook (no secret).
type webhookResponse struct {
	ID         string    `json:"id"`
	PayloadURL string    `json:"payloadUrl"`
	Events     []string  `json:"events"`
	Enabled    bool      `json:"enabled"`
	CreatorID  string    `json:"creatorId,omitempty"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// acceptedWebhookEvents is a set built from notify.Events for O(1) lookup.
var acceptedWebhookEvents = func() map[string]struct{} {
	events := notify.Events()
	out := make(map[string]struct{}, len(events))
	for _, event := range events {
		out[event] = struct{}{}
	}
	return out
}()
