package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yairfalse/reaper/types"
)

// Attachment colors, by severity of the event.
const (
	colorExpired = "#33cc33" // normal lifecycle end
	colorAnomaly = "#ff7f50" // missing or unreadable expiry
	colorDryRun  = "#ffff00" // nothing actually happened
)

// SlackForwarder posts termination events to a Slack incoming webhook.
type SlackForwarder struct {
	webhookURL string
	account    string
	client     *http.Client
}

// slackMessage is the webhook payload.
type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color   string `json:"color"`
	Pretext string `json:"pretext"`
	Text    string `json:"text"`
}

// NewSlackForwarder creates a forwarder. account is a display label for
// the pretext line (an account alias or region).
func NewSlackForwarder(webhookURL, account string) *SlackForwarder {
	return &SlackForwarder{
		webhookURL: webhookURL,
		account:    account,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Forward posts one event.
func (f *SlackForwarder) Forward(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(slackMessage{
		Attachments: []slackAttachment{{
			Color:   eventColor(event),
			Pretext: f.account,
			Text:    eventText(event),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func eventColor(event types.Event) string {
	switch {
	case event.DryRun:
		return colorDryRun
	case event.Reason == types.ReasonExpired:
		return colorExpired
	default:
		return colorAnomaly
	}
}

func eventText(event types.Event) string {
	action := "terminated"
	if event.DryRun {
		action = "would have been terminated (dry-run)"
	}
	return fmt.Sprintf("Instance %s %s: %s", event.InstanceID, action, event.Reason)
}
