package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/haven-msg/sentinel/util"
)

// WebhookNotifier posts notifications to an "incoming webhook" style
// endpoint (Slack-compatible payload).
type WebhookNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL: url,
		Client:     util.RobustHTTPClient(),
	}
}

type webhookBody struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) Send(ctx context.Context, recipients []string, category string, payload map[string]string) error {
	msg := fmt.Sprintf("[%s] -> %s\n", category, strings.Join(recipients, ", "))

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg += fmt.Sprintf("%s: `%s`\n", k, payload[k])
	}

	body, err := json.Marshal(webhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("webhook POST failed. status=%d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
