package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier announces a new signing round so the chat system can
// provision a group room for the participants. Delivery is best-effort; the
// engine never rolls back a propose because the webhook failed.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

type proceedNotification struct {
	Event       string   `json:"event"`
	ContractID  string   `json:"contract_id"`
	Initiator   string   `json:"initiator"`
	Contractors []string `json:"contractors"`
}

func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyProceed posts the (initiator, contractors) pair to the webhook.
// A no-op when no webhook is configured.
func (n *WebhookNotifier) NotifyProceed(ctx context.Context, initiator string, contractors []string, contractID string) error {
	if n.webhookURL == "" {
		return nil
	}

	payload := proceedNotification{
		Event:       "contract_proceed",
		ContractID:  contractID,
		Initiator:   initiator,
		Contractors: contractors,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
