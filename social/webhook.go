// Package social publishes winning images to an external feed.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured no webhook url is set
var ErrNotConfigured = errors.New("social webhook url not configured")

// WebhookPoster posts a winner as JSON to a webhook that answers with the
// id of the created post.
type WebhookPoster struct {
	url    string
	token  string
	client *http.Client
}

type postRequest struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url"`
}

type postResponse struct {
	ID string `json:"id"`
}

// IdempotencyKey is the stable key sent with every post of a record.
func IdempotencyKey(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("daily-vote:"+recordID)).String()
}

// NewWebhookPoster creates a poster. client may be nil.
func NewWebhookPoster(url, token string, client *http.Client) *WebhookPoster {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookPoster{url: url, token: token, client: client}
}

// Post publishes caption and imageRef and returns the post id. Retries for
// the same recordID carry the same Idempotency-Key.
func (p *WebhookPoster) Post(ctx context.Context, recordID, caption, imageRef string) (string, error) {
	if p.url == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(postRequest{Caption: caption, ImageURL: imageRef})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build social post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(recordID))
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("social post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("social post: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out postResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode social post response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("social post: response has no id")
	}
	return out.ID, nil
}
