package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBarkURL = "https://api.day.app"

// BarkClient отправляет push-уведомления через Bark
type BarkClient struct {
	baseURL    string
	defaultKey string
	group      string
	httpClient *http.Client
}

func NewBarkClient(baseURL, defaultKey string, timeout time.Duration) *BarkClient {
	if baseURL == "" {
		baseURL = DefaultBarkURL
	}
	return &BarkClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		defaultKey: defaultKey,
		group:      "pricewatch",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled - задан ли ключ по умолчанию
func (b *BarkClient) Enabled() bool {
	return b.defaultKey != ""
}

// Deliver реализует NotificationSink. Пустой targetKey заменяется ключом по умолчанию.
// URL: {base}/{key}/{title}/{body}
func (b *BarkClient) Deliver(ctx context.Context, title, body, targetKey string) error {
	key := targetKey
	if key == "" {
		key = b.defaultKey
	}
	if key == "" {
		return fmt.Errorf("bark key is empty")
	}
	if strings.ContainsAny(key, " /") {
		return fmt.Errorf("invalid bark key")
	}

	barkURL := fmt.Sprintf("%s/%s/%s/%s?group=%s",
		b.baseURL, key, url.PathEscape(title), url.PathEscape(body), url.QueryEscape(b.group))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, barkURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
