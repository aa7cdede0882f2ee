package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

// AIClient - HTTP клиент провайдера генерации текста.
// Ошибки приводятся к entity.ErrNetwork, entity.ErrRateLimited, entity.ErrInvalidResponse
type AIClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func NewAIClient(endpoint, apiKey, model string, timeout time.Duration) *AIClient {
	return &AIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate отправляет prompt и JSON-контекст товара, возвращает текст ответа
func (c *AIClient) Generate(ctx context.Context, prompt, productContext string) (string, error) {
	payload, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Context: productContext})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", entity.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: retry after %q", entity.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: provider returned status %d", entity.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", entity.ErrInvalidResponse, resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", entity.ErrInvalidResponse, err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("%w: empty text", entity.ErrInvalidResponse)
	}

	return out.Text, nil
}
