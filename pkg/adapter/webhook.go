package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/helix-collective/helix/pkg/artifact"
)

// discordContentLimit is the maximum message length Discord accepts.
const discordContentLimit = 2000

// WebhookAdapter posts prompts to a webhook sink such as Zapier, Notion
// automations or a Discord channel webhook.
type WebhookAdapter struct {
	name       string
	url        string
	format     string
	headers    map[string]string
	httpClient *http.Client
}

// webhookPayload is the generic JSON body sent to Zapier-style sinks.
type webhookPayload struct {
	Event   string    `json:"event,omitempty"`
	Content string    `json:"content"`
	Source  string    `json:"source"`
	SentAt  time.Time `json:"sent_at"`
}

// discordPayload is the body Discord channel webhooks expect.
type discordPayload struct {
	Content string `json:"content"`
}

// NewWebhookAdapter creates a webhook adapter. format is "json" (default) or
// "discord".
func NewWebhookAdapter(name, url, format string, headers map[string]string) (*WebhookAdapter, error) {
	if name == "" {
		return nil, fmt.Errorf("webhook name is required")
	}
	if url == "" {
		return nil, fmt.Errorf("webhook %s: url is required", name)
	}
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "discord" {
		return nil, fmt.Errorf("webhook %s: unknown format %q", name, format)
	}

	return &WebhookAdapter{
		name:       name,
		url:        url,
		format:     format,
		headers:    headers,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the adapter identifier.
func (a *WebhookAdapter) Name() string {
	return a.name
}

// Models returns nil; webhooks have no models. The model argument of Generate
// is sent as the event name.
func (a *WebhookAdapter) Models() []string {
	return nil
}

// Generate delivers the prompt to the webhook and returns the sink's reply.
func (a *WebhookAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	var body any
	switch a.format {
	case "discord":
		body = discordPayload{Content: truncateRunes(prompt, discordContentLimit)}
	default:
		body = webhookPayload{Event: model, Content: prompt, Source: "helix", SentAt: time.Now().UTC()}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook %s request failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(a.name, resp.StatusCode,
			fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	content := strings.TrimSpace(string(respBody))
	if content == "" {
		content = fmt.Sprintf("delivered (%d)", resp.StatusCode)
	}
	return &Response{Artifact: artifact.New(content, a.name, model, prompt)}, nil
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
