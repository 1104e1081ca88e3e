package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"rate limited", statusError("openai", 429, errors.New("slow down")), true},
		{"server error", statusError("anthropic", 503, errors.New("overloaded")), true},
		{"bad request", statusError("anthropic", 400, errors.New("bad")), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestAdapterErrorUnwrap(t *testing.T) {
	cause := errors.New("upstream")
	err := fmt.Errorf("route: %w", statusError("xai", 502, cause))

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError in chain")
	}
	if adapterErr.Status != 502 || !adapterErr.Temporary {
		t.Fatalf("unexpected adapter error: %+v", adapterErr)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
}

func TestMockAdapterResponses(t *testing.T) {
	m := NewMockAdapterWithResponses("stub", map[string]string{"ping": "pong"}, "")

	resp, err := m.Generate(context.Background(), "", "ping")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Artifact.Content != "pong" {
		t.Fatalf("content = %q, want pong", resp.Artifact.Content)
	}
	if resp.Artifact.Adapter != "stub" || resp.Artifact.Model != "mock-1" {
		t.Fatalf("unexpected provenance: %+v", resp.Artifact)
	}

	resp, err = m.Generate(context.Background(), "mock-1", "other")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !strings.HasSuffix(resp.Artifact.Content, "other") {
		t.Fatalf("default response should echo prompt, got %q", resp.Artifact.Content)
	}
	if m.Calls() != 2 {
		t.Fatalf("calls = %d, want 2", m.Calls())
	}
}

func TestMockAdapterError(t *testing.T) {
	m := NewMockAdapter()
	m.Err = statusError("mock", 500, errors.New("down"))

	if _, err := m.Generate(context.Background(), "", "x"); !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestWebhookAdapterJSON(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	a, err := NewWebhookAdapter("zapier", srv.URL, "", map[string]string{"Authorization": "Bearer t"})
	if err != nil {
		t.Fatalf("NewWebhookAdapter: %v", err)
	}

	resp, err := a.Generate(context.Background(), "notify", "hello")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got.Content != "hello" || got.Event != "notify" || got.Source != "helix" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if auth != "Bearer t" {
		t.Fatalf("header not forwarded: %q", auth)
	}
	if resp.Artifact.Content != `{"status":"success"}` {
		t.Fatalf("content = %q", resp.Artifact.Content)
	}
}

func TestWebhookAdapterDiscord(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := NewWebhookAdapter("discord", srv.URL, "discord", nil)
	if err != nil {
		t.Fatalf("NewWebhookAdapter: %v", err)
	}

	long := strings.Repeat("x", discordContentLimit+50)
	resp, err := a.Generate(context.Background(), "", long)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("discord payload should only carry content, got %v", got)
	}
	if content, _ := got["content"].(string); len(content) != discordContentLimit {
		t.Fatalf("content length = %d, want %d", len(content), discordContentLimit)
	}
	if resp.Artifact.Content != "delivered (204)" {
		t.Fatalf("content = %q", resp.Artifact.Content)
	}

	wide := strings.Repeat("é", discordContentLimit+50)
	if _, err := a.Generate(context.Background(), "", wide); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	content, _ := got["content"].(string)
	if !utf8.ValidString(content) || utf8.RuneCountInString(content) != discordContentLimit {
		t.Fatalf("multi-byte content truncated to %d runes (valid=%v), want %d",
			utf8.RuneCountInString(content), utf8.ValidString(content), discordContentLimit)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"日本語テキスト", 3, "日本語"},
		{"", 3, ""},
	}
	for _, tc := range tests {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestWebhookAdapterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := NewWebhookAdapter("notion", srv.URL, "json", nil)
	if err != nil {
		t.Fatalf("NewWebhookAdapter: %v", err)
	}

	_, err = a.Generate(context.Background(), "", "hello")
	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if adapterErr.Status != http.StatusServiceUnavailable || !IsTransient(err) {
		t.Fatalf("unexpected error: %+v", adapterErr)
	}
}

func TestNewWebhookAdapterValidation(t *testing.T) {
	if _, err := NewWebhookAdapter("", "http://x", "", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := NewWebhookAdapter("a", "", "", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewWebhookAdapter("a", "http://x", "xml", nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestProviderAdaptersRequireKey(t *testing.T) {
	if _, err := NewAnthropicAdapter(""); err == nil {
		t.Fatalf("anthropic: expected error")
	}
	if _, err := NewOpenAIAdapter(""); err == nil {
		t.Fatalf("openai: expected error")
	}
	if _, err := NewXAIAdapter(""); err == nil {
		t.Fatalf("xai: expected error")
	}
	if _, err := NewPerplexityAdapter(""); err == nil {
		t.Fatalf("perplexity: expected error")
	}
	if _, err := NewGoogleAdapter(context.Background(), ""); err == nil {
		t.Fatalf("google: expected error")
	}
}
