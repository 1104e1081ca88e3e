package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-collective/helix/pkg/config"
	"github.com/helix-collective/helix/pkg/consensus"
)

const mockConfig = `
routing:
  default_task_type: chat
  task_types:
    chat:
      candidates:
        - name: echo
          adapter: mock
    notify:
      triggers: ["notify"]
      candidates:
        - name: zapier
          adapter: zapier
consensus:
  voters:
    - name: echo
      adapter: mock
history:
  driver: sqlite
`

type harness struct {
	configPath string
	dbPath     string
}

func newHarness(t *testing.T, configYAML string) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "XAI_API_KEY", "PERPLEXITY_API_KEY"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(dir, "helix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))
	return &harness{configPath: path, dbPath: filepath.Join(dir, "history.db")}
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", h.configPath, "--db", h.dbPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestScoreThenHistory(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "score", "calm balance and peace, together and stable, clear focus and energy")
	require.NoError(t, err)
	require.Contains(t, out, "harmony")
	require.Contains(t, out, "LEVEL")
	require.Contains(t, out, "elevated")
	require.Contains(t, out, "TRIGGERS")

	out, _, err = h.run(t, "history", "--since", "0")
	require.NoError(t, err)
	require.Contains(t, out, "elevated")
	require.Equal(t, 2, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestScoreJSON(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "score", "--json", "urgent crisis")
	require.NoError(t, err)
	require.Contains(t, out, `"category"`)
	require.Contains(t, out, `"klesha"`)
}

func TestAskRoutesThroughChain(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, errOut, err := h.run(t, "ask", "hello there")
	require.NoError(t, err)
	require.Contains(t, out, "hello there")
	require.Contains(t, errOut, "Routed chat to echo")

	out, _, err = h.run(t, "history", "--outcomes")
	require.NoError(t, err)
	require.Contains(t, out, "echo")
	require.Contains(t, out, "success")
}

func TestAskWithoutCandidates(t *testing.T) {
	h := newHarness(t, mockConfig)

	_, _, err := h.run(t, "ask", "--task", "notify", "deploy finished")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no candidates")
}

func TestVoteWithoutQuorum(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "vote", "--deadline", "2s", "Ship it?")
	require.True(t, errors.Is(err, consensus.ErrNoQuorum), "got %v", err)
	require.Contains(t, out, "echo")
	require.Contains(t, out, "no_quorum")
}

func TestTrendAndProject(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "trend")
	require.NoError(t, err)
	require.Contains(t, out, "unknown")

	for _, text := range []string{"chaos", "calm", "calm balance peace"} {
		_, _, err := h.run(t, "score", text)
		require.NoError(t, err)
	}

	out, _, err = h.run(t, "trend", "--window", "1h")
	require.NoError(t, err)
	require.Regexp(t, `SAMPLES\s+3\n`, out)

	out, _, err = h.run(t, "project", "--horizon", "30m")
	require.NoError(t, err)
	require.Contains(t, out, "PREDICTED")
}

func TestRoutes(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "routes")
	require.NoError(t, err)
	require.Contains(t, out, "chat")
	require.Contains(t, out, "echo")
	require.Contains(t, out, "notify")
}

func TestValidate(t *testing.T) {
	h := newHarness(t, mockConfig)

	out, _, err := h.run(t, "validate")
	require.NoError(t, err)
	require.Contains(t, out, "Configuration valid.")
	require.Contains(t, out, "anthropic")

	bad := newHarness(t, mockConfig+"categories:\n  - name: only\n    lo: 0\n    hi: 5\n")
	_, errOut, err := bad.run(t, "validate")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	require.Contains(t, errOut, "validation errors")
}
