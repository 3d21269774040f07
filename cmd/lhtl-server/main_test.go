package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "LHTL_AI_API_KEY", "LHTL_AI_PROVIDER", "LHTL_SERVER_ADDR"} {
		t.Setenv(key, "")
	}
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lhtl-server dev")
}

func TestConfigShowMasksKeyAndAppliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lhtl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  api_key: sk-test-abcdefgh1234
storage:
  data_file: /srv/works.json
`), 0o644))

	out, err := execute(t, "config", "show", "--config", path, "--addr", ":9000", "--ai-provider", "mock")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+path)
	assert.Contains(t, out, ":9000")
	assert.Contains(t, out, "provider: mock")
	assert.Contains(t, out, "data_file: /srv/works.json")
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "sk-test-abcdefgh1234")
}

func TestConfigShowMissingFileFails(t *testing.T) {
	_, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestServeRejectsInvalidProvider(t *testing.T) {
	_, err := execute(t, "serve", "--ai-provider", "claude", "--config", writeEmptyConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.provider")
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lhtl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))
	return path
}
