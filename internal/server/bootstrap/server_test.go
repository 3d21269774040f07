package bootstrap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lhtl/internal/config"
	"lhtl/internal/testutil"
)

func testConfig(t *testing.T, provider string) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.StaticDir = ""
	cfg.Storage.DataFile = filepath.Join(dir, "works_data.json")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.AudioDir = filepath.Join(dir, "audio_cache")
	cfg.AI.Provider = provider
	cfg.AI.APIKey = ""
	cfg.Log.Level = "error"
	return cfg
}

func postAnalyze(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	image := base64.StdEncoding.EncodeToString(testutil.PNG(t))
	body, err := json.Marshal(map[string]string{"scorecardImage": image, "comicImage": image})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBuildWithMockProvider(t *testing.T) {
	server, err := Build(testConfig(t, config.ProviderMock))
	require.NoError(t, err)
	require.NotNil(t, server.Container.Analysis)
	require.NotNil(t, server.Container.AudioStore)

	rec := postAnalyze(t, server.Handler())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Analysis string `json:"analysis"`
		AudioURL string `json:"audioUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Analysis)
	assert.NotEmpty(t, result.AudioURL)
}

func TestBuildOpenAIWithoutKeyDisablesAnalysis(t *testing.T) {
	server, err := Build(testConfig(t, config.ProviderOpenAI))
	require.NoError(t, err)
	assert.Nil(t, server.Container.Analysis)

	assert.Equal(t, http.StatusServiceUnavailable, postAnalyze(t, server.Handler()).Code)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disabled"`)
}

func TestBuildWithoutAudioDir(t *testing.T) {
	cfg := testConfig(t, config.ProviderNone)
	cfg.Storage.AudioDir = ""
	server, err := Build(cfg)
	require.NoError(t, err)
	assert.Nil(t, server.Container.AudioStore)
	assert.Nil(t, server.Container.Analysis)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	_, err := Build(testConfig(t, "claude"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.provider")
}

func TestServeStopsOnCancel(t *testing.T) {
	server, err := Build(testConfig(t, config.ProviderNone))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/works")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
