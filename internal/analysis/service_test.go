package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/imaging"
	"lhtl/internal/logging"
	"lhtl/internal/store"
	"lhtl/internal/testutil"
)

type scriptedChat struct {
	mu       sync.Mutex
	errs     []error
	reply    string
	calls    int
	requests []ChatRequest
}

func (c *scriptedChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.requests = append(c.requests, req)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return c.reply, nil
}

type failingSpeech struct{ calls int }

func (f *failingSpeech) Synthesize(context.Context, SpeechRequest) (Audio, error) {
	f.calls++
	return Audio{}, &apperrors.UpstreamError{Service: "speech", StatusCode: http.StatusBadRequest, Err: errors.New("bad voice")}
}

func fastConfig() Config {
	return Config{
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		},
	}
}

func validRequest(t *testing.T) Request {
	return Request{
		Author:         "Ming",
		Habits:         "sleep late",
		Reflection:     "sleep early",
		ScorecardImage: imaging.DataURL(testutil.PNG(t), imaging.FormatPNG),
		ComicImage:     base64.StdEncoding.EncodeToString(testutil.JPEG(t)),
	}
}

func TestAnalyzeReturnsTextAndAudio(t *testing.T) {
	chat := &scriptedChat{reply: "  很棒的開始！  "}
	svc, err := NewService(chat, fastConfig(), WithSpeech(MockProvider{}), WithLogger(logging.Nop()))
	require.NoError(t, err)

	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "很棒的開始！", result.Analysis)
	assert.Equal(t, "audio/wav", result.AudioContentType)
	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(audio[:4]))

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Equal(t, "gpt-4.1", req.Model)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.Contains(t, req.System, "繁體中文")
	assert.Contains(t, req.Prompt, "Ming")
	require.Len(t, req.ImageURLs, 2)
	assert.True(t, strings.HasPrefix(req.ImageURLs[0], "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(req.ImageURLs[1], "data:image/jpeg;base64,"))
}

func TestAnalyzeRejectsMalformedImages(t *testing.T) {
	chat := &scriptedChat{reply: "ok"}
	svc, err := NewService(chat, fastConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)

	req := validRequest(t)
	req.ScorecardImage = "%%%not-base64%%%"
	req.ComicImage = base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))

	_, err = svc.Analyze(context.Background(), req)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"scorecard", "comic"}, verr.Fields)
	assert.Zero(t, chat.calls)
}

func TestAnalyzeRetriesTransientChatErrors(t *testing.T) {
	chat := &scriptedChat{
		reply: "ok",
		errs: []error{
			&apperrors.UpstreamError{Service: "chat", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")},
			&apperrors.UpstreamError{Service: "chat", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
		},
	}
	svc, err := NewService(chat, fastConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)

	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Analysis)
	assert.Equal(t, 3, chat.calls)
}

func TestAnalyzeChatFailureIsUpstreamError(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("model refused")}}
	svc, err := NewService(chat, fastConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), validRequest(t))
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "chat", upstream.Service)
	assert.Equal(t, 1, chat.calls, "non-transient errors are not retried")
}

func TestAnalyzeOpenCircuitRejectsWithoutCallingChat(t *testing.T) {
	chat := &scriptedChat{
		errs:  []error{&apperrors.UpstreamError{Service: "chat", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")}},
		reply: "ok",
	}
	breaker := apperrors.NewCircuitBreaker("chat", apperrors.CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	svc, err := NewService(chat, fastConfig(), WithCircuitBreaker(breaker), WithLogger(logging.Nop()))
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), validRequest(t))
	require.Error(t, err)
	assert.Equal(t, apperrors.StateOpen, breaker.State())

	_, err = svc.Analyze(context.Background(), validRequest(t))
	require.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, apperrors.KindUpstream, apperrors.KindOf(err))
	assert.Equal(t, 1, chat.calls)
}

func TestAnalyzeEmptyReplyIsUpstreamError(t *testing.T) {
	chat := &scriptedChat{reply: "   "}
	svc, err := NewService(chat, fastConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), validRequest(t))
	assert.Equal(t, apperrors.KindUpstream, apperrors.KindOf(err))
}

func TestAnalyzeSpeechFailureDegradesToText(t *testing.T) {
	chat := &scriptedChat{reply: "text only"}
	speech := &failingSpeech{}
	svc, err := NewService(chat, fastConfig(), WithSpeech(speech), WithLogger(logging.Nop()))
	require.NoError(t, err)

	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "text only", result.Analysis)
	assert.Empty(t, result.AudioBase64)
	assert.Empty(t, result.AudioURL)
	assert.Equal(t, 1, speech.calls)

	// Degraded results are not cached.
	_, err = svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 2, chat.calls)
}

type blockingSpeech struct{ calls int }

func (b *blockingSpeech) Synthesize(ctx context.Context, _ SpeechRequest) (Audio, error) {
	b.calls++
	<-ctx.Done()
	return Audio{}, ctx.Err()
}

func TestAnalyzeSkipsSpeechWhenBudgetIsSpent(t *testing.T) {
	chat := &scriptedChat{reply: "quick text"}
	speech := &failingSpeech{}
	cfg := fastConfig()
	cfg.Budget = time.Second
	svc, err := NewService(chat, cfg, WithSpeech(speech), WithLogger(logging.Nop()))
	require.NoError(t, err)

	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "quick text", result.Analysis)
	assert.Empty(t, result.AudioBase64)
	assert.Zero(t, speech.calls)
}

func TestAnalyzeSlowSpeechStopsAtBudget(t *testing.T) {
	chat := &scriptedChat{reply: "text first"}
	speech := &blockingSpeech{}
	cfg := fastConfig()
	cfg.Budget = 200 * time.Millisecond
	cfg.MinSpeechBudget = time.Millisecond
	svc, err := NewService(chat, cfg, WithSpeech(speech), WithLogger(logging.Nop()))
	require.NoError(t, err)

	start := time.Now()
	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "text first", result.Analysis)
	assert.Empty(t, result.AudioBase64)
	assert.GreaterOrEqual(t, speech.calls, 1)
}

func TestAnalyzeCachesCompleteResults(t *testing.T) {
	chat := &scriptedChat{reply: "cached"}
	svc, err := NewService(chat, fastConfig(), WithSpeech(MockProvider{}), WithLogger(logging.Nop()))
	require.NoError(t, err)

	first, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, chat.calls)

	other := validRequest(t)
	other.Reflection = "something else"
	_, err = svc.Analyze(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, chat.calls)
}

func TestResultCacheExpires(t *testing.T) {
	cache := newResultCache(4, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.put("k", Result{Analysis: "v"})
	got, ok := cache.get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Analysis)

	now = now.Add(2 * time.Minute)
	_, ok = cache.get("k")
	assert.False(t, ok)

	assert.Nil(t, newResultCache(-1, 0))
	var disabled *resultCache
	_, ok = disabled.get("k")
	assert.False(t, ok)
}

func TestAnalyzeWritesAudioToSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	sink, err := store.NewAssetStore(dir, logging.Nop())
	require.NoError(t, err)

	chat := &scriptedChat{reply: "hello"}
	svc, err := NewService(chat, fastConfig(), WithSpeech(MockProvider{}), WithAudioSink(sink), WithLogger(logging.Nop()))
	require.NoError(t, err)

	result, err := svc.Analyze(context.Background(), validRequest(t))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.AudioURL, AudioRoutePrefix), result.AudioURL)
	name := strings.TrimPrefix(result.AudioURL, AudioRoutePrefix)
	assert.True(t, strings.HasSuffix(name, "_speech.wav"), name)

	path, err := sink.Resolve(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, result.AudioBase64, base64.StdEncoding.EncodeToString(data))
	assert.Equal(t, "audio/wav", AudioContentType(name))
}

func TestNewServiceRequiresChat(t *testing.T) {
	_, err := NewService(nil, Config{})
	assert.Error(t, err)
}

func TestMockSilentWAVHeader(t *testing.T) {
	audio, err := MockProvider{SampleRate: 8000}.Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	require.NoError(t, err)
	require.Greater(t, len(audio.Data), 44)
	assert.Equal(t, "RIFF", string(audio.Data[0:4]))
	assert.Equal(t, "WAVE", string(audio.Data[8:12]))
	assert.Equal(t, "fmt ", string(audio.Data[12:16]))
	assert.Equal(t, "data", string(audio.Data[36:40]))
	// One second minimum at 8 kHz, 16-bit mono.
	assert.Equal(t, 44+8000*2, len(audio.Data))
}
