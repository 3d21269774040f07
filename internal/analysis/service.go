package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/imaging"
	"lhtl/internal/logging"
)

// AudioRoutePrefix is the public path for cached speech files.
const AudioRoutePrefix = "/audio/"

// minAudioBytes rejects speech payloads too small to be playable.
const minAudioBytes = 100

// AudioSink persists synthesized speech and returns its filename.
type AudioSink interface {
	Put(ctx context.Context, data []byte, role, ext string) (string, error)
}

// Observer receives one call per analysis stage.
type Observer interface {
	ObserveAnalysis(stage, outcome string, duration time.Duration)
}

// Config tunes the service.
type Config struct {
	VisionModel string
	MaxTokens   int
	SpeechModel string
	Voice       string
	// CacheSize of zero uses the default; negative disables caching.
	CacheSize int
	CacheTTL  time.Duration
	// NewBackOff builds the retry policy for one upstream call.
	NewBackOff func() backoff.BackOff
	// Budget bounds one Analyze call. Speech only runs in what chat left.
	Budget time.Duration
	// MinSpeechBudget is the least remaining time worth a speech attempt.
	MinSpeechBudget time.Duration
}

// Request is one analysis request. Images are data URLs or bare base64.
type Request struct {
	Author         string
	Habits         string
	Reflection     string
	ScorecardImage string
	ComicImage     string
}

// Result is the analysis outcome. Audio fields are empty when speech failed.
type Result struct {
	Analysis         string `json:"analysis"`
	AudioBase64      string `json:"audioBase64,omitempty"`
	AudioURL         string `json:"audioUrl,omitempty"`
	AudioContentType string `json:"audioContentType,omitempty"`
}

// Service runs the chat then speech calls for one submission.
type Service struct {
	chat     ChatClient
	speech   SpeechClient
	audio    AudioSink
	cfg      Config
	cache    *resultCache
	logger   logging.Logger
	observer Observer
	breaker  *apperrors.CircuitBreaker
}

// Option customises a Service.
type Option func(*Service)

// WithSpeech enables speech synthesis.
func WithSpeech(client SpeechClient) Option {
	return func(s *Service) { s.speech = client }
}

// WithAudioSink stores synthesized audio so it can be served by URL.
func WithAudioSink(sink AudioSink) Option {
	return func(s *Service) { s.audio = sink }
}

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// WithObserver attaches a stage observer.
func WithObserver(observer Observer) Option {
	return func(s *Service) { s.observer = observer }
}

// WithCircuitBreaker fails chat calls fast while the upstream is down.
func WithCircuitBreaker(cb *apperrors.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// NewService builds the service. chat is required.
func NewService(chat ChatClient, cfg Config, opts ...Option) (*Service, error) {
	if chat == nil {
		return nil, fmt.Errorf("analysis: chat client is required")
	}
	if strings.TrimSpace(cfg.VisionModel) == "" {
		cfg.VisionModel = "gpt-4.1"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if strings.TrimSpace(cfg.SpeechModel) == "" {
		cfg.SpeechModel = "tts-1"
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "alloy"
	}
	if cfg.MinSpeechBudget <= 0 {
		cfg.MinSpeechBudget = 5 * time.Second
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 20 * time.Second
			return backoff.WithMaxRetries(b, 3)
		}
	}
	s := &Service{
		chat:   chat,
		cfg:    cfg,
		cache:  newResultCache(cfg.CacheSize, cfg.CacheTTL),
		logger: logging.NewComponentLogger("Analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze validates both images, asks the chat model for feedback and, when
// speech is enabled, synthesizes it. A chat failure is fatal and returned as
// *errors.UpstreamError; a speech failure only drops the audio.
func (s *Service) Analyze(ctx context.Context, req Request) (Result, error) {
	logger := logging.FromContext(ctx, s.logger)
	if s.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Budget)
		defer cancel()
	}
	scorecard, comic, err := decodeImages(req)
	if err != nil {
		return Result{}, err
	}

	prompt := buildPrompt(req.Author, req.Habits, req.Reflection)
	key := cacheKey(s.cfg.VisionModel, s.cfg.Voice, prompt, scorecard, comic)
	if cached, ok := s.cache.get(key); ok {
		logger.Debug("Analysis cache hit")
		s.observe("chat", "cached", 0)
		return cached, nil
	}

	if err := s.breaker.Allow(); err != nil {
		s.observe("chat", "rejected", 0)
		logger.Warn("Chat analysis rejected: %v", err)
		return Result{}, err
	}

	start := time.Now()
	var text string
	err = s.retry(ctx, func() error {
		var callErr error
		text, callErr = s.chat.Complete(ctx, ChatRequest{
			Model:     s.cfg.VisionModel,
			System:    systemPrompt,
			Prompt:    prompt,
			ImageURLs: []string{scorecard, comic},
			MaxTokens: s.cfg.MaxTokens,
		})
		return callErr
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = &apperrors.UpstreamError{Service: "chat", Err: fmt.Errorf("empty analysis")}
	}
	s.breaker.Mark(err)
	if err != nil {
		s.observe("chat", "error", time.Since(start))
		logger.Error("Chat analysis failed: %v", err)
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		var upstream *apperrors.UpstreamError
		if !errors.As(err, &upstream) {
			err = &apperrors.UpstreamError{Service: "chat", Err: err}
		}
		return Result{}, err
	}
	s.observe("chat", "ok", time.Since(start))

	result := Result{Analysis: strings.TrimSpace(text)}
	complete := s.attachSpeech(ctx, &result)
	if complete {
		s.cache.put(key, result)
	}
	return result, nil
}

// attachSpeech fills the audio fields. It reports false when speech was
// enabled but failed.
func (s *Service) attachSpeech(ctx context.Context, result *Result) bool {
	logger := logging.FromContext(ctx, s.logger)
	if s.speech == nil {
		return true
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < s.cfg.MinSpeechBudget {
			s.observe("speech", "skipped", 0)
			logger.Warn("Skipping speech, %s left of the analysis budget", left.Round(time.Millisecond))
			return false
		}
	}
	start := time.Now()
	var audio Audio
	err := s.retry(ctx, func() error {
		var callErr error
		audio, callErr = s.speech.Synthesize(ctx, SpeechRequest{
			Model: s.cfg.SpeechModel,
			Voice: s.cfg.Voice,
			Text:  result.Analysis,
		})
		return callErr
	})
	if err == nil && len(audio.Data) < minAudioBytes {
		err = fmt.Errorf("speech payload too small (%d bytes)", len(audio.Data))
	}
	if err != nil {
		s.observe("speech", "error", time.Since(start))
		logger.Warn("Speech synthesis failed, returning text only: %v", err)
		return false
	}
	s.observe("speech", "ok", time.Since(start))

	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	result.AudioBase64 = base64.StdEncoding.EncodeToString(audio.Data)
	result.AudioContentType = contentType

	if s.audio != nil {
		name, err := s.audio.Put(ctx, audio.Data, "speech", audioExt(contentType))
		if err != nil {
			logger.Warn("Caching speech audio failed: %v", err)
		} else {
			result.AudioURL = AudioRoutePrefix + name
		}
	}
	return true
}

func (s *Service) retry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(s.cfg.NewBackOff(), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (s *Service) observe(stage, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveAnalysis(stage, outcome, d)
	}
}

func decodeImages(req Request) (string, string, error) {
	var bad []string
	urls := make([]string, 2)
	for i, img := range []struct {
		key     string
		payload string
	}{
		{"scorecard", req.ScorecardImage},
		{"comic", req.ComicImage},
	} {
		data, format, err := imaging.DecodeBase64(img.payload)
		if err != nil {
			bad = append(bad, img.key)
			continue
		}
		urls[i] = imaging.DataURL(data, format)
	}
	if len(bad) > 0 {
		return "", "", apperrors.NewValidationError("images must be base64 encoded png, jpeg or gif", bad...)
	}
	return urls[0], urls[1], nil
}

func audioExt(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return "wav"
	case strings.Contains(contentType, "ogg"), strings.Contains(contentType, "opus"):
		return "ogg"
	default:
		return "mp3"
	}
}

// AudioContentType maps a cached audio filename to its media type.
func AudioContentType(filename string) string {
	switch imaging.Extension(filename) {
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
