package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/limitio"
)

const maxSpeechBytes = 32 << 20

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient implements ChatClient and SpeechClient over the OpenAI API.
// Retries are left to the caller.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient builds a client. The API key is required.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, &apperrors.UnavailableError{Service: "openai"}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}, nil
}

// Complete sends the system prompt and one user message carrying the prompt
// text followed by every image URL.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.ImageURLs)+1)
	parts = append(parts, openai.TextContentPart(req.Prompt))
	for _, url := range req.ImageURLs {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", &apperrors.UpstreamError{Service: "chat", Err: fmt.Errorf("response has no choices")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &apperrors.UpstreamError{Service: "chat", Err: fmt.Errorf("response content is empty")}
	}
	return content, nil
}

// Synthesize requests MP3 speech for req.Text.
func (c *OpenAIClient) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(req.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		Input:          req.Text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return Audio{}, wrapOpenAIError("speech", err)
	}
	defer resp.Body.Close()

	data, err := limitio.ReadAll(resp.Body, maxSpeechBytes)
	if err != nil {
		return Audio{}, &apperrors.UpstreamError{Service: "speech", StatusCode: resp.StatusCode, Err: err}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "audio/mpeg"
	}
	return Audio{Data: data, ContentType: contentType}, nil
}

func wrapOpenAIError(service string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &apperrors.UpstreamError{Service: service, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &apperrors.UpstreamError{Service: service, Err: err}
}

var (
	_ ChatClient   = (*OpenAIClient)(nil)
	_ SpeechClient = (*OpenAIClient)(nil)
)
