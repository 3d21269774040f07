// Package analysis talks to the multimodal AI collaborator: a vision chat call
// that comments on a submission and a speech call that reads the comment
// aloud.
package analysis

import "context"

// ChatRequest is one vision completion.
type ChatRequest struct {
	Model     string
	System    string
	Prompt    string
	ImageURLs []string
	MaxTokens int
}

// SpeechRequest is one text-to-speech call.
type SpeechRequest struct {
	Model string
	Voice string
	Text  string
}

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}

// ChatClient produces a text completion for a prompt plus images.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// SpeechClient turns text into audio.
type SpeechClient interface {
	Synthesize(ctx context.Context, req SpeechRequest) (Audio, error)
}
