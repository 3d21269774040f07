package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// MockProvider answers chat and speech calls locally, for development and
// dry runs. Speech is silent WAV sized to the text length.
type MockProvider struct {
	SampleRate int
}

// Complete returns a canned analysis that echoes the request shape.
func (m MockProvider) Complete(_ context.Context, req ChatRequest) (string, error) {
	return fmt.Sprintf("## 模擬分析\n\n已收到 %d 張圖片與 %d 字的描述。這是開發模式的示範回覆。",
		len(req.ImageURLs), utf8.RuneCountInString(req.Prompt)), nil
}

// Synthesize generates a silent WAV whose length tracks the text.
func (m MockProvider) Synthesize(_ context.Context, req SpeechRequest) (Audio, error) {
	rate := m.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return Audio{
		Data:        silentWAV(speechDuration(req.Text), rate),
		ContentType: "audio/wav",
	}, nil
}

func speechDuration(text string) time.Duration {
	seconds := math.Max(float64(utf8.RuneCountInString(text))/12.0, 1)
	return time.Duration(seconds * float64(time.Second))
}

func silentWAV(duration time.Duration, sampleRate int) []byte {
	samples := int(math.Ceil(duration.Seconds() * float64(sampleRate)))
	dataSize := uint32(samples * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	for _, field := range []any{
		uint32(16),             // fmt chunk size
		uint16(1),              // PCM
		uint16(1),              // mono
		uint32(sampleRate),     // sample rate
		uint32(sampleRate * 2), // byte rate
		uint16(2),              // block align
		uint16(16),             // bits per sample
	} {
		_ = binary.Write(&buf, le, field)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, le, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

var (
	_ ChatClient   = MockProvider{}
	_ SpeechClient = MockProvider{}
)
