// Package tts turns short assistant replies into playable audio.
//
// Every backend implements Provider so callers can fall back between a keyed
// cloud voice and the keyless Google Translate voice without code changes.
//
//	provider, _ := tts.NewGoogle(tts.WithLanguage("en"))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Reminder set.")
//	// result.Audio holds MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider is one voice the speech pool can use.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Name identifies the voice in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int

	// BitDepth for PCM formats.
	BitDepth int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingMP3   Encoding = "mp3"       // MP3, rate chosen by the server
	EncodingWAV   Encoding = "wav"
)

// Extension returns the file extension an external player expects.
func (e Encoding) Extension() string {
	switch e {
	case EncodingMP3:
		return ".mp3"
	case EncodingWAV:
		return ".wav"
	default:
		return ".raw"
	}
}
