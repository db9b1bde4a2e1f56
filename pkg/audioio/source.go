package audioio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
)

// AudioChunk is one buffer of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes encodes the samples as little-endian PCM16, the framing the
// streaming transcriber expects on the wire.
func (c AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Level returns the RMS level of the chunk in [0,1].
func (c AudioChunk) Level() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// decodePCM16 builds a chunk from little-endian PCM16. A trailing odd byte
// is dropped.
func decodePCM16(data []byte, cfg Config) AudioChunk {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return AudioChunk{Samples: samples, SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

// Source is a capture stream. The wake loop opens a fresh one for every
// wake wait and every transcription session.
type Source interface {
	// Start begins capture. Starting a running source is a no-op.
	Start(ctx context.Context) error

	// Read blocks for the next chunk and returns io.EOF once the stream
	// has ended or was never started.
	Read(ctx context.Context) (AudioChunk, error)

	// Stop ends capture. It is safe to call more than once.
	Stop() error

	// Stats reports what the source has delivered so far.
	Stats() Stats

	// Close stops capture for good.
	io.Closer
}

// Stats counts the chunks a source handed to its reader.
type Stats struct {
	Backend string `json:"backend"`
	Chunks  int64  `json:"chunks"`
	Samples int64  `json:"samples"`

	// Dropped counts chunks discarded because the reader fell behind.
	Dropped int64 `json:"dropped"`
	Running bool  `json:"running"`
}
