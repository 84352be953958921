// Package audio provides the PCM processing leaves of the hudlink capture
// pipeline: sample-format conversion, stateful resampling, channel
// classification, fixed-duration framing, and rolling channel diagnostics.
//
// All processing operates on float64 samples in [-1, 1]; the wire format is
// signed 16-bit little-endian PCM produced by [EncodeSamples].
package audio

import "time"

// Format describes the PCM parameters of an audio stream as negotiated in the
// hello handshake: sample rate, channel count, and frame duration.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for the server ingest format).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// FrameMs is the fixed frame duration in milliseconds.
	FrameMs int
}

// FrameSamples returns the number of samples per channel in one frame.
func (f Format) FrameSamples() int {
	return f.SampleRate * f.FrameMs / 1000
}

// FrameBytes returns the wire size of one frame: FrameSamples × 2 bytes ×
// channel count.
func (f Format) FrameBytes() int {
	return f.FrameSamples() * 2 * f.Channels
}

// Frame is one fixed-duration unit of PCM audio sent as a single transport
// message. Data is signed 16-bit little-endian, mono or interleaved stereo.
//
// Invariant: len(Data) == Format.FrameBytes(). Partial frames are never
// constructed; the [Framer] only emits complete windows.
type Frame struct {
	// Data is the wire-ready PCM payload.
	Data []byte

	// Format describes the PCM parameters of Data.
	Format Format

	// Timestamp marks when the first sample of this frame was captured,
	// relative to stream start.
	Timestamp time.Duration
}
